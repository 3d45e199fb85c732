package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/fleamarkt/fleamarkt/app/models"
	"github.com/fleamarkt/fleamarkt/app/repository"
	"github.com/fleamarkt/fleamarkt/internal/pkg/cache"
	"github.com/fleamarkt/fleamarkt/internal/pkg/entitlements"
	"github.com/fleamarkt/fleamarkt/internal/pkg/listingcache"
	"github.com/fleamarkt/fleamarkt/internal/pkg/metrics/counter"
	"github.com/fleamarkt/fleamarkt/internal/pkg/subscription"
	"github.com/fleamarkt/fleamarkt/internal/pkg/usercontext"
)

// currentPlan reads the user's plan from the low-latency mirror. A miss or
// unreadable value falls back to free.
func currentPlan(userID uint) entitlements.Plan {
	raw, err := cache.Get(subscription.PlanKey(userID))
	if err != nil {
		return entitlements.PlanFree
	}
	return entitlements.Normalize(raw)
}

// HandleCreateListing creates a listing owned by the authenticated user.
// POST /api/v1/listings
func HandleCreateListing(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var listing models.Listing
	if err := c.BodyParser(&listing); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	listing.ID = 0
	listing.UserID = userID
	listing.Status = models.ListingStatusActive
	listing.ArchivedAt = nil
	listing.DeleteAt = nil
	if listing.Currency == "" {
		listing.Currency = "EUR"
	}

	if err := listing.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": err.Error(),
		})
	}

	plan := currentPlan(userID)
	active, err := repository.GetGlobalFactory().GetListingRepository().CountActiveByUser(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if !entitlements.AllowsMoreListings(plan, active) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "listing_limit_reached",
			"plan":  string(plan),
			"limit": entitlements.MaxActiveListings(plan),
		})
	}

	if err := repository.GetGlobalFactory().GetListingRepository().Create(&listing); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	refreshListingCache(c, &listing)

	return c.Status(fiber.StatusCreated).JSON(listing)
}

// HandleGetListing returns a single listing by id.
// GET /api/v1/listings/:id
func HandleGetListing(c *fiber.Ctx) error {
	listing, err := loadOwnedListing(c)
	if err != nil {
		return err
	}

	if err := counter.AddListingView(listing.ID); err != nil {
		log.Warnf("[Listing] view counter failed for listing %d: %v", listing.ID, err)
	}

	return c.JSON(listing)
}

// HandleArchiveListing archives a listing and stamps its deletion deadline
// so the cached document eventually expires.
// POST /api/v1/listings/:id/archive
func HandleArchiveListing(c *fiber.Ctx) error {
	listing, err := loadOwnedListing(c)
	if err != nil {
		return err
	}
	if listing.Status == models.ListingStatusArchived {
		return c.JSON(listing)
	}

	archived, err := repository.GetGlobalFactory().GetListingRepository().Archive(listing.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	refreshListingCache(c, archived)

	return c.JSON(archived)
}

// HandleRestoreListing reactivates an archived listing. The deletion
// deadline must disappear from the cached document, not be nulled.
// POST /api/v1/listings/:id/restore
func HandleRestoreListing(c *fiber.Ctx) error {
	listing, err := loadOwnedListing(c)
	if err != nil {
		return err
	}
	if listing.Status != models.ListingStatusArchived {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not_archived"})
	}

	restored, err := repository.GetGlobalFactory().GetListingRepository().Restore(listing.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	refreshListingCache(c, restored)

	return c.JSON(restored)
}

// loadOwnedListing resolves :id and enforces that the caller owns the
// listing or is an admin. A returned error is already a rendered response.
func loadOwnedListing(c *fiber.Ctx) (*models.Listing, error) {
	userID := usercontext.GetUserID(c)
	if userID == 0 {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_listing_id"})
	}

	listing, err := repository.GetGlobalFactory().GetListingRepository().GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "listing_not_found"})
		}
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	if listing.UserID != userID && !usercontext.IsAdmin(c) {
		return nil, c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}

	return listing, nil
}

// refreshListingCache mirrors the listing into the cache. The relational
// row is the source of truth, so a cache failure is only logged.
func refreshListingCache(c *fiber.Ctx, listing *models.Listing) {
	if err := listingcache.Upsert(c.UserContext(), cache.GetClient(), listing); err != nil {
		log.Warnf("[Listing] cache refresh failed for listing %d: %v", listing.ID, err)
	}
}
