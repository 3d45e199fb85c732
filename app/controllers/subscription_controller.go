package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fleamarkt/fleamarkt/internal/pkg/usercontext"
)

// reconcileTimeout bounds a single on-demand repair, billing round trips
// included.
const reconcileTimeout = 30 * time.Second

// HandleSubscriptionCleanup runs the self-healing repair for the
// authenticated user and returns the converged record.
// POST /api/v1/subscription/cleanup
func HandleSubscriptionCleanup(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "unauthorized",
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), reconcileTimeout)
	defer cancel()

	service, _ := newSubscriptionService()
	rec, err := service.ReconcileUser(ctx, userID)
	if err != nil {
		return respondSubscriptionError(c, err)
	}

	return c.JSON(fiber.Map{
		"user_id":      userID,
		"subscription": subscriptionRecordJSON(rec),
	})
}

// HandleGetSubscription returns the stored record for the authenticated
// user without touching the billing provider.
// GET /api/v1/subscription
func HandleGetSubscription(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "unauthorized",
		})
	}

	_, primary := newSubscriptionService()
	rec, found, err := primary.Get(c.UserContext(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_server_error",
		})
	}

	return c.JSON(fiber.Map{
		"user_id":      userID,
		"found":        found,
		"subscription": subscriptionRecordJSON(rec),
	})
}
