package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fleamarkt/fleamarkt/app/models"
	"github.com/fleamarkt/fleamarkt/app/repository"
	"github.com/fleamarkt/fleamarkt/internal/pkg/billing"
	"github.com/fleamarkt/fleamarkt/internal/pkg/cache"
	"github.com/fleamarkt/fleamarkt/internal/pkg/database"
	"github.com/fleamarkt/fleamarkt/internal/pkg/subscription"
)

// formatTimePtr renders an optional timestamp as RFC3339 or nil.
func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// subscriptionRecordJSON is the wire shape of the canonical record.
func subscriptionRecordJSON(rec models.SubscriptionRecord) fiber.Map {
	return fiber.Map{
		"status":                  rec.Status,
		"plan":                    rec.Plan,
		"billing_subscription_id": rec.BillingSubscriptionID,
		"start_date":              formatTimePtr(rec.StartDate),
		"end_date":                formatTimePtr(rec.EndDate),
		"renewal_date":            formatTimePtr(rec.RenewalDate),
		"cancel_at_period_end":    rec.CancelAtPeriodEnd,
		"canceled_at":             formatTimePtr(rec.CanceledAt),
		"manually_updated":        rec.ManuallyUpdated,
		"last_manual_update":      formatTimePtr(rec.LastManualUpdate),
		"last_updated":            rec.LastUpdated.UTC().Format(time.RFC3339),
	}
}

// respondSubscriptionError maps the reconciliation error taxonomy onto HTTP
// statuses with a distinguishing code for the client.
func respondSubscriptionError(c *fiber.Ctx, err error) error {
	code := subscription.CodeOf(err)
	switch code {
	case subscription.CodeValidation:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": string(code), "message": err.Error()})
	case subscription.CodeAuth:
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": string(code), "message": err.Error()})
	case subscription.CodeNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": string(code), "message": "no subscription data"})
	case subscription.CodeProvider:
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": string(code), "message": "billing provider unavailable"})
	case subscription.CodePersistence, subscription.CodePersistenceMirror:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": string(code), "message": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}
}

// newSubscriptionService wires the reconciliation pipeline from the global
// DB, cache and billing provider handles.
func newSubscriptionService() (*subscription.Service, *subscription.DBStore) {
	primary := subscription.NewDBStore(database.GetDB())
	mirror := subscription.NewCacheStore(cache.GetClient())
	users := repository.GetGlobalFactory().GetUserRepository()
	return subscription.NewService(billing.NewStripeClientFromEnv(), users, primary, mirror), primary
}
