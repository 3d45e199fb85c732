package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/fleamarkt/fleamarkt/app/repository"
	"github.com/fleamarkt/fleamarkt/internal/pkg/subscription"
)

// batchScanTimeout bounds a full admin-triggered scan. Each identity may
// need several billing round trips, so this is generous.
const batchScanTimeout = 5 * time.Minute

// AdminFixRequest optionally targets a single user. An empty body runs the
// batch scanner instead.
type AdminFixRequest struct {
	UserID uint   `json:"user_id" validate:"omitempty,gt=0"`
	Email  string `json:"email" validate:"omitempty,email"`
}

// HandleAdminSubscriptionFix repairs one user's subscription state when a
// target is given, or scans a batch of known subscribers otherwise.
// POST /api/v1/admin/subscription/fix
func HandleAdminSubscriptionFix(c *fiber.Ctx) error {
	var req AdminFixRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid_body",
			})
		}
		if err := validator.New().Struct(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "validation_failed",
				"message": err.Error(),
			})
		}
	}

	if req.UserID == 0 && req.Email == "" {
		return runAdminBatchScan(c)
	}
	return runAdminSingleFix(c, req)
}

func runAdminSingleFix(c *fiber.Ctx, req AdminFixRequest) error {
	userID := req.UserID
	if userID == 0 {
		user, err := repository.GetGlobalFactory().GetUserRepository().GetByEmail(req.Email)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "user_not_found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal_server_error",
			})
		}
		userID = user.ID
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), reconcileTimeout)
	defer cancel()

	service, _ := newSubscriptionService()

	before, err := service.Snapshots(ctx, userID)
	if err != nil {
		return respondSubscriptionError(c, err)
	}
	wasInconsistent := subscription.Inconsistent(time.Now(), before)

	rec, err := service.ReconcileUser(ctx, userID)
	if err != nil {
		return respondSubscriptionError(c, err)
	}

	return c.JSON(fiber.Map{
		"user_id":          userID,
		"was_inconsistent": wasInconsistent,
		"before": fiber.Map{
			"primary": subscriptionRecordJSON(before.Primary),
			"mirror":  subscriptionRecordJSON(before.Mirror),
		},
		"subscription": subscriptionRecordJSON(rec),
	})
}

func runAdminBatchScan(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), batchScanTimeout)
	defer cancel()

	service, primary := newSubscriptionService()
	summary, err := subscription.NewBatchScanner(service, primary).Run(ctx)
	if err != nil {
		return respondSubscriptionError(c, err)
	}

	return c.JSON(summary)
}
