package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/fleamarkt/fleamarkt/app/controllers"
	"github.com/fleamarkt/fleamarkt/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Get("/ping", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "pong",
		})
	})

	// Subscription endpoints require an API key.
	sub := v1.Group("/subscription", middleware.APIKeyAuthMiddleware())
	sub.Get("/", controllers.HandleGetSubscription)
	sub.Post("/cleanup", controllers.HandleSubscriptionCleanup)

	// Listing endpoints share the same authentication.
	listings := v1.Group("/listings", middleware.APIKeyAuthMiddleware())
	listings.Post("/", controllers.HandleCreateListing)
	listings.Get("/:id", controllers.HandleGetListing)
	listings.Post("/:id/archive", controllers.HandleArchiveListing)
	listings.Post("/:id/restore", controllers.HandleRestoreListing)

	// Admin endpoints are locked behind the shared operator secret.
	admin := v1.Group("/admin", middleware.AdminSecretMiddleware())
	admin.Post("/subscription/fix", controllers.HandleAdminSubscriptionFix)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
