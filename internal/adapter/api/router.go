package api

import (
	"insurebot-core/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	Env       string
	Version   string
	Metrics   *observability.Metrics
	AccessLog bool
}

func SetupRouter(app *fiber.App, handler *MessageHandler, cfg RouterConfig) {
	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New())
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "healthy",
			"version": cfg.Version,
			"env":     cfg.Env,
		})
	})
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/v1")
	v1.Post("/messages", handler.HandleMessage)
	v1.Delete("/users/:id", handler.EraseUser)
}
