package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// HealthCheck is one named readiness dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func PingSQL(name string, db *sql.DB) HealthCheck {
	return HealthCheck{Name: name, Check: db.PingContext}
}

func PingRedis(name string, rdb *redis.Client) HealthCheck {
	return HealthCheck{Name: name, Check: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}}
}

func RegisterHealthRoutes(app fiber.Router, checks ...HealthCheck) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(checks...))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(checks ...HealthCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
		defer cancel()

		results := make(fiber.Map, len(checks))
		ready := true
		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				results[check.Name] = "down"
				ready = false
				continue
			}
			results[check.Name] = "ok"
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	}
}
