package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestHealthIntegration_LivezAndReadyz(t *testing.T) {
	t.Parallel()

	t.Run("livez returns 200", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t, func(app *fiber.App) error {
			RegisterHealthRoutes(app)
			return nil
		})

		resp, body := performRequest(t, app, http.MethodGet, "/livez", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("readyz returns 200 when dependencies healthy", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{})
		t.Cleanup(func() { _ = sqlDB.Close() })

		rdb := newStubRedisClient(nil)
		t.Cleanup(func() { _ = rdb.Close() })

		app := newTestApp(t, func(app *fiber.App) error {
			RegisterHealthRoutes(app, PingSQL("postgres", sqlDB), PingRedis("redis", rdb))
			return nil
		})

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("readyz reports each failing dependency", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{pingErr: errors.New("postgres down")})
		t.Cleanup(func() { _ = sqlDB.Close() })

		rdb := newStubRedisClient(nil)
		t.Cleanup(func() { _ = rdb.Close() })

		app := newTestApp(t, func(app *fiber.App) error {
			RegisterHealthRoutes(app,
				PingSQL("postgres", sqlDB),
				PingRedis("redis", rdb),
				HealthCheck{Name: "rabbitmq", Check: func(context.Context) error { return errors.New("closed") }},
			)
			return nil
		})

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503, body=%s", resp.StatusCode, string(body))
		}

		var payload struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		want := map[string]string{"postgres": "down", "redis": "ok", "rabbitmq": "down"}
		for name, state := range want {
			if payload.Checks[name] != state {
				t.Fatalf("checks[%s] = %q, want %q (body=%s)", name, payload.Checks[name], state, body)
			}
		}
		if payload.Status != "not_ready" {
			t.Fatalf("status = %q, want not_ready", payload.Status)
		}
	})
}
