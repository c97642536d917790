package transport

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/fieldops/internal/observability"
)

const maxCorrelationIDLength = 128

// CorrelationID tags the request's user context with X-Request-ID, or a new
// id when the caller sent none, and echoes it on the response.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
		if id == "" || len(id) > maxCorrelationIDLength {
			id = uuid.NewString()
		}

		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), id))
		c.Set(fiber.HeaderXRequestID, id)
		return c.Next()
	}
}
