package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/fieldops/internal/observability"
	"go.uber.org/zap"
)

const internalErrorMessage = "internal server error"

// ErrorHandler renders {"error": ...}. Client errors keep their message and
// are logged at warn; anything else is logged in full and masked.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
		}

		reqLogger := observability.WithContextLogger(logger, c.UserContext())
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}

		message := err.Error()
		if code >= fiber.StatusInternalServerError {
			reqLogger.Error("request error", fields...)
			message = internalErrorMessage
		} else {
			reqLogger.Warn("request rejected", fields...)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}
}
