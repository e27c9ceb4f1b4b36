package server

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func ErrorHandler(c *fiber.Ctx, err error) error {
	var code = fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)

	rid := c.Locals(requestid.ConfigDefault.ContextKey)
	if code == fiber.StatusInternalServerError {
		log.Error("unexpected error", zap.Error(err), zap.String("path", c.Path()), zap.Any("request-id", rid))
		return c.Status(code).SendString(fmt.Sprintf("unexpected error, request-id: %v", rid))
	}
	return c.Status(code).SendString(err.Error())
}
