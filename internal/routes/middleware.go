package routes

import (
	"errors"
	"time"

	rbac "github.com/bohemiyan/projectrbac"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// UserIDHeader carries the caller id for the development auth stand-in.
const UserIDHeader = "X-User-Id"

// DevAuth trusts the X-User-Id header as the authenticated principal.
// Requests without a valid header continue unauthenticated; the guard
// rejects them on protected routes.
func DevAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id, err := uuid.Parse(c.Get(UserIDHeader)); err == nil && id != uuid.Nil {
			rbac.SetFiberPrincipal(c, rbac.Principal{Sub: id})
		}
		return c.Next()
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
}

// ErrorHandler renders fiber errors and engine errors as ErrorResponse.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := rbac.StatusCode(err)
	msg := rbac.PublicMessage(err)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		StatusCode: code,
		Message:    msg,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Path:       c.Path(),
	})
}
