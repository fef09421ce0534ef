// Package response renders the JSON envelope shared by every endpoint and maps
// failure kinds onto HTTP statuses.
package response

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/minipay/internal/apperr"
)

// Envelope is the body of every response.
type Envelope struct {
	StatusCode        int     `json:"statusCode"`
	StatusMessage     string  `json:"statusMessage"`
	StatusDescription string  `json:"statusDescription"`
	Result            *Result `json:"result,omitempty"`
}

// Result carries the payload of a successful request.
type Result struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Data         any    `json:"data,omitempty"`
}

const (
	successCode        = "00"
	successDescription = "request succeded without error"
)

// OK writes a 200 envelope. data may be nil.
func OK(c *fiber.Ctx, data any) error {
	return Success(c, http.StatusOK, successDescription, data)
}

// Created writes a 201 envelope.
func Created(c *fiber.Ctx, data any) error {
	return Success(c, http.StatusCreated, "resource created", data)
}

// Success writes a successful envelope with the given status.
func Success(c *fiber.Ctx, status int, description string, data any) error {
	return c.Status(status).JSON(Envelope{
		StatusCode:        status,
		StatusMessage:     statusMessage(status),
		StatusDescription: description,
		Result:            &Result{ErrorCode: successCode, ErrorMessage: "success", Data: data},
	})
}

// Error writes an error envelope without a result.
func Error(c *fiber.Ctx, status int, description string) error {
	return c.Status(status).JSON(Envelope{
		StatusCode:        status,
		StatusMessage:     statusMessage(status),
		StatusDescription: description,
	})
}

// Status maps an error onto the HTTP status it is reported with.
func Status(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	switch apperr.KindOf(err) {
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrConflict:
		return http.StatusConflict
	case apperr.ErrInsufficientFunds, apperr.ErrBadRequest:
		return http.StatusBadRequest
	case apperr.ErrUnauthenticated, apperr.ErrInvalidToken:
		return http.StatusUnauthorized
	case apperr.ErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders every error returned by a handler as an envelope.
// Internal failures are logged and their details withheld from the client.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := Status(err)

		var fe *fiber.Error
		description := ""
		switch {
		case errors.As(err, &fe):
			description = fe.Message
		case status == http.StatusInternalServerError:
			description = "internal server error"
		default:
			description = apperr.Message(err)
		}

		if status >= http.StatusInternalServerError && logger != nil {
			logger.Error("request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.Int("status", status),
				slog.Any("error", err),
			)
		}
		return Error(c, status, description)
	}
}

// NotFound is the catch-all handler for unknown routes.
func NotFound(c *fiber.Ctx) error {
	return Error(c, http.StatusNotFound, "resource not found")
}

func statusMessage(status int) string {
	return strings.ToLower(http.StatusText(status))
}
