package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"docportal/internal/apperr"
	"docportal/internal/http/middleware"
)

// retryAfterSeconds is advertised on 503 responses.
const retryAfterSeconds = 5

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// writeError writes the error envelope. Only the code, the safe message and
// field details reach the client; the wrapped cause never does.
func writeError(c *fiber.Ctx, e *apperr.Error) error {
	if e.Kind == apperr.KindUnavailable {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds))
	}
	return c.Status(e.Status).JSON(errorPayload{
		RequestID: middleware.RequestIDFrom(c),
		Error: errorEnvelope{
			Code:    e.Code,
			Message: e.Message,
			Fields:  e.Fields,
		},
	})
}

// ErrorHandler returns the Fiber global error handler. Typed application
// errors render with their own status and code; storage and internal failures
// are logged with their cause first.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return writeError(c, fromFiberError(fe))
		}

		e := apperr.FromError(err)
		switch e.Kind {
		case apperr.KindStorage, apperr.KindInternal, apperr.KindUnavailable:
			log.Error("request failed",
				zap.String("request_id", middleware.RequestIDFrom(c)),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("kind", e.Kind.String()),
				zap.String("code", e.Code),
				zap.Error(err),
			)
		}
		return writeError(c, e)
	}
}

func fromFiberError(fe *fiber.Error) *apperr.Error {
	e := &apperr.Error{Kind: apperr.KindInternal, Status: fe.Code}
	switch fe.Code {
	case fiber.StatusBadRequest:
		e.Kind, e.Code, e.Message = apperr.KindValidation, "BAD_REQUEST", "bad request"
	case fiber.StatusNotFound:
		e.Kind, e.Code, e.Message = apperr.KindNotFound, "NOT_FOUND", "resource not found"
	case fiber.StatusMethodNotAllowed:
		e.Code, e.Message = "METHOD_NOT_ALLOWED", "method not allowed"
	case fiber.StatusRequestEntityTooLarge:
		e.Kind, e.Code, e.Message = apperr.KindValidation, "PAYLOAD_TOO_LARGE", "request body too large"
	case fiber.StatusUnsupportedMediaType:
		e.Kind, e.Code, e.Message = apperr.KindValidation, "UNSUPPORTED_MEDIA_TYPE", "unsupported media type"
	default:
		e.Status, e.Code, e.Message = fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
	return e
}
