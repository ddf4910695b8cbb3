package handlers

import (
	"errors"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/gateway"
	"toko-commerce/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
)

// ContentTypeProblemJSON is the media type for Problem Details responses.
const ContentTypeProblemJSON = "application/problem+json"

// Problem type URIs.
const (
	TypeValidation        = "/problems/validation-error"
	TypeNotFound          = "/problems/not-found"
	TypeConflict          = "/problems/conflict"
	TypeInvalidTransition = "/problems/invalid-transition"
	TypeUnauthorized      = "/problems/unauthorized"
	TypeForbidden         = "/problems/forbidden"
	TypeBadGateway        = "/problems/payment-gateway"
	TypeInternal          = "/problems/internal-error"
	TypeHTTP              = "/problems/http"
)

// ProblemDetail is an RFC 7807 problem document.
type ProblemDetail struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// ProblemFor maps an error onto the problem it is reported as.
func ProblemFor(err error) ProblemDetail {
	var (
		fiberErr      *fiber.Error
		validationErr *apperrors.ValidationError
	)
	switch {
	case errors.As(err, &fiberErr):
		return ProblemDetail{Type: problemTypeFor(fiberErr.Code), Title: statusTitle(fiberErr.Code), Status: fiberErr.Code, Detail: fiberErr.Message}
	case errors.As(err, &validationErr):
		return ProblemDetail{Type: TypeValidation, Title: "Validation Error", Status: fiber.StatusBadRequest, Detail: err.Error(), Errors: validationErr.Fields}
	case errors.Is(err, apperrors.ErrValidation):
		return ProblemDetail{Type: TypeValidation, Title: "Validation Error", Status: fiber.StatusBadRequest, Detail: err.Error()}
	case errors.Is(err, apperrors.ErrNotFound):
		return ProblemDetail{Type: TypeNotFound, Title: "Resource Not Found", Status: fiber.StatusNotFound, Detail: err.Error()}
	case errors.Is(err, apperrors.ErrInvalidTransition):
		return ProblemDetail{Type: TypeInvalidTransition, Title: "Invalid State Transition", Status: fiber.StatusConflict, Detail: err.Error()}
	case errors.Is(err, apperrors.ErrConflict):
		return ProblemDetail{Type: TypeConflict, Title: "Conflict", Status: fiber.StatusConflict, Detail: err.Error()}
	case errors.Is(err, services.ErrInvalidCredentials):
		return ProblemDetail{Type: TypeUnauthorized, Title: "Authentication Failed", Status: fiber.StatusUnauthorized, Detail: err.Error()}
	case errors.Is(err, gateway.ErrGateway):
		return ProblemDetail{Type: TypeBadGateway, Title: "Payment Gateway Error", Status: fiber.StatusBadGateway, Detail: err.Error()}
	default:
		return ProblemDetail{Type: TypeInternal, Title: "Internal Server Error", Status: fiber.StatusInternalServerError}
	}
}

// ErrorHandler renders every error returned by a handler as problem+json.
// Internal failures are logged and their details withheld from the client.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		problem := ProblemFor(err)
		problem.Instance = c.Path()
		if problem.Status >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", problem.Status),
				zap.Error(err))
		}
		return c.Status(problem.Status).JSON(problem, ContentTypeProblemJSON)
	}
}

func problemTypeFor(status int) string {
	switch status {
	case fiber.StatusUnauthorized:
		return TypeUnauthorized
	case fiber.StatusForbidden:
		return TypeForbidden
	case fiber.StatusNotFound:
		return TypeNotFound
	case fiber.StatusBadRequest:
		return TypeValidation
	default:
		return TypeHTTP
	}
}

func statusTitle(status int) string {
	if msg := utils.StatusMessage(status); msg != "" {
		return msg
	}
	return "Error"
}
