package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/stay/internal/domain"
)

// Envelope is the standard API response wrapper.
type Envelope struct {
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
}

// APIError represents an error in the API response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details []FieldError   `json:"details,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// FieldError represents a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// JSON writes a JSON response with the standard envelope.
func JSON(c echo.Context, status int, data any) error {
	return c.JSON(status, Envelope{Data: data})
}

// HTTPErrorHandler is the global error handler for echo.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, apiErr := mapError(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		slog.ErrorContext(c.Request().Context(), "unhandled error",
			"error", err,
			"method", c.Request().Method,
			"path", c.Path(),
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		)
	}
	if jsonErr := c.JSON(status, Envelope{Error: &apiErr}); jsonErr != nil {
		slog.Error("failed to send error response", "error", jsonErr)
	}
}

func mapError(err error) (int, APIError) {
	// Handle echo's own HTTP errors (404, 405, etc.)
	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		return echoErr.Code, APIError{
			Code:    http.StatusText(echoErr.Code),
			Message: msg,
		}
	}

	var insufficient *domain.InsufficientPointsError
	var validationErr *domain.ValidationError

	switch {
	case errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity, APIError{
			Code:    "insufficient_points",
			Message: "The point balance is too low",
			Meta: map[string]any{
				"balance":   insufficient.Balance,
				"requested": insufficient.Requested,
			},
		}
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, APIError{
			Code:    "validation_error",
			Message: "Validation failed",
			Details: []FieldError{
				{Field: validationErr.Field, Message: validationErr.Message},
			},
		}
	case errors.Is(err, domain.ErrTokenExchangeFailed),
		errors.Is(err, domain.ErrProfileFetchFailed):
		return http.StatusBadGateway, APIError{
			Code:    "login_failed",
			Message: "The identity provider could not complete the login",
		}
	case errors.Is(err, domain.ErrTokenExpired):
		return http.StatusUnauthorized, APIError{
			Code:    "token_expired",
			Message: "The token has expired",
		}
	case domain.IsTokenError(err):
		return http.StatusUnauthorized, APIError{
			Code:    "invalid_token",
			Message: "The token is invalid",
		}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, APIError{
			Code:    "unauthorized",
			Message: "Authentication is required",
		}
	case errors.Is(err, domain.ErrAccountNotActive):
		return http.StatusForbidden, APIError{
			Code:    "account_not_active",
			Message: "The account is deactivated",
		}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, APIError{
			Code:    "forbidden",
			Message: "You do not have permission to perform this action",
		}
	case errors.Is(err, domain.ErrMemberNotDeleted),
		errors.Is(err, domain.ErrMemberDeleted),
		errors.Is(err, domain.ErrAlreadyBusinessOwner):
		return http.StatusConflict, APIError{
			Code:    "member_state_conflict",
			Message: "The member is not in a state that allows this action",
		}
	case errors.Is(err, domain.ErrDuplicateEmail):
		return http.StatusConflict, APIError{
			Code:    "duplicate_email",
			Message: "The email is already registered",
		}
	case errors.Is(err, domain.ErrDuplicateNickname):
		return http.StatusConflict, APIError{
			Code:    "duplicate_nickname",
			Message: "The nickname is already taken",
		}
	case errors.Is(err, domain.ErrDuplicateIdentity):
		return http.StatusConflict, APIError{
			Code:    "duplicate_identity",
			Message: "The external account is already linked",
		}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, APIError{
			Code:    "conflict",
			Message: "The resource already exists or conflicts with current state",
		}
	case errors.Is(err, domain.ErrUnsupportedProvider):
		return http.StatusBadRequest, APIError{
			Code:    "unsupported_provider",
			Message: "The login provider is not supported",
		}
	case errors.Is(err, domain.ErrInvalidPointAmount),
		errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, APIError{
			Code:    "invalid_input",
			Message: "The request body is invalid",
		}
	case errors.Is(err, domain.ErrSignupExpired):
		return http.StatusGone, APIError{
			Code:    "signup_expired",
			Message: "The signup session has expired, please log in again",
		}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "The requested resource was not found",
		}
	default:
		return http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "An unexpected error occurred",
		}
	}
}
