package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Dan9191/finapi/internal/middleware"
	"github.com/Dan9191/finapi/internal/models"
	"github.com/Dan9191/finapi/internal/service"
)

type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to a status code and a {"message"} body
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorResponse{Message: message})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, service.ErrStatementNotFound):
		return http.StatusNotFound, "Statement not found"
	case errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusBadRequest, "Insufficient funds"
	case errors.Is(err, service.ErrUserAlreadyExists):
		return http.StatusBadRequest, "User already exists"
	case errors.Is(err, service.ErrIncorrectCredentials):
		return http.StatusUnauthorized, "Incorrect email or password"
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "JWT invalid token!"
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// decodeAndValidate parses the JSON body into dst and runs its validate tags.
// Every failure is reported as a validation error.
func (h *Handler) decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &models.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &models.ValidationError{Field: fe.Field(), Reason: reasonFor(fe)}
		}
		return fmt.Errorf("failed to validate request: %w", err)
	}
	return nil
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed on %q", fe.Tag())
	}
}

// currentUser returns the id stored by the auth middleware
func currentUser(r *http.Request) (uuid.UUID, error) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, service.ErrInvalidToken
	}
	return userID, nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, &models.ValidationError{Field: name, Reason: "must be a UUID"}
	}
	return id, nil
}
