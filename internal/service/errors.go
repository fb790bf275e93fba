package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dan9191/finapi/internal/models"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrStatementNotFound    = errors.New("statement not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrIncorrectCredentials = errors.New("incorrect email or password")
	ErrInvalidToken         = errors.New("invalid token")

	// ErrValidation is shared with models so constructor failures match errors.Is
	ErrValidation = models.ErrValidation
)

// InsufficientFundsError reports the balance a debit was checked against
type InsufficientFundsError struct {
	UserID    uuid.UUID
	Balance   decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %s, requested %s", e.Balance.String(), e.Requested.String())
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// IsNotFound returns true if the error indicates a missing resource
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrStatementNotFound)
}

// IsClientError returns true if the error is due to the caller's input
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUserAlreadyExists)
}
