package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OperationType is the kind of movement a statement records
type OperationType string

const (
	Deposit  OperationType = "deposit"
	Withdraw OperationType = "withdraw"
	Transfer OperationType = "transfer"
)

// Valid reports whether t is one of the known operation types
func (t OperationType) Valid() bool {
	switch t {
	case Deposit, Withdraw, Transfer:
		return true
	}
	return false
}

// Direction tells the two legs of a transfer apart. Empty for deposits and withdrawals.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Amounts are stored as NUMERIC(14, 2)
const amountScale = 2

var maxAmount = decimal.New(1, 12)

// ErrValidation is returned (wrapped) when a statement or its inputs are malformed
var ErrValidation = errors.New("validation failed")

// ValidationError names the offending field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Statement is one immutable ledger entry filed under UserID.
// Transfers are recorded as two statements, one per party, each pointing at the other via CounterpartyID.
type Statement struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	CounterpartyID *uuid.UUID      `json:"counterparty_id,omitempty"`
	Type           OperationType   `json:"type"`
	Direction      Direction       `json:"direction,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	Seq            int64           `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewDeposit builds a validated deposit statement
func NewDeposit(userID uuid.UUID, amount decimal.Decimal, description string) (Statement, error) {
	s := Statement{UserID: userID, Type: Deposit, Amount: amount, Description: strings.TrimSpace(description)}
	return s, s.Validate()
}

// NewWithdrawal builds a validated withdrawal statement
func NewWithdrawal(userID uuid.UUID, amount decimal.Decimal, description string) (Statement, error) {
	s := Statement{UserID: userID, Type: Withdraw, Amount: amount, Description: strings.TrimSpace(description)}
	return s, s.Validate()
}

// NewTransfer builds both legs of a transfer: the incoming leg owned by the receiver
// and the outgoing leg owned by the sender.
func NewTransfer(senderID, receiverID uuid.UUID, amount decimal.Decimal, description string) (in, out Statement, err error) {
	description = strings.TrimSpace(description)
	sender, receiver := senderID, receiverID
	in = Statement{
		UserID:         receiverID,
		CounterpartyID: &sender,
		Type:           Transfer,
		Direction:      DirectionIn,
		Amount:         amount,
		Description:    description,
	}
	out = Statement{
		UserID:         senderID,
		CounterpartyID: &receiver,
		Type:           Transfer,
		Direction:      DirectionOut,
		Amount:         amount,
		Description:    description,
	}
	if err = in.Validate(); err != nil {
		return Statement{}, Statement{}, err
	}
	if err = out.Validate(); err != nil {
		return Statement{}, Statement{}, err
	}
	return in, out, nil
}

// Validate checks the per-type invariants
func (s Statement) Validate() error {
	if s.UserID == uuid.Nil {
		return &ValidationError{Field: "user_id", Reason: "is required"}
	}
	if !s.Type.Valid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown operation %q", s.Type)}
	}
	if !s.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if !s.Amount.Equal(s.Amount.Round(amountScale)) {
		return &ValidationError{Field: "amount", Reason: "must have at most 2 decimal places"}
	}
	if s.Amount.GreaterThanOrEqual(maxAmount) {
		return &ValidationError{Field: "amount", Reason: "must be less than 1000000000000"}
	}
	if strings.TrimSpace(s.Description) == "" {
		return &ValidationError{Field: "description", Reason: "is required"}
	}

	if s.Type != Transfer {
		if s.CounterpartyID != nil {
			return &ValidationError{Field: "counterparty_id", Reason: fmt.Sprintf("not allowed for %s", s.Type)}
		}
		if s.Direction != "" {
			return &ValidationError{Field: "direction", Reason: fmt.Sprintf("not allowed for %s", s.Type)}
		}
		return nil
	}

	if s.CounterpartyID == nil || *s.CounterpartyID == uuid.Nil {
		return &ValidationError{Field: "counterparty_id", Reason: "is required for transfer"}
	}
	if *s.CounterpartyID == s.UserID {
		return &ValidationError{Field: "counterparty_id", Reason: "cannot transfer to self"}
	}
	if s.Direction != DirectionIn && s.Direction != DirectionOut {
		return &ValidationError{Field: "direction", Reason: fmt.Sprintf("unknown transfer direction %q", s.Direction)}
	}
	return nil
}

// IsDebit reports whether the statement takes funds from its owner
func (s Statement) IsDebit() bool {
	return s.Type == Withdraw || (s.Type == Transfer && s.Direction == DirectionOut)
}
