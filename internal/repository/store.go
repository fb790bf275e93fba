package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/Dan9191/finapi/internal/models"
)

// UserDirectory looks up and registers users.
// Lookups return ErrNotFound when nothing matches.
type UserDirectory interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
}

// StatementStore is the append-only statement log. There is no update or delete.
type StatementStore interface {
	// CreateStatement assigns ID (if zero), Seq and timestamps.
	CreateStatement(ctx context.Context, st *models.Statement) error

	// FindStatement returns ErrNotFound when the statement is missing or owned by someone else.
	FindStatement(ctx context.Context, id, ownerID uuid.UUID) (*models.Statement, error)

	// ListStatementsForUser returns statements where the user is owner or counterparty, in insertion order.
	ListStatementsForUser(ctx context.Context, userID uuid.UUID) ([]models.Statement, error)
}

// StatementTx is a StatementStore bound to an open transaction.
type StatementTx interface {
	StatementStore

	// LockUser serializes debits against the user until the transaction ends.
	LockUser(ctx context.Context, id uuid.UUID) error
}

// Ledger is a StatementStore that can run atomic units of work.
type Ledger interface {
	StatementStore

	// WithTx commits if fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx StatementTx) error) error
}
