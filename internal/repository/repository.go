package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Dan9191/finapi/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique constraint
	ErrDuplicate = errors.New("duplicate record")
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation
const uniqueViolation = "23505"

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository provides database operations
type Repository struct {
	db *sql.DB
	q  querier
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, q: db}
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	query := `
		INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`
	err := r.q.QueryRowContext(ctx, query, user.ID, user.Name, user.Email, user.PasswordHash).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("failed to create user: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByID retrieves a user by id
func (r *Repository) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1`
	return r.findUser(ctx, query, id)
}

// FindUserByEmail retrieves a user by email
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM users
		WHERE lower(email) = lower($1)`
	return r.findUser(ctx, query, email)
}

func (r *Repository) findUser(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	err := r.q.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// ListUserIDs returns the ids of all registered users
func (r *Repository) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return ids, nil
}

// CreateStatement appends a statement. Statements are never updated or deleted.
func (r *Repository) CreateStatement(ctx context.Context, st *models.Statement) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	var counterparty uuid.NullUUID
	if st.CounterpartyID != nil {
		counterparty = uuid.NullUUID{UUID: *st.CounterpartyID, Valid: true}
	}
	query := `
		INSERT INTO statements (id, user_id, counterparty_id, type, direction, amount, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING seq, created_at, updated_at`
	err := r.q.QueryRowContext(ctx, query,
		st.ID, st.UserID, counterparty, string(st.Type), string(st.Direction), st.Amount, st.Description,
	).Scan(&st.Seq, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create statement: %w", err)
	}
	return nil
}

// FindStatement returns the statement only if it is owned by ownerID
func (r *Repository) FindStatement(ctx context.Context, id, ownerID uuid.UUID) (*models.Statement, error) {
	query := `
		SELECT id, user_id, counterparty_id, type, direction, amount, description, seq, created_at, updated_at
		FROM statements
		WHERE id = $1 AND user_id = $2`
	rows, err := r.q.QueryContext(ctx, query, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find statement: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to find statement: %w", err)
		}
		return nil, ErrNotFound
	}
	st, err := scanStatement(rows)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListStatementsForUser returns every statement the user owns or is counterparty to, in insertion order
func (r *Repository) ListStatementsForUser(ctx context.Context, userID uuid.UUID) ([]models.Statement, error) {
	query := `
		SELECT id, user_id, counterparty_id, type, direction, amount, description, seq, created_at, updated_at
		FROM statements
		WHERE user_id = $1 OR counterparty_id = $1
		ORDER BY seq`
	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list statements: %w", err)
	}
	defer rows.Close()

	statements := make([]models.Statement, 0)
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		statements = append(statements, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list statements: %w", err)
	}
	return statements, nil
}

func scanStatement(rows *sql.Rows) (models.Statement, error) {
	var (
		st           models.Statement
		counterparty uuid.NullUUID
		opType       string
		direction    string
	)
	err := rows.Scan(&st.ID, &st.UserID, &counterparty, &opType, &direction, &st.Amount, &st.Description,
		&st.Seq, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return models.Statement{}, fmt.Errorf("failed to scan statement: %w", err)
	}
	if counterparty.Valid {
		id := counterparty.UUID
		st.CounterpartyID = &id
	}
	st.Type = models.OperationType(opType)
	st.Direction = models.Direction(direction)
	return st, nil
}

// LockUser takes a row lock on the user until the surrounding transaction ends.
// NO KEY UPDATE does not conflict with the KEY SHARE locks taken by statement foreign key checks.
// Outside WithTx the lock is released immediately.
func (r *Repository) LockUser(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := r.q.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR NO KEY UPDATE`, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}
	return nil
}

// WithTx runs fn inside a database transaction. fn's store shares the transaction;
// a returned error rolls everything back.
func (r *Repository) WithTx(ctx context.Context, fn func(tx StatementTx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Repository{db: r.db, q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var (
	_ Ledger        = (*Repository)(nil)
	_ UserDirectory = (*Repository)(nil)
)
