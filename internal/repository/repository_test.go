package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/finapi/internal/models"
)

var statementColumns = []string{
	"id", "user_id", "counterparty_id", "type", "direction", "amount", "description", "seq", "created_at", "updated_at",
}

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestRepository_CreateUser(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now().UTC()

	user := &models.User{Name: "Alice", Email: "alice@example.com", PasswordHash: "hash"}
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "Alice", "alice@example.com", "hash").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	require.NoError(t, repo.CreateUser(context.Background(), user))
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, now, user.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateUser_Duplicate(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: uniqueViolation, Message: "duplicate key value violates unique constraint"})

	err := repo.CreateUser(context.Background(), &models.User{Name: "Bob", Email: "bob@example.com"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestRepository_FindUserByID_NotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectQuery(`FROM users`).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "created_at", "updated_at"}))

	user, err := repo.FindUserByID(context.Background(), id)
	assert.Nil(t, user)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_FindUserByEmail(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`WHERE lower\(email\) = lower\(\$1\)`).WithArgs("carol@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "created_at", "updated_at"}).
			AddRow(id.String(), "Carol", "carol@example.com", "hash", now, now))

	user, err := repo.FindUserByEmail(context.Background(), "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "Carol", user.Name)
}

func TestRepository_CreateStatement(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now().UTC()
	owner := uuid.New()

	st, err := models.NewDeposit(owner, decimal.NewFromInt(100), "salary")
	require.NoError(t, err)

	mock.ExpectQuery(`INSERT INTO statements`).
		WithArgs(sqlmock.AnyArg(), owner, nil, "deposit", "", sqlmock.AnyArg(), "salary").
		WillReturnRows(sqlmock.NewRows([]string{"seq", "created_at", "updated_at"}).AddRow(int64(7), now, now))

	require.NoError(t, repo.CreateStatement(context.Background(), &st))
	assert.NotEqual(t, uuid.Nil, st.ID)
	assert.Equal(t, int64(7), st.Seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FindStatement(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now().UTC()
	id, owner, other := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(`FROM statements`).WithArgs(id, owner).
		WillReturnRows(sqlmock.NewRows(statementColumns).
			AddRow(id.String(), owner.String(), other.String(), "transfer", "out", "40.00", "rent", int64(3), now, now))

	st, err := repo.FindStatement(context.Background(), id, owner)
	require.NoError(t, err)
	assert.Equal(t, models.Transfer, st.Type)
	assert.Equal(t, models.DirectionOut, st.Direction)
	require.NotNil(t, st.CounterpartyID)
	assert.Equal(t, other, *st.CounterpartyID)
	assert.True(t, st.Amount.Equal(decimal.NewFromInt(40)))

	mock.ExpectQuery(`FROM statements`).WithArgs(id, other).
		WillReturnRows(sqlmock.NewRows(statementColumns))

	_, err = repo.FindStatement(context.Background(), id, other)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListStatementsForUser(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now().UTC()
	user := uuid.New()

	mock.ExpectQuery(`WHERE user_id = \$1 OR counterparty_id = \$1`).WithArgs(user).
		WillReturnRows(sqlmock.NewRows(statementColumns).
			AddRow(uuid.NewString(), user.String(), nil, "deposit", "", "100.00", "d1", int64(1), now, now).
			AddRow(uuid.NewString(), user.String(), nil, "withdraw", "", "30.00", "d2", int64(2), now, now))

	statements, err := repo.ListStatementsForUser(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, statements, 2)
	assert.Equal(t, models.Deposit, statements[0].Type)
	assert.Nil(t, statements[0].CounterpartyID)
	assert.Equal(t, models.Withdraw, statements[1].Type)
}

func TestRepository_WithTx_Commit(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now().UTC()
	sender, receiver := uuid.New(), uuid.New()

	in, out, err := models.NewTransfer(sender, receiver, decimal.NewFromInt(40), "rent")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM users WHERE id = \$1 FOR NO KEY UPDATE`).WithArgs(sender).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(sender.String()))
	mock.ExpectQuery(`INSERT INTO statements`).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "created_at", "updated_at"}).AddRow(int64(1), now, now))
	mock.ExpectQuery(`INSERT INTO statements`).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "created_at", "updated_at"}).AddRow(int64(2), now, now))
	mock.ExpectCommit()

	err = repo.WithTx(context.Background(), func(tx StatementTx) error {
		if err := tx.LockUser(context.Background(), sender); err != nil {
			return err
		}
		if err := tx.CreateStatement(context.Background(), &in); err != nil {
			return err
		}
		return tx.CreateStatement(context.Background(), &out)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), in.Seq)
	assert.Equal(t, int64(2), out.Seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_WithTx_RollbackOnSecondLeg(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now().UTC()
	sender, receiver := uuid.New(), uuid.New()

	in, out, err := models.NewTransfer(sender, receiver, decimal.NewFromInt(40), "rent")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO statements`).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "created_at", "updated_at"}).AddRow(int64(1), now, now))
	mock.ExpectQuery(`INSERT INTO statements`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = repo.WithTx(context.Background(), func(tx StatementTx) error {
		if err := tx.CreateStatement(context.Background(), &in); err != nil {
			return err
		}
		return tx.CreateStatement(context.Background(), &out)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_LockUser_Missing(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectQuery(`FOR NO KEY UPDATE`).WithArgs(id).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	assert.ErrorIs(t, repo.LockUser(context.Background(), id), ErrNotFound)
}

func TestRepository_Migrate(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Migrate(context.Background()))
	assert.Contains(t, schema, "ON users (lower(email))")
	require.NoError(t, mock.ExpectationsWereMet())
}
