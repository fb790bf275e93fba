// Package memory is a process-local implementation of the repository interfaces.
// It backs STORAGE_DRIVER=memory and the service and handler tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dan9191/finapi/internal/models"
	"github.com/Dan9191/finapi/internal/repository"
)

// Store keeps users and statements in memory.
// mu guards the data; txMu serializes WithTx callers so a debit's balance check and its writes
// cannot interleave with another transaction.
type Store struct {
	mu         sync.RWMutex
	txMu       sync.Mutex
	users      map[uuid.UUID]models.User
	userOrder  []uuid.UUID
	emails     map[string]uuid.UUID
	statements []models.Statement
	seq        int64
	now        func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		users:  make(map[uuid.UUID]models.User),
		emails: make(map[string]uuid.UUID),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, exists := s.emails[key]; exists {
		return repository.ErrDuplicate
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now

	s.users[user.ID] = *user
	s.userOrder = append(s.userOrder, user.ID)
	s.emails[key] = user.ID
	return nil
}

func (s *Store) FindUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user := s.users[id]
	return &user, nil
}

func (s *Store) ListUserIDs(_ context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uuid.UUID, len(s.userOrder))
	copy(ids, s.userOrder)
	return ids, nil
}

func (s *Store) CreateStatement(_ context.Context, st *models.Statement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(st)
	return nil
}

func (s *Store) appendLocked(st *models.Statement) {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	s.seq++
	now := s.now()
	st.Seq = s.seq
	st.CreatedAt, st.UpdatedAt = now, now
	s.statements = append(s.statements, cloneStatement(*st))
}

func (s *Store) FindStatement(_ context.Context, id, ownerID uuid.UUID) (*models.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.statements {
		if st.ID == id && st.UserID == ownerID {
			found := cloneStatement(st)
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) ListStatementsForUser(_ context.Context, userID uuid.UUID) ([]models.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return filterForUser(s.statements, userID), nil
}

// WithTx runs fn with writes staged until it returns nil. Transactions run one at a time.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.StatementTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &storeTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range tx.pending {
		s.appendLocked(st)
	}
	return nil
}

// storeTx sees committed statements plus its own staged ones
type storeTx struct {
	store   *Store
	pending []*models.Statement
}

func (t *storeTx) CreateStatement(_ context.Context, st *models.Statement) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	t.pending = append(t.pending, st)
	return nil
}

func (t *storeTx) FindStatement(ctx context.Context, id, ownerID uuid.UUID) (*models.Statement, error) {
	for _, st := range t.pending {
		if st.ID == id && st.UserID == ownerID {
			found := cloneStatement(*st)
			return &found, nil
		}
	}
	return t.store.FindStatement(ctx, id, ownerID)
}

func (t *storeTx) ListStatementsForUser(ctx context.Context, userID uuid.UUID) ([]models.Statement, error) {
	committed, err := t.store.ListStatementsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	staged := make([]models.Statement, 0, len(t.pending))
	for _, st := range t.pending {
		staged = append(staged, *st)
	}
	return append(committed, filterForUser(staged, userID)...), nil
}

// LockUser only checks existence; txMu already serializes transactions
func (t *storeTx) LockUser(ctx context.Context, id uuid.UUID) error {
	_, err := t.store.FindUserByID(ctx, id)
	return err
}

func filterForUser(statements []models.Statement, userID uuid.UUID) []models.Statement {
	out := make([]models.Statement, 0)
	for _, st := range statements {
		if st.UserID == userID || (st.CounterpartyID != nil && *st.CounterpartyID == userID) {
			out = append(out, cloneStatement(st))
		}
	}
	return out
}

func cloneStatement(st models.Statement) models.Statement {
	if st.CounterpartyID != nil {
		id := *st.CounterpartyID
		st.CounterpartyID = &id
	}
	return st
}

var (
	_ repository.Ledger        = (*Store)(nil)
	_ repository.UserDirectory = (*Store)(nil)
	_ repository.StatementTx   = (*storeTx)(nil)
)
