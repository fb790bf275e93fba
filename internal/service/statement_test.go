package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/finapi/internal/models"
	"github.com/Dan9191/finapi/internal/repository"
	"github.com/Dan9191/finapi/internal/repository/memory"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []models.Statement
	err   error
}

func (n *recordingNotifier) NotifyStatement(_ context.Context, _ models.User, st models.Statement) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, st)
	return n.err
}

type recordingPublisher struct {
	events []models.Statement
}

func (p *recordingPublisher) PublishStatementCreated(_ context.Context, st models.Statement) error {
	p.events = append(p.events, st)
	return nil
}

func newStatementService(t *testing.T, opts ...Option) (*StatementService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewStatementService(store, store, quietLogger(), opts...), store
}

func createUser(t *testing.T, store *memory.Store, name string) uuid.UUID {
	t.Helper()
	u := &models.User{Name: name, Email: name + "@example.com", PasswordHash: "x"}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u.ID
}

func TestDeposit_SumOfDeposits(t *testing.T) {
	svc, store := newStatementService(t)
	ctx := context.Background()
	user := createUser(t, store, "alice")

	total := decimal.Zero
	for _, amount := range []string{"10", "0.01", "250.99", "1"} {
		st, err := svc.Deposit(ctx, user, dec(amount), "deposit "+amount)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, st.ID)
		assert.Equal(t, models.Deposit, st.Type)
		total = total.Add(dec(amount))
	}

	res, err := svc.GetBalance(ctx, user, false)
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(total))
	assert.Nil(t, res.Statement)
}

func TestDeposit_UnknownUser(t *testing.T) {
	svc, _ := newStatementService(t)

	_, err := svc.Deposit(context.Background(), uuid.New(), dec("100"), "Empréstimo")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreateStatement_Validation(t *testing.T) {
	svc, store := newStatementService(t)
	ctx := context.Background()
	user := createUser(t, store, "alice")

	tests := []struct {
		name   string
		params CreateStatementParams
	}{
		{"zero amount", CreateStatementParams{UserID: user, Type: models.Deposit, Amount: decimal.Zero, Description: "x"}},
		{"negative amount", CreateStatementParams{UserID: user, Type: models.Withdraw, Amount: dec("-1"), Description: "x"}},
		{"missing description", CreateStatementParams{UserID: user, Type: models.Deposit, Amount: dec("1")}},
		{"transfer without receiver", CreateStatementParams{UserID: user, Type: models.Transfer, Amount: dec("1"), Description: "x"}},
		{"unknown type", CreateStatementParams{UserID: user, Type: "refund", Amount: dec("1"), Description: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateStatement(ctx, tt.params)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	res, err := svc.GetBalance(ctx, user, true)
	require.NoError(t, err)
	assert.Empty(t, res.Statement)
}

func TestCreateStatement_UserCheckedBeforeValidation(t *testing.T) {
	svc, _ := newStatementService(t)

	_, err := svc.CreateStatement(context.Background(), CreateStatementParams{
		UserID: uuid.New(), Type: models.Deposit, Amount: decimal.Zero,
	})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestWithdraw(t *testing.T) {
	tests := []struct {
		name     string
		deposit  string
		withdraw string
		wantErr  bool
		balance  string
	}{
		{"partial", "100", "30", false, "70"},
		{"exact", "100", "100", false, "0"},
		{"overdraw", "100", "150", true, "100"},
		{"overdraw by a cent", "10.00", "10.01", true, "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newStatementService(t)
			ctx := context.Background()
			user := createUser(t, store, "alice")

			_, err := svc.Deposit(ctx, user, dec(tt.deposit), "Empréstimo")
			require.NoError(t, err)

			_, err = svc.Withdraw(ctx, user, dec(tt.withdraw), "Pizza")
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInsufficientFunds)
				var ife *InsufficientFundsError
				require.True(t, errors.As(err, &ife))
				assert.True(t, ife.Balance.Equal(dec(tt.deposit)))
			} else {
				require.NoError(t, err)
			}

			res, err := svc.GetBalance(ctx, user, false)
			require.NoError(t, err)
			assert.True(t, res.Balance.Equal(dec(tt.balance)), "balance %s", res.Balance)
		})
	}
}

func TestGetBalance_HistoryScenario(t *testing.T) {
	svc, store := newStatementService(t)
	ctx := context.Background()
	user := createUser(t, store, "alice")

	_, err := svc.Deposit(ctx, user, dec("100"), "d1")
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, user, dec("30"), "d2")
	require.NoError(t, err)

	res, err := svc.GetBalance(ctx, user, true)
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(dec("70")))
	require.Len(t, res.Statement, 2)
	assert.Equal(t, models.Deposit, res.Statement[0].Type)
	assert.True(t, res.Statement[0].Amount.Equal(dec("100")))
	assert.Equal(t, models.Withdraw, res.Statement[1].Type)
	assert.True(t, res.Statement[1].Amount.Equal(dec("30")))
}

func TestGetBalance_UnknownUser(t *testing.T) {
	svc, _ := newStatementService(t)

	_, err := svc.GetBalance(context.Background(), uuid.New(), true)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestTransfer(t *testing.T) {
	svc, store := newStatementService(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")

	_, err := svc.Deposit(ctx, alice, dec("100"), "salary")
	require.NoError(t, err)

	legs, err := svc.Transfer(ctx, alice, bob, dec("40"), "rent")
	require.NoError(t, err)
	require.Len(t, legs, 2)

	in, out := legs[0], legs[1]
	assert.Equal(t, bob, in.UserID)
	assert.Equal(t, alice, *in.CounterpartyID)
	assert.Equal(t, models.DirectionIn, in.Direction)
	assert.Equal(t, alice, out.UserID)
	assert.Equal(t, bob, *out.CounterpartyID)
	assert.Equal(t, models.DirectionOut, out.Direction)
	assert.Less(t, in.Seq, out.Seq)

	aliceBalance, err := svc.GetBalance(ctx, alice, true)
	require.NoError(t, err)
	assert.True(t, aliceBalance.Balance.Equal(dec("60")))

	bobBalance, err := svc.GetBalance(ctx, bob, true)
	require.NoError(t, err)
	assert.True(t, bobBalance.Balance.Equal(dec("40")))

	outgoing := 0
	for _, st := range aliceBalance.Statement {
		if st.Type == models.Transfer && st.UserID == alice {
			outgoing++
			assert.Equal(t, bob, *st.CounterpartyID)
		}
	}
	assert.Equal(t, 1, outgoing)

	incoming := 0
	for _, st := range bobBalance.Statement {
		if st.Type == models.Transfer && st.UserID == bob {
			incoming++
			assert.Equal(t, alice, *st.CounterpartyID)
		}
	}
	assert.Equal(t, 1, incoming)
}

func TestTransfer_InsufficientFundsWritesNothing(t *testing.T) {
	svc, store := newStatementService(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")

	_, err := svc.Deposit(ctx, alice, dec("10"), "salary")
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, alice, bob, dec("40"), "rent")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	aliceEntries, err := store.ListStatementsForUser(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, aliceEntries, 1)

	bobEntries, err := store.ListStatementsForUser(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, bobEntries)
}

func TestTransfer_UnknownReceiver(t *testing.T) {
	svc, store := newStatementService(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")

	_, err := svc.Deposit(ctx, alice, dec("100"), "salary")
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, alice, uuid.New(), dec("10"), "rent")
	require.ErrorIs(t, err, ErrUserNotFound)

	entries, err := store.ListStatementsForUser(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTransfer_ReceivedFundsCanBeSpent(t *testing.T) {
	svc, store := newStatementService(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")

	_, err := svc.Deposit(ctx, alice, dec("100"), "salary")
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, alice, bob, dec("40"), "rent")
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, bob, dec("40"), "cash")
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, bob, dec("0.01"), "cash")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestGetStatement_Ownership(t *testing.T) {
	svc, store := newStatementService(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")

	st, err := svc.Deposit(ctx, alice, dec("100"), "deposit test")
	require.NoError(t, err)

	got, err := svc.GetStatement(ctx, st.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, st.ID, got.ID)
	assert.Equal(t, "deposit test", got.Description)

	_, err = svc.GetStatement(ctx, st.ID, bob)
	assert.ErrorIs(t, err, ErrStatementNotFound)

	_, err = svc.GetStatement(ctx, uuid.New(), alice)
	assert.ErrorIs(t, err, ErrStatementNotFound)

	_, err = svc.GetStatement(ctx, st.ID, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestWithdraw_ConcurrentRequestsNeverOverdraw(t *testing.T) {
	svc, store := newStatementService(t)
	ctx := context.Background()
	user := createUser(t, store, "alice")

	_, err := svc.Deposit(ctx, user, dec("100"), "salary")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Withdraw(ctx, user, dec("10"), "coffee")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientFunds):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 15, rejected)

	res, err := svc.GetBalance(ctx, user, false)
	require.NoError(t, err)
	assert.True(t, res.Balance.IsZero())
}

func TestSideChannels(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	publisher := &recordingPublisher{}
	svc, store := newStatementService(t, WithNotifier(notifier), WithEventPublisher(publisher))
	ctx := context.Background()
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")

	_, err := svc.Deposit(ctx, alice, dec("100"), "salary")
	require.NoError(t, err, "notifier failure must not fail the deposit")

	_, err = svc.Transfer(ctx, alice, bob, dec("5"), "gift")
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, alice, dec("500"), "yacht")
	require.Error(t, err)

	assert.Len(t, notifier.calls, 3)
	require.Len(t, publisher.events, 3)
	assert.Equal(t, models.Deposit, publisher.events[0].Type)
	assert.Equal(t, models.DirectionIn, publisher.events[1].Direction)
	assert.Equal(t, models.DirectionOut, publisher.events[2].Direction)
}

type failingLedger struct {
	repository.Ledger
}

func (f failingLedger) WithTx(context.Context, func(repository.StatementTx) error) error {
	return errors.New("connection refused")
}

func TestWithdraw_StoreFailureIsNotClientError(t *testing.T) {
	store := memory.NewStore()
	svc := NewStatementService(store, failingLedger{Ledger: store}, quietLogger())
	user := createUser(t, store, "alice")

	_, err := svc.Withdraw(context.Background(), user, dec("1"), "x")
	require.Error(t, err)
	assert.False(t, IsClientError(err))
	assert.False(t, IsNotFound(err))
}
