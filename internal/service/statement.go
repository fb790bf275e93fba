package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/finapi/internal/models"
	"github.com/Dan9191/finapi/internal/repository"
)

// Notifier tells a user about a statement filed under their account
type Notifier interface {
	NotifyStatement(ctx context.Context, user models.User, st models.Statement) error
}

// EventPublisher broadcasts created statements to other systems
type EventPublisher interface {
	PublishStatementCreated(ctx context.Context, st models.Statement) error
}

// StatementService creates and reads ledger statements
type StatementService struct {
	users     repository.UserDirectory
	ledger    repository.Ledger
	calc      *BalanceCalculator
	log       *logrus.Logger
	notifier  Notifier
	publisher EventPublisher
}

// Option configures optional StatementService collaborators
type Option func(*StatementService)

// WithNotifier sends a notification for every created statement
func WithNotifier(n Notifier) Option {
	return func(s *StatementService) { s.notifier = n }
}

// WithEventPublisher publishes an event for every created statement
func WithEventPublisher(p EventPublisher) Option {
	return func(s *StatementService) { s.publisher = p }
}

// NewStatementService initializes a new statement service
func NewStatementService(users repository.UserDirectory, ledger repository.Ledger, log *logrus.Logger, opts ...Option) *StatementService {
	s := &StatementService{
		users:  users,
		ledger: ledger,
		calc:   NewBalanceCalculator(log),
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateStatementParams describes a statement to create.
// ReceiverID is required for transfers, where UserID is the sender.
type CreateStatementParams struct {
	UserID      uuid.UUID
	Type        models.OperationType
	Amount      decimal.Decimal
	Description string
	ReceiverID  *uuid.UUID
}

// CreateStatement dispatches on Type. Transfers return the receiver's incoming leg followed by
// the sender's outgoing leg; other types return a single statement.
func (s *StatementService) CreateStatement(ctx context.Context, p CreateStatementParams) ([]models.Statement, error) {
	switch p.Type {
	case models.Deposit:
		st, err := s.Deposit(ctx, p.UserID, p.Amount, p.Description)
		if err != nil {
			return nil, err
		}
		return []models.Statement{*st}, nil
	case models.Withdraw:
		st, err := s.Withdraw(ctx, p.UserID, p.Amount, p.Description)
		if err != nil {
			return nil, err
		}
		return []models.Statement{*st}, nil
	case models.Transfer:
		if p.ReceiverID == nil {
			return nil, &models.ValidationError{Field: "receiver_id", Reason: "is required for transfer"}
		}
		return s.Transfer(ctx, p.UserID, *p.ReceiverID, p.Amount, p.Description)
	default:
		return nil, &models.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown operation %q", p.Type)}
	}
}

// Deposit credits the user. Deposits never need a balance check.
func (s *StatementService) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (*models.Statement, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	st, err := models.NewDeposit(userID, amount, description)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.CreateStatement(ctx, &st); err != nil {
		return nil, err
	}

	s.log.Infof("Deposit %s of %s recorded for user %s", st.ID, st.Amount.String(), userID)
	s.afterCommit(ctx, *user, st)
	return &st, nil
}

// Withdraw debits the user if the current balance covers amount
func (s *StatementService) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (*models.Statement, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	st, err := models.NewWithdrawal(userID, amount, description)
	if err != nil {
		return nil, err
	}

	err = s.ledger.WithTx(ctx, func(tx repository.StatementTx) error {
		if err := s.ensureFunds(ctx, tx, userID, amount); err != nil {
			return err
		}
		return tx.CreateStatement(ctx, &st)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("Withdrawal %s of %s recorded for user %s", st.ID, st.Amount.String(), userID)
	s.afterCommit(ctx, *user, st)
	return &st, nil
}

// Transfer moves amount from sender to receiver as two statements written in one transaction
func (s *StatementService) Transfer(ctx context.Context, senderID, receiverID uuid.UUID, amount decimal.Decimal, description string) ([]models.Statement, error) {
	sender, err := s.findUser(ctx, senderID)
	if err != nil {
		return nil, err
	}
	in, out, err := models.NewTransfer(senderID, receiverID, amount, description)
	if err != nil {
		return nil, err
	}
	receiver, err := s.findUser(ctx, receiverID)
	if err != nil {
		return nil, err
	}

	err = s.ledger.WithTx(ctx, func(tx repository.StatementTx) error {
		if err := s.ensureFunds(ctx, tx, senderID, amount); err != nil {
			return err
		}
		if err := tx.CreateStatement(ctx, &in); err != nil {
			return err
		}
		return tx.CreateStatement(ctx, &out)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("Transfer of %s recorded from user %s to user %s (legs %s, %s)",
		amount.String(), senderID, receiverID, in.ID, out.ID)
	s.afterCommit(ctx, *receiver, in)
	s.afterCommit(ctx, *sender, out)
	return []models.Statement{in, out}, nil
}

// ensureFunds locks the debited user and compares the replayed balance against amount.
// It must run inside the transaction that writes the debit.
func (s *StatementService) ensureFunds(ctx context.Context, tx repository.StatementTx, userID uuid.UUID, amount decimal.Decimal) error {
	if err := tx.LockUser(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	statements, err := tx.ListStatementsForUser(ctx, userID)
	if err != nil {
		return err
	}
	balance := s.calc.Calculate(userID, statements)
	if amount.GreaterThan(balance) {
		return &InsufficientFundsError{UserID: userID, Balance: balance, Requested: amount}
	}
	return nil
}

// GetStatement returns the statement only if userID owns it
func (s *StatementService) GetStatement(ctx context.Context, statementID, userID uuid.UUID) (*models.Statement, error) {
	if _, err := s.findUser(ctx, userID); err != nil {
		return nil, err
	}
	st, err := s.ledger.FindStatement(ctx, statementID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrStatementNotFound
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// GetBalance replays the user's statements. History, in insertion order, is included only when requested.
func (s *StatementService) GetBalance(ctx context.Context, userID uuid.UUID, withHistory bool) (*models.BalanceResult, error) {
	if _, err := s.findUser(ctx, userID); err != nil {
		return nil, err
	}
	statements, err := s.ledger.ListStatementsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &models.BalanceResult{Balance: s.calc.Calculate(userID, statements)}
	if withHistory {
		result.Statement = statements
	}
	return result, nil
}

func (s *StatementService) findUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.FindUserByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// afterCommit runs the best-effort side channels; failures are only logged
func (s *StatementService) afterCommit(ctx context.Context, user models.User, st models.Statement) {
	if s.notifier != nil {
		if err := s.notifier.NotifyStatement(ctx, user, st); err != nil {
			s.log.Errorf("Failed to notify user %s about statement %s: %v", user.ID, st.ID, err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishStatementCreated(ctx, st); err != nil {
			s.log.Errorf("Failed to publish statement %s: %v", st.ID, err)
		}
	}
}
