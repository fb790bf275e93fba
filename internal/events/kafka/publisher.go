package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/Dan9191/finapi/internal/models"
)

// StatementCreatedEvent is the payload published for every committed statement
type StatementCreatedEvent struct {
	StatementID    uuid.UUID            `json:"statement_id"`
	UserID         uuid.UUID            `json:"user_id"`
	CounterpartyID *uuid.UUID           `json:"counterparty_id,omitempty"`
	Type           models.OperationType `json:"type"`
	Direction      models.Direction     `json:"direction,omitempty"`
	Amount         decimal.Decimal      `json:"amount"`
	Description    string               `json:"description"`
	CreatedAt      time.Time            `json:"created_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer messageWriter
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchSize:              1,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

// PublishStatementCreated writes one message keyed by the statement owner so a user's events stay ordered
func (p *Publisher) PublishStatementCreated(ctx context.Context, st models.Statement) error {
	data, err := json.Marshal(StatementCreatedEvent{
		StatementID:    st.ID,
		UserID:         st.UserID,
		CounterpartyID: st.CounterpartyID,
		Type:           st.Type,
		Direction:      st.Direction,
		Amount:         st.Amount,
		Description:    st.Description,
		CreatedAt:      st.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(st.UserID.String()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("statement.created")},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish statement %s: %w", st.ID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
