package service

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/finapi/internal/models"
)

// BalanceCalculator derives a balance by replaying statements.
// It has no side effects besides logging anomalies.
type BalanceCalculator struct {
	log *logrus.Logger
}

// NewBalanceCalculator initializes a new calculator
func NewBalanceCalculator(log *logrus.Logger) *BalanceCalculator {
	return &BalanceCalculator{log: log}
}

// Calculate returns userID's balance over statements where the user is owner or counterparty.
// The result does not depend on the order of statements.
func (c *BalanceCalculator) Calculate(userID uuid.UUID, statements []models.Statement) decimal.Decimal {
	balance, _ := c.Replay(userID, statements)
	return balance
}

// Replay is Calculate that also reports how many statements could not be interpreted.
//
// Each transfer is stored as two legs. Only the leg owned by userID counts: the incoming leg
// credits its owner, the outgoing leg debits its owner. The other party's leg, where userID is
// merely the counterparty, mirrors the same movement and is skipped.
func (c *BalanceCalculator) Replay(userID uuid.UUID, statements []models.Statement) (decimal.Decimal, int) {
	balance := decimal.Zero
	anomalies := 0

	for _, st := range statements {
		switch st.Type {
		case models.Deposit:
			balance = balance.Add(st.Amount)
		case models.Withdraw:
			balance = balance.Sub(st.Amount)
		case models.Transfer:
			if st.UserID != userID {
				continue
			}
			switch st.Direction {
			case models.DirectionIn:
				balance = balance.Add(st.Amount)
			case models.DirectionOut:
				balance = balance.Sub(st.Amount)
			default:
				anomalies++
				c.anomaly(userID, st, "unknown transfer direction")
			}
		default:
			anomalies++
			c.anomaly(userID, st, "unknown operation type")
		}
	}
	return balance, anomalies
}

func (c *BalanceCalculator) anomaly(userID uuid.UUID, st models.Statement, reason string) {
	if c.log == nil {
		return
	}
	c.log.WithFields(logrus.Fields{
		"user_id":      userID,
		"statement_id": st.ID,
		"type":         st.Type,
		"direction":    st.Direction,
	}).Warnf("Skipping statement in balance: %s", reason)
}
