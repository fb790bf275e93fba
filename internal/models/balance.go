package models

import "github.com/shopspring/decimal"

// BalanceResult is a user's derived balance, optionally with the entries it was replayed from
type BalanceResult struct {
	Balance   decimal.Decimal `json:"balance"`
	Statement []Statement     `json:"statement,omitempty"`
}
