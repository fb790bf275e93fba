// Package export renders balance reports in formats other than JSON
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dan9191/finapi/internal/models"
)

// BuildStatementXML creates the <statement> document for a user's balance and history
func BuildStatementXML(userID uuid.UUID, result *models.BalanceResult, generatedAt time.Time) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("statement")
	root.CreateAttr("user_id", userID.String())
	root.CreateAttr("generated_at", generatedAt.UTC().Format(time.RFC3339))
	root.CreateElement("balance").SetText(result.Balance.String())

	entries := root.CreateElement("entries")
	entries.CreateAttr("count", fmt.Sprintf("%d", len(result.Statement)))
	for _, st := range result.Statement {
		e := entries.CreateElement("entry")
		e.CreateAttr("id", st.ID.String())
		e.CreateAttr("type", string(st.Type))
		if st.Direction != "" {
			e.CreateAttr("direction", string(st.Direction))
		}
		e.CreateElement("user_id").SetText(st.UserID.String())
		if st.CounterpartyID != nil {
			e.CreateElement("counterparty_id").SetText(st.CounterpartyID.String())
		}
		e.CreateElement("amount").SetText(st.Amount.String())
		e.CreateElement("description").SetText(st.Description)
		e.CreateElement("created_at").SetText(st.CreatedAt.UTC().Format(time.RFC3339))
	}

	doc.Indent(2)
	return doc
}

// WriteStatementXML writes the document built by BuildStatementXML to w
func WriteStatementXML(w io.Writer, userID uuid.UUID, result *models.BalanceResult, generatedAt time.Time) error {
	if _, err := BuildStatementXML(userID, result, generatedAt).WriteTo(w); err != nil {
		return fmt.Errorf("failed to write statement XML: %w", err)
	}
	return nil
}

// ParseStatementXML reads a document produced by BuildStatementXML back into a BalanceResult
func ParseStatementXML(raw []byte) (*models.BalanceResult, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}

	balanceEl := doc.FindElement("/statement/balance")
	if balanceEl == nil {
		return nil, fmt.Errorf("balance element not found in XML")
	}
	balance, err := decimal.NewFromString(balanceEl.Text())
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}

	result := &models.BalanceResult{Balance: balance}
	for _, e := range doc.FindElements("/statement/entries/entry") {
		st, err := parseEntry(e)
		if err != nil {
			return nil, err
		}
		result.Statement = append(result.Statement, st)
	}
	return result, nil
}

func parseEntry(e *etree.Element) (models.Statement, error) {
	var st models.Statement
	var err error

	if st.ID, err = uuid.Parse(e.SelectAttrValue("id", "")); err != nil {
		return st, fmt.Errorf("failed to parse entry id: %w", err)
	}
	st.Type = models.OperationType(e.SelectAttrValue("type", ""))
	st.Direction = models.Direction(e.SelectAttrValue("direction", ""))

	if el := e.SelectElement("user_id"); el != nil {
		if st.UserID, err = uuid.Parse(el.Text()); err != nil {
			return st, fmt.Errorf("failed to parse entry user_id: %w", err)
		}
	}
	if el := e.SelectElement("counterparty_id"); el != nil {
		id, err := uuid.Parse(el.Text())
		if err != nil {
			return st, fmt.Errorf("failed to parse entry counterparty_id: %w", err)
		}
		st.CounterpartyID = &id
	}
	if el := e.SelectElement("amount"); el != nil {
		if st.Amount, err = decimal.NewFromString(el.Text()); err != nil {
			return st, fmt.Errorf("failed to parse entry amount: %w", err)
		}
	}
	if el := e.SelectElement("description"); el != nil {
		st.Description = el.Text()
	}
	if el := e.SelectElement("created_at"); el != nil {
		if st.CreatedAt, err = time.Parse(time.RFC3339, el.Text()); err != nil {
			return st, fmt.Errorf("failed to parse entry created_at: %w", err)
		}
	}
	return st, nil
}
