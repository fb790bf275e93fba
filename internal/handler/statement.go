package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/finapi/internal/export"
	"github.com/Dan9191/finapi/internal/models"
	"github.com/Dan9191/finapi/internal/service"
)

type operationRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required,max=255"`
}

// Deposit handles POST /statements/deposit
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.createStatement(w, r, models.Deposit)
}

// Withdraw handles POST /statements/withdraw
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.createStatement(w, r, models.Withdraw)
}

// Transfer handles POST /statements/transfer/{user_id}; the path names the receiver
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	h.createStatement(w, r, models.Transfer)
}

func (h *Handler) createStatement(w http.ResponseWriter, r *http.Request, op models.OperationType) {
	userID, err := currentUser(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// The token may outlive its user.
	if _, err := h.users.Profile(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}

	params := service.CreateStatementParams{UserID: userID, Type: op}
	if op == models.Transfer {
		receiverID, err := pathUUID(r, "user_id")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		params.ReceiverID = &receiverID
	}

	var req operationRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	params.Amount = req.Amount
	params.Description = req.Description

	created, err := h.statements.CreateStatement(r.Context(), params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if op == models.Transfer {
		writeJSON(w, http.StatusCreated, created)
		return
	}
	writeJSON(w, http.StatusCreated, created[0])
}

// GetBalance returns the balance with history unless ?history=false; ?format=xml renders the XML export
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	withHistory := true
	if raw := r.URL.Query().Get("history"); raw != "" {
		withHistory, err = strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, &models.ValidationError{Field: "history", Reason: "must be true or false"})
			return
		}
	}

	result, err := h.statements.GetBalance(r.Context(), userID, withHistory)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, result)
	case "xml":
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		if err := export.WriteStatementXML(w, userID, result, h.now()); err != nil {
			h.log.Errorf("Failed to write XML statement for user %s: %v", userID, err)
		}
	default:
		h.writeError(w, r, &models.ValidationError{Field: "format", Reason: "must be json or xml"})
	}
}

// GetStatement returns one statement owned by the authenticated user
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	statementID, err := pathUUID(r, "statement_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	st, err := h.statements.GetStatement(r.Context(), statementID, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
