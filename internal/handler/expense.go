package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mvale/housetab/internal/balance"
	"github.com/mvale/housetab/internal/events"
	"github.com/mvale/housetab/internal/store"
	"github.com/mvale/housetab/internal/websocket"
)

type ExpenseHandler struct {
	expenses *store.ExpenseStore
	svc      *balance.Service
	hub      *websocket.Hub
	events   *events.Publisher
}

func NewExpenseHandler(expenses *store.ExpenseStore, svc *balance.Service, hub *websocket.Hub, pub *events.Publisher) *ExpenseHandler {
	return &ExpenseHandler{expenses: expenses, svc: svc, hub: hub, events: pub}
}

type expenseRequest struct {
	Description string   `json:"description"`
	Amount      float64  `json:"amount"`
	PaidBy      string   `json:"paid_by"`
	SplitAmong  []string `json:"split_among"`
}

func (h *ExpenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "description is required"})
		return
	}
	if req.PaidBy == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "paid_by is required"})
		return
	}

	expense, err := h.svc.CreateExpense(req.Description, req.Amount, req.PaidBy, req.SplitAmong)
	if err != nil {
		respondError(w, err, "failed to create expense")
		return
	}

	notify(r.Context(), h.hub, h.events, "expense", "created", expense.ID, expense.FamilyID)
	writeJSON(w, http.StatusCreated, expense)
}

func (h *ExpenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	expense, err := h.expenses.GetByID(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to get expense")
		return
	}
	if expense == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "expense not found"})
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (h *ExpenseHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "description is required"})
		return
	}
	if req.PaidBy == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "paid_by is required"})
		return
	}

	expense, err := h.svc.UpdateExpense(r.PathValue("id"), req.Description, req.Amount, req.PaidBy, req.SplitAmong)
	if err != nil {
		respondError(w, err, "failed to update expense")
		return
	}

	notify(r.Context(), h.hub, h.events, "expense", "updated", expense.ID, expense.FamilyID)
	writeJSON(w, http.StatusOK, expense)
}

func (h *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	expense, err := h.svc.DeleteExpense(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to delete expense")
		return
	}

	notify(r.Context(), h.hub, h.events, "expense", "deleted", expense.ID, expense.FamilyID)
	w.WriteHeader(http.StatusNoContent)
}
