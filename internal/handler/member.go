package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mvale/housetab/internal/balance"
	"github.com/mvale/housetab/internal/events"
	"github.com/mvale/housetab/internal/model"
	"github.com/mvale/housetab/internal/store"
	"github.com/mvale/housetab/internal/websocket"
)

type MemberHandler struct {
	members  *store.MemberStore
	expenses *store.ExpenseStore
	payments *store.PaymentStore
	svc      *balance.Service
	hub      *websocket.Hub
	events   *events.Publisher
}

func NewMemberHandler(
	members *store.MemberStore,
	expenses *store.ExpenseStore,
	payments *store.PaymentStore,
	svc *balance.Service,
	hub *websocket.Hub,
	pub *events.Publisher,
) *MemberHandler {
	return &MemberHandler{
		members:  members,
		expenses: expenses,
		payments: payments,
		svc:      svc,
		hub:      hub,
		events:   pub,
	}
}

func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	member, err := h.members.GetByID(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to get member")
		return
	}
	if member == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, err := h.members.GetByID(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to get member")
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}

	var req struct {
		Name     string `json:"name"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = existing.Name
	}
	lang := existing.Language
	if req.Language != "" {
		lang = model.Language(req.Language)
		if !lang.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "language must be one of EN, ES, FR"})
			return
		}
	}

	member, err := h.members.Update(existing.ID, name, lang)
	if err != nil {
		respondError(w, err, "failed to update member")
		return
	}

	notify(r.Context(), h.hub, h.events, "member", "updated", member.ID, member.FamilyID)
	writeJSON(w, http.StatusOK, member)
}

func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	member, err := h.svc.DeleteMember(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to delete member")
		return
	}

	notify(r.Context(), h.hub, h.events, "member", "deleted", member.ID, member.FamilyID)
	w.WriteHeader(http.StatusNoContent)
}

// ListExpenses returns the expenses the member paid for.
func (h *MemberHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	member, err := h.members.GetByID(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to get member")
		return
	}
	if member == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}

	expenses, err := h.expenses.ListByPayer(member.ID)
	if err != nil {
		respondError(w, err, "failed to list expenses")
		return
	}
	if expenses == nil {
		expenses = []model.Expense{}
	}
	writeJSON(w, http.StatusOK, expenses)
}

// ListPayments returns payments the member sent or received.
func (h *MemberHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	member, err := h.members.GetByID(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to get member")
		return
	}
	if member == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}

	payments, err := h.payments.ListByMember(member.ID)
	if err != nil {
		respondError(w, err, "failed to list payments")
		return
	}
	if payments == nil {
		payments = []model.Payment{}
	}
	writeJSON(w, http.StatusOK, payments)
}
