package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mvale/housetab/internal/balance"
	"github.com/mvale/housetab/internal/events"
	"github.com/mvale/housetab/internal/store"
	"github.com/mvale/housetab/internal/websocket"
)

type PaymentHandler struct {
	payments *store.PaymentStore
	svc      *balance.Service
	hub      *websocket.Hub
	events   *events.Publisher
}

func NewPaymentHandler(payments *store.PaymentStore, svc *balance.Service, hub *websocket.Hub, pub *events.Publisher) *PaymentHandler {
	return &PaymentHandler{payments: payments, svc: svc, hub: hub, events: pub}
}

type paymentRequest struct {
	FromMemberID string  `json:"from_member_id"`
	ToMemberID   string  `json:"to_member_id"`
	Amount       float64 `json:"amount"`
}

func (r *paymentRequest) validate(w http.ResponseWriter) bool {
	if r.FromMemberID == "" || r.ToMemberID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from_member_id and to_member_id are required"})
		return false
	}
	if r.FromMemberID == r.ToMemberID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "a member cannot pay themselves"})
		return false
	}
	return true
}

// Create records a pending payment from a debtor to a creditor. It
// stays invisible to balances until the creditor confirms it.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if !req.validate(w) {
		return
	}

	payment, err := h.svc.CreatePayment(req.FromMemberID, req.ToMemberID, req.Amount)
	if err != nil {
		respondError(w, err, "failed to create payment")
		return
	}

	notify(r.Context(), h.hub, h.events, "payment", "created", payment.ID, payment.FamilyID)
	writeJSON(w, http.StatusCreated, payment)
}

// CreateAdjustment records a creditor-initiated debt write-off. It is
// confirmed on creation and hits balances immediately.
func (h *PaymentHandler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if !req.validate(w) {
		return
	}

	payment, err := h.svc.CreateDebtAdjustment(req.FromMemberID, req.ToMemberID, req.Amount)
	if err != nil {
		respondError(w, err, "failed to create adjustment")
		return
	}

	notify(r.Context(), h.hub, h.events, "payment", "adjusted", payment.ID, payment.FamilyID)
	writeJSON(w, http.StatusCreated, payment)
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	payment, err := h.payments.GetByID(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to get payment")
		return
	}
	if payment == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "payment not found"})
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	payment, err := h.svc.ConfirmPayment(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to confirm payment")
		return
	}

	notify(r.Context(), h.hub, h.events, "payment", "confirmed", payment.ID, payment.FamilyID)
	writeJSON(w, http.StatusOK, payment)
}

func (h *PaymentHandler) Reject(w http.ResponseWriter, r *http.Request) {
	payment, err := h.svc.RejectPayment(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to reject payment")
		return
	}

	notify(r.Context(), h.hub, h.events, "payment", "rejected", payment.ID, payment.FamilyID)
	writeJSON(w, http.StatusOK, payment)
}

func (h *PaymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	payment, err := h.svc.DeletePayment(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to delete payment")
		return
	}

	notify(r.Context(), h.hub, h.events, "payment", "deleted", payment.ID, payment.FamilyID)
	w.WriteHeader(http.StatusNoContent)
}
