package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/mvale/housetab/internal/balance"
	"github.com/mvale/housetab/internal/events"
	"github.com/mvale/housetab/internal/model"
	"github.com/mvale/housetab/internal/store"
	"github.com/mvale/housetab/internal/websocket"
)

type FamilyHandler struct {
	families *store.FamilyStore
	members  *store.MemberStore
	expenses *store.ExpenseStore
	payments *store.PaymentStore
	svc      *balance.Service
	hub      *websocket.Hub
	events   *events.Publisher
}

func NewFamilyHandler(
	families *store.FamilyStore,
	members *store.MemberStore,
	expenses *store.ExpenseStore,
	payments *store.PaymentStore,
	svc *balance.Service,
	hub *websocket.Hub,
	pub *events.Publisher,
) *FamilyHandler {
	return &FamilyHandler{
		families: families,
		members:  members,
		expenses: expenses,
		payments: payments,
		svc:      svc,
		hub:      hub,
		events:   pub,
	}
}

func (h *FamilyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Members []struct {
			Name     string `json:"name"`
			Language string `json:"language"`
		} `json:"members"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	inits := make([]store.MemberInit, 0, len(req.Members))
	for _, m := range req.Members {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "member name is required"})
			return
		}
		lang := model.Language(m.Language)
		if lang != "" && !lang.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "language must be one of EN, ES, FR"})
			return
		}
		inits = append(inits, store.MemberInit{Name: name, Language: lang})
	}

	family, err := h.families.Create(req.Name, inits)
	if err != nil {
		respondError(w, err, "failed to create family")
		return
	}

	notify(r.Context(), h.hub, h.events, "family", "created", family.ID, family.ID)
	writeJSON(w, http.StatusCreated, family)
}

func (h *FamilyHandler) List(w http.ResponseWriter, r *http.Request) {
	families, err := h.families.List()
	if err != nil {
		respondError(w, err, "failed to list families")
		return
	}
	if families == nil {
		families = []model.Family{}
	}
	writeJSON(w, http.StatusOK, families)
}

func (h *FamilyHandler) Get(w http.ResponseWriter, r *http.Request) {
	family, err := h.families.GetByID(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to get family")
		return
	}
	if family == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "family not found"})
		return
	}
	writeJSON(w, http.StatusOK, family)
}

func (h *FamilyHandler) Update(w http.ResponseWriter, r *http.Request) {
	family := h.requireFamily(w, r)
	if family == nil {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	updated, err := h.families.Update(family.ID, req.Name)
	if err != nil {
		respondError(w, err, "failed to update family")
		return
	}

	notify(r.Context(), h.hub, h.events, "family", "updated", updated.ID, updated.ID)
	writeJSON(w, http.StatusOK, updated)
}

// requireFamily resolves the {id} path parameter, writing a 404 and
// returning nil when the family does not exist.
func (h *FamilyHandler) requireFamily(w http.ResponseWriter, r *http.Request) *model.Family {
	family, err := h.families.GetByID(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to get family")
		return nil
	}
	if family == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "family not found"})
		return nil
	}
	return family
}

func (h *FamilyHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	family := h.requireFamily(w, r)
	if family == nil {
		return
	}
	members, err := h.members.ListByFamily(family.ID)
	if err != nil {
		respondError(w, err, "failed to list members")
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *FamilyHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	family := h.requireFamily(w, r)
	if family == nil {
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

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	lang := model.Language(req.Language)
	if lang != "" && !lang.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "language must be one of EN, ES, FR"})
		return
	}

	member, err := h.members.Create(family.ID, req.Name, lang)
	if err != nil {
		respondError(w, err, "failed to create member")
		return
	}

	notify(r.Context(), h.hub, h.events, "member", "created", member.ID, family.ID)
	writeJSON(w, http.StatusCreated, member)
}

func (h *FamilyHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	family := h.requireFamily(w, r)
	if family == nil {
		return
	}
	expenses, err := h.expenses.ListByFamily(family.ID)
	if err != nil {
		respondError(w, err, "failed to list expenses")
		return
	}
	if expenses == nil {
		expenses = []model.Expense{}
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (h *FamilyHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	family := h.requireFamily(w, r)
	if family == nil {
		return
	}

	var payments []model.Payment
	var err error
	if status := r.URL.Query().Get("status"); status != "" {
		switch model.PaymentStatus(status) {
		case model.PaymentStatusPending, model.PaymentStatusConfirm, model.PaymentStatusInactive:
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be one of PENDING, CONFIRM, INACTIVE"})
			return
		}
		payments, err = h.payments.ListByFamilyAndStatus(family.ID, model.PaymentStatus(status))
	} else {
		payments, err = h.payments.ListByFamily(family.ID)
	}
	if err != nil {
		respondError(w, err, "failed to list payments")
		return
	}
	if payments == nil {
		payments = []model.Payment{}
	}
	writeJSON(w, http.StatusOK, payments)
}

func (h *FamilyHandler) Balances(w http.ResponseWriter, r *http.Request) {
	useCache := queryBool(r, "use_cache", true)
	forceRefresh := queryBool(r, "force_refresh", false)

	balances, err := h.svc.GetFamilyBalances(r.PathValue("id"), useCache, forceRefresh)
	if err != nil {
		respondError(w, err, "failed to compute balances")
		return
	}
	if balances == nil {
		balances = []model.MemberBalance{}
	}
	writeJSON(w, http.StatusOK, balances)
}

func (h *FamilyHandler) MemberBalance(w http.ResponseWriter, r *http.Request) {
	familyID := r.PathValue("id")
	memberID := r.PathValue("memberID")

	member, err := h.members.GetByID(memberID)
	if err != nil {
		respondError(w, err, "failed to get member")
		return
	}
	if member == nil || member.FamilyID != familyID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found in this family"})
		return
	}

	bal, err := h.svc.GetMemberBalance(memberID)
	if err != nil {
		respondError(w, err, "failed to compute member balance")
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (h *FamilyHandler) RebuildCache(w http.ResponseWriter, r *http.Request) {
	balances, err := h.svc.InitializeCache(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to rebuild cache")
		return
	}
	if balances == nil {
		balances = []model.MemberBalance{}
	}

	notify(r.Context(), h.hub, h.events, "cache", "rebuilt", "", r.PathValue("id"))
	writeJSON(w, http.StatusOK, balances)
}

func (h *FamilyHandler) Consistency(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.VerifyBalanceConsistency(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to verify consistency")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *FamilyHandler) DuplicatePayments(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.DiagnoseDuplicatePayments(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to diagnose duplicate payments")
		return
	}
	if report.Groups == nil {
		report.Groups = []balance.DuplicateGroup{}
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *FamilyHandler) CleanupDuplicatePayments(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.CleanupDuplicatePayments(r.PathValue("id"))
	if err != nil {
		respondError(w, err, "failed to clean up duplicate payments")
		return
	}

	if result.PaymentsDeleted > 0 {
		notify(r.Context(), h.hub, h.events, "payment", "cleanup", "", r.PathValue("id"))
	}
	writeJSON(w, http.StatusOK, result)
}

func queryBool(r *http.Request, key string, def bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
