package balance

import (
	"fmt"

	"github.com/mvale/housetab/internal/metrics"
	"github.com/mvale/housetab/internal/model"
	"github.com/mvale/housetab/internal/store"
)

// CreatePayment records a pending payment from a debtor to a creditor.
// The debt it settles must exist, run in the claimed direction and be at
// least the payment amount; all three are checked against a fresh
// recompute, never against the cache. The balance moves only when the
// creditor confirms.
func (s *Service) CreatePayment(fromMemberID, toMemberID string, amount float64) (*model.Payment, error) {
	return s.createPayment(fromMemberID, toMemberID, amount, model.PaymentTypePayment)
}

// CreateDebtAdjustment records a confirmed adjustment by the creditor
// against the debtor, written off immediately without the confirmation
// round trip. From is the creditor and to is the debtor.
func (s *Service) CreateDebtAdjustment(fromMemberID, toMemberID string, amount float64) (*model.Payment, error) {
	return s.createPayment(fromMemberID, toMemberID, amount, model.PaymentTypeAdjustment)
}

func (s *Service) createPayment(fromMemberID, toMemberID string, amount float64, typ model.PaymentType) (*model.Payment, error) {
	fail := func(v *ValidationError) (*model.Payment, error) {
		metrics.PaymentValidationFailures.WithLabelValues(v.Reason).Inc()
		return nil, v
	}

	if amount <= 0 {
		return fail(invalid(ReasonInvalidAmount, "payment amount must be positive"))
	}
	memberStore := store.NewMemberStore(s.db)
	from, err := memberStore.GetByID(fromMemberID)
	if err != nil {
		return nil, err
	}
	if from == nil {
		return nil, notFound("member", fromMemberID)
	}
	to, err := memberStore.GetByID(toMemberID)
	if err != nil {
		return nil, err
	}
	if to == nil {
		return nil, notFound("member", toMemberID)
	}
	if from.FamilyID != to.FamilyID {
		return fail(invalid(ReasonFamilyMismatch, "members %s and %s belong to different families", from.Name, to.Name))
	}
	familyID := from.FamilyID

	lock := s.familyLock(familyID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	payment := &model.Payment{
		FromMemberID: fromMemberID,
		ToMemberID:   toMemberID,
		Amount:       amount,
		FamilyID:     familyID,
		Status:       model.PaymentStatusPending,
		Type:         typ,
	}
	if typ == model.PaymentTypeAdjustment {
		payment.Status = model.PaymentStatusConfirm
	}

	_, g, err := s.familyGraph(tx, familyID, "validation")
	if err != nil {
		return nil, err
	}
	debtor, creditor := payment.Direction()
	outstanding := g.amount(debtor, creditor)
	if outstanding <= 0 {
		if g.amount(creditor, debtor) > 0 {
			return fail(invalid(ReasonWrongDirection, "%s does not owe %s; the debt runs the other way", names(from, to, debtor), names(from, to, creditor)))
		}
		return fail(invalid(ReasonNoDebtExists, "no outstanding debt from %s to %s", names(from, to, debtor), names(from, to, creditor)))
	}
	if amount > outstanding+pairEpsilon {
		return fail(invalid(ReasonAmountExceedsDebt, "amount %.2f exceeds the outstanding debt of %.2f", amount, outstanding))
	}

	if err := store.NewPaymentStore(tx).Create(payment); err != nil {
		return nil, err
	}
	if payment.Status == model.PaymentStatusConfirm {
		applied, err := s.applyPaymentConfirmed(tx, payment)
		if err != nil {
			return nil, err
		}
		if !applied {
			if _, err := s.rebuildCache(tx, familyID, "incremental_fallback"); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return payment, nil
}

// names maps a member id back to a display name for error messages.
func names(from, to *model.Member, id string) string {
	if from.ID == id {
		return from.Name
	}
	return to.Name
}

// ConfirmPayment moves a pending payment to confirmed and applies it to
// the cache in the same transaction.
func (s *Service) ConfirmPayment(id string) (*model.Payment, error) {
	return s.transition(id, model.PaymentStatusConfirm)
}

// RejectPayment moves a pending payment to inactive. Rejected payments
// never touch a balance.
func (s *Service) RejectPayment(id string) (*model.Payment, error) {
	return s.transition(id, model.PaymentStatusInactive)
}

func (s *Service) transition(id string, target model.PaymentStatus) (*model.Payment, error) {
	payment, err := store.NewPaymentStore(s.db).GetByID(id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, notFound("payment", id)
	}

	lock := s.familyLock(payment.FamilyID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Re-read under the lock; the status may have moved since the
	// unlocked read above.
	paymentStore := store.NewPaymentStore(tx)
	payment, err = paymentStore.GetByID(id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, notFound("payment", id)
	}
	if payment.Status != model.PaymentStatusPending {
		return nil, &InvalidStateError{PaymentID: id, Status: payment.Status}
	}

	if err := paymentStore.UpdateStatus(id, target); err != nil {
		return nil, err
	}
	payment.Status = target

	if target == model.PaymentStatusConfirm {
		applied, err := s.applyPaymentConfirmed(tx, payment)
		if err != nil {
			return nil, err
		}
		if !applied {
			if _, err := s.rebuildCache(tx, payment.FamilyID, "incremental_fallback"); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return payment, nil
}

// DeletePayment removes a payment outright. Deleting a confirmed payment
// changes history, so the cache is rebuilt.
func (s *Service) DeletePayment(id string) (*model.Payment, error) {
	payment, err := store.NewPaymentStore(s.db).GetByID(id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, notFound("payment", id)
	}

	lock := s.familyLock(payment.FamilyID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	paymentStore := store.NewPaymentStore(tx)
	payment, err = paymentStore.GetByID(id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, notFound("payment", id)
	}
	if err := paymentStore.Delete(id); err != nil {
		return nil, err
	}
	if payment.Status == model.PaymentStatusConfirm {
		if _, err := s.rebuildCache(tx, payment.FamilyID, "payment_delete"); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return payment, nil
}
