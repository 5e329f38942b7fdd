package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusConfirm  PaymentStatus = "CONFIRM"
	PaymentStatusInactive PaymentStatus = "INACTIVE"
)

type PaymentType string

const (
	PaymentTypePayment    PaymentType = "PAYMENT"
	PaymentTypeAdjustment PaymentType = "ADJUSTMENT"
)

type Payment struct {
	ID           string        `json:"id"`
	FromMemberID string        `json:"from_member_id"`
	ToMemberID   string        `json:"to_member_id"`
	Amount       float64       `json:"amount"`
	FamilyID     string        `json:"family_id"`
	Status       PaymentStatus `json:"status"`
	Type         PaymentType   `json:"type"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Direction returns the debtor and creditor for a payment. A regular
// payment is sent by the debtor to the creditor. An adjustment is
// recorded by the creditor against the debtor, so the roles flip.
func (p Payment) Direction() (debtor, creditor string) {
	if p.Type == PaymentTypeAdjustment {
		return p.ToMemberID, p.FromMemberID
	}
	return p.FromMemberID, p.ToMemberID
}
