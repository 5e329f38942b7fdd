package model

import "time"

type DebtDetail struct {
	ToID   string  `json:"to_id"`
	ToName string  `json:"to_name"`
	Amount float64 `json:"amount"`
}

type CreditDetail struct {
	FromID   string  `json:"from_id"`
	FromName string  `json:"from_name"`
	Amount   float64 `json:"amount"`
}

type MemberBalance struct {
	MemberID   string         `json:"member_id"`
	MemberName string         `json:"member_name"`
	TotalDebt  float64        `json:"total_debt"`
	TotalOwed  float64        `json:"total_owed"`
	NetBalance float64        `json:"net_balance"`
	Debts      []DebtDetail   `json:"debts"`
	Credits    []CreditDetail `json:"credits"`
}

type MemberBalanceRow struct {
	MemberID    string    `json:"member_id"`
	FamilyID    string    `json:"family_id"`
	TotalDebt   float64   `json:"total_debt"`
	TotalOwed   float64   `json:"total_owed"`
	NetBalance  float64   `json:"net_balance"`
	LastUpdated time.Time `json:"last_updated"`
}

type DebtRow struct {
	FromMemberID string    `json:"from_member_id"`
	ToMemberID   string    `json:"to_member_id"`
	FamilyID     string    `json:"family_id"`
	Amount       float64   `json:"amount"`
	LastUpdated  time.Time `json:"last_updated"`
}
