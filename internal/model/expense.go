package model

import "time"

type Expense struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	PaidBy      string    `json:"paid_by"`
	FamilyID    string    `json:"family_id"`
	SplitAmong  []string  `json:"split_among"`
	CreatedAt   time.Time `json:"created_at"`
}
