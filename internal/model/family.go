package model

import "time"

type Language string

const (
	LanguageEN Language = "EN"
	LanguageES Language = "ES"
	LanguageFR Language = "FR"
)

func (l Language) Valid() bool {
	switch l {
	case LanguageEN, LanguageES, LanguageFR:
		return true
	}
	return false
}

type Family struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Members   []Member  `json:"members,omitempty"`
}

type Member struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	FamilyID  string    `json:"family_id"`
	Language  Language  `json:"language"`
	CreatedAt time.Time `json:"created_at"`
}
