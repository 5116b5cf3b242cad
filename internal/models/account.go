package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role identifies what an account is allowed to do.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Account holds the cash side of a simulated trading account.
type Account struct {
	ID             string          `json:"id"`
	Owner          string          `json:"owner"`
	Role           Role            `json:"role"`
	ClassID        string          `json:"classId,omitempty"`
	Cash           decimal.Decimal `json:"cash"`
	InitialCapital decimal.Decimal `json:"initialCapital"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Constrained reports whether the account trades under a class policy.
func (a Account) Constrained() bool {
	return a.Role == RoleStudent && a.ClassID != ""
}

// Stock is a catalog entry. PriceUpdatedAt is only advanced by the price collector.
type Stock struct {
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	LastPrice      decimal.Decimal `json:"lastPrice"`
	PreviousClose  decimal.Decimal `json:"previousClose"`
	PriceUpdatedAt time.Time       `json:"priceUpdatedAt"`
}
