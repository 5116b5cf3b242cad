package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Holding is an account's position in one symbol.
type Holding struct {
	AccountID    string          `json:"accountId"`
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
	TotalCost    decimal.Decimal `json:"totalCost"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Transaction is an executed order. Rows are append-only.
type Transaction struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"accountId"`
	Symbol         string          `json:"symbol"`
	Type           Side            `json:"type"`
	Quantity       int64           `json:"quantity"`
	ExecutionPrice decimal.Decimal `json:"executionPrice"`
	Commission     decimal.Decimal `json:"commission"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	Reason         string          `json:"reason,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// PortfolioAggregate is the denormalized account summary. It is always derivable
// from the holdings and cash of the account.
type PortfolioAggregate struct {
	AccountID              string          `json:"accountId"`
	TotalValue             decimal.Decimal `json:"totalValue"`
	TotalCost              decimal.Decimal `json:"totalCost"`
	TotalProfitLoss        decimal.Decimal `json:"totalProfitLoss"`
	TotalProfitLossPercent decimal.Decimal `json:"totalProfitLossPercent"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

// TradeRequest is an order as submitted by a caller.
type TradeRequest struct {
	AccountID string
	Symbol    string
	Quantity  int64
	Side      Side
	Reason    string
}

// TradeResult is what a successful execution returns.
type TradeResult struct {
	Transaction Transaction        `json:"transaction"`
	Holding     *Holding           `json:"holding,omitempty"`
	Cash        decimal.Decimal    `json:"cash"`
	Portfolio   PortfolioAggregate `json:"portfolio"`
}

// PositionView is a holding valued at the latest stored price.
type PositionView struct {
	Holding
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	MarketValue  decimal.Decimal `json:"marketValue"`
	ProfitLoss   decimal.Decimal `json:"profitLoss"`
}

// PortfolioView is the read model served to portfolio screens.
type PortfolioView struct {
	Account   Account            `json:"account"`
	Summary   PortfolioAggregate `json:"summary"`
	Positions []PositionView     `json:"positions"`
}
