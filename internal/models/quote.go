package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote models a resolved price in the base currency.
type PriceQuote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	PreviousClose decimal.Decimal `json:"previousClose"`
	AsOf          time.Time       `json:"asOf"`
	Source        string          `json:"-"`
	IsFresh       bool            `json:"isFresh"`
	// StoredAsOf is the catalog price timestamp observed when the quote was
	// authorized. The ledger re-reads it under the account lock.
	StoredAsOf time.Time `json:"-"`
}
