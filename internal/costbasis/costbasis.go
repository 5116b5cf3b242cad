// Package costbasis holds the weighted-average cost and commission arithmetic.
// Nothing here performs I/O.
package costbasis

import (
	"github.com/GooferByte/tradesim/internal/apperr"
	"github.com/shopspring/decimal"
)

// AveragePlaces is the scale average prices are kept at.
const AveragePlaces int32 = 8

// Position is the cost-basis view of a holding.
type Position struct {
	Quantity     int64
	AveragePrice decimal.Decimal
	TotalCost    decimal.Decimal
}

// Empty reports whether the position holds nothing.
func (p Position) Empty() bool { return p.Quantity == 0 }

// NewAverage returns the quantity-weighted mean of an existing position and an addition.
func NewAverage(oldQty int64, oldAvg decimal.Decimal, addQty int64, addPrice decimal.Decimal) (decimal.Decimal, error) {
	if oldQty < 0 || addQty <= 0 {
		return decimal.Zero, apperr.Validation("quantities must be non-negative with a positive addition, got %d and %d", oldQty, addQty)
	}
	if !addPrice.IsPositive() {
		return decimal.Zero, apperr.Validation("price must be positive, got %s", addPrice)
	}
	total := RemainingCost(oldAvg, oldQty).Add(addPrice.Mul(decimal.NewFromInt(addQty)))
	return average(total, oldQty+addQty), nil
}

// RemainingCost is the cost basis left on qty shares held at avg.
func RemainingCost(avg decimal.Decimal, qty int64) decimal.Decimal {
	return avg.Mul(decimal.NewFromInt(qty))
}

// Notional is price times quantity.
func Notional(price decimal.Decimal, qty int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(qty))
}

// Commission applies rate to notional and rounds half away from zero to places
// fractional digits of the settlement currency.
func Commission(notional, rate decimal.Decimal, places int32) decimal.Decimal {
	return notional.Mul(rate).Round(places)
}

// ApplyBuy adds qty shares bought at price. Commission is not part of the basis.
func ApplyBuy(pos Position, qty int64, price decimal.Decimal) (Position, error) {
	if qty <= 0 {
		return pos, apperr.Validation("buy quantity must be positive, got %d", qty)
	}
	if !price.IsPositive() {
		return pos, apperr.Validation("price must be positive, got %s", price)
	}
	notional := Notional(price, qty)
	if pos.Empty() {
		return Position{Quantity: qty, AveragePrice: price, TotalCost: notional}, nil
	}
	newQty := pos.Quantity + qty
	total := pos.TotalCost.Add(notional)
	return Position{Quantity: newQty, AveragePrice: average(total, newQty), TotalCost: total}, nil
}

// ApplySell removes qty shares. The average price of what remains is unchanged;
// an emptied position comes back as the zero Position.
func ApplySell(symbol string, pos Position, qty int64) (Position, error) {
	if qty <= 0 {
		return pos, apperr.Validation("sell quantity must be positive, got %d", qty)
	}
	if pos.Quantity < qty {
		return pos, &apperr.InsufficientHoldingsError{Symbol: symbol, Held: pos.Quantity, Requested: qty}
	}
	remaining := pos.Quantity - qty
	if remaining == 0 {
		return Position{}, nil
	}
	return Position{Quantity: remaining, AveragePrice: pos.AveragePrice, TotalCost: RemainingCost(pos.AveragePrice, remaining)}, nil
}

// Consistent reports whether TotalCost matches AveragePrice × Quantity within
// the rounding introduced by AveragePlaces.
func Consistent(pos Position) bool {
	if pos.Quantity < 0 {
		return false
	}
	diff := pos.TotalCost.Sub(RemainingCost(pos.AveragePrice, pos.Quantity)).Abs()
	return diff.LessThanOrEqual(Tolerance(pos.Quantity))
}

// Tolerance is the largest drift between TotalCost and AveragePrice × qty that
// rounding the average can introduce.
func Tolerance(qty int64) decimal.Decimal {
	return decimal.New(5, -(AveragePlaces + 1)).Mul(decimal.NewFromInt(qty))
}

func average(total decimal.Decimal, qty int64) decimal.Decimal {
	return total.DivRound(decimal.NewFromInt(qty), AveragePlaces)
}
