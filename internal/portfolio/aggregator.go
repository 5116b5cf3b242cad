// Package portfolio projects holdings and cash into the portfolio summary.
package portfolio

import (
	"sort"
	"time"

	"github.com/GooferByte/tradesim/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PercentPlaces is the scale of TotalProfitLossPercent.
const PercentPlaces int32 = 4

// Prices maps a symbol to its current price. Symbols missing from the map
// are valued at their average price.
type Prices map[string]decimal.Decimal

// Recompute builds the aggregate of account from scratch.
func Recompute(account models.Account, holdings []models.Holding, prices Prices, now time.Time) models.PortfolioAggregate {
	marketValue := decimal.Zero
	totalCost := decimal.Zero
	for _, h := range holdings {
		marketValue = marketValue.Add(currentPrice(h, prices).Mul(decimal.NewFromInt(h.Quantity)))
		totalCost = totalCost.Add(h.TotalCost)
	}
	totalValue := marketValue.Add(account.Cash)
	pl := totalValue.Sub(account.InitialCapital)
	pct := decimal.Zero
	if account.InitialCapital.IsPositive() {
		pct = pl.Div(account.InitialCapital).Mul(hundred).Round(PercentPlaces)
	}
	return models.PortfolioAggregate{
		AccountID:              account.ID,
		TotalValue:             totalValue,
		TotalCost:              totalCost,
		TotalProfitLoss:        pl,
		TotalProfitLossPercent: pct,
		UpdatedAt:              now,
	}
}

// View values every holding and pairs it with the summary.
func View(account models.Account, holdings []models.Holding, prices Prices, now time.Time) models.PortfolioView {
	positions := make([]models.PositionView, 0, len(holdings))
	for _, h := range holdings {
		price := currentPrice(h, prices)
		value := price.Mul(decimal.NewFromInt(h.Quantity))
		positions = append(positions, models.PositionView{
			Holding:      h,
			CurrentPrice: price,
			MarketValue:  value,
			ProfitLoss:   value.Sub(h.TotalCost),
		})
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})
	return models.PortfolioView{
		Account:   account,
		Summary:   Recompute(account, holdings, prices, now),
		Positions: positions,
	}
}

// PricesFromStocks builds a price map from catalog rows with a positive price.
func PricesFromStocks(stocks []models.Stock) Prices {
	out := make(Prices, len(stocks))
	for _, s := range stocks {
		if s.LastPrice.IsPositive() {
			out[s.Symbol] = s.LastPrice
		}
	}
	return out
}

func currentPrice(h models.Holding, prices Prices) decimal.Decimal {
	if p, ok := prices[h.Symbol]; ok && p.IsPositive() {
		return p
	}
	return h.AveragePrice
}
