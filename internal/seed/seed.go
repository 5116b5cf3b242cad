// Package seed loads a TOML fixture of stocks, class policies, accounts and
// watchlists into an empty store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/GooferByte/tradesim/internal/models"
	"github.com/GooferByte/tradesim/internal/repository"
	"github.com/GooferByte/tradesim/internal/service"
	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type File struct {
	Stocks   []Stock   `toml:"stocks"`
	Classes  []Class   `toml:"classes"`
	Accounts []Account `toml:"accounts"`
}

type Stock struct {
	Symbol string `toml:"symbol"`
	Name   string `toml:"name"`
	// Price is optional; without it the symbol stays untradable until the collector prices it.
	Price    string    `toml:"price"`
	PricedAt time.Time `toml:"priced_at"`
}

type Class struct {
	ID      string   `toml:"id"`
	Symbols []string `toml:"symbols"`
}

type Account struct {
	ID             string   `toml:"id"`
	Owner          string   `toml:"owner"`
	Role           string   `toml:"role"`
	ClassID        string   `toml:"class_id"`
	InitialCapital string   `toml:"initial_capital"`
	Watchlist      []string `toml:"watchlist"`
}

// Load parses path.
func Load(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return f, nil
}

// Opener opens accounts with the same validation as the API.
type Opener interface {
	OpenAccount(ctx context.Context, input service.OpenAccountInput) (models.Account, error)
}

// Apply writes f through store and opener. Accounts that already exist are
// left untouched so a seed can be applied on every start.
func Apply(ctx context.Context, f File, store repository.Store, opener Opener, logger *logrus.Logger) error {
	log := logger.WithField("component", "seed")
	for _, s := range f.Stocks {
		stock := models.Stock{Symbol: strings.ToUpper(s.Symbol), Name: s.Name}
		if s.Price != "" {
			price, err := decimal.NewFromString(s.Price)
			if err != nil {
				return fmt.Errorf("stock %s: invalid price %q", s.Symbol, s.Price)
			}
			stock.LastPrice = price
			stock.PriceUpdatedAt = s.PricedAt.UTC()
		}
		if err := store.UpsertStock(ctx, stock); err != nil {
			return fmt.Errorf("upsert stock %s: %w", s.Symbol, err)
		}
	}
	for _, c := range f.Classes {
		for _, sym := range c.Symbols {
			if err := store.AllowSymbol(ctx, c.ID, strings.ToUpper(sym)); err != nil {
				return fmt.Errorf("allow %s for class %s: %w", sym, c.ID, err)
			}
		}
	}

	opened := 0
	for _, a := range f.Accounts {
		capital := decimal.Zero
		if a.InitialCapital != "" {
			var err error
			if capital, err = decimal.NewFromString(a.InitialCapital); err != nil {
				return fmt.Errorf("account %s: invalid initial capital %q", a.ID, a.InitialCapital)
			}
		}
		_, err := opener.OpenAccount(ctx, service.OpenAccountInput{
			ID:             a.ID,
			Owner:          a.Owner,
			Role:           a.Role,
			ClassID:        a.ClassID,
			InitialCapital: capital,
		})
		switch {
		case errors.Is(err, repository.ErrDuplicateAccount):
		case err != nil:
			return fmt.Errorf("open account %s: %w", a.ID, err)
		default:
			opened++
		}
		for _, sym := range a.Watchlist {
			if err := store.AddToWatchlist(ctx, a.ID, strings.ToUpper(sym)); err != nil {
				return fmt.Errorf("watch %s for %s: %w", sym, a.ID, err)
			}
		}
	}
	log.WithFields(logrus.Fields{"stocks": len(f.Stocks), "classes": len(f.Classes), "accounts": opened}).Info("seed applied")
	return nil
}
