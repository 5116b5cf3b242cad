package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/GooferByte/tradesim/internal/config"
	"github.com/GooferByte/tradesim/internal/events"
	"github.com/GooferByte/tradesim/internal/gate"
	"github.com/GooferByte/tradesim/internal/http"
	"github.com/GooferByte/tradesim/internal/ledger"
	"github.com/GooferByte/tradesim/internal/logger"
	"github.com/GooferByte/tradesim/internal/pricing"
	"github.com/GooferByte/tradesim/internal/readcache"
	"github.com/GooferByte/tradesim/internal/repository"
	"github.com/GooferByte/tradesim/internal/repository/memory"
	"github.com/GooferByte/tradesim/internal/repository/postgres"
	"github.com/GooferByte/tradesim/internal/scheduler"
	"github.com/GooferByte/tradesim/internal/seed"
	"github.com/GooferByte/tradesim/internal/service"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Environment, cfg.LogLevel)
	ctx := context.Background()

	var store repository.Store
	if cfg.UseInMemoryStore {
		log.Warn("DATABASE_URL not set, using in-memory store. Data will reset on restart.")
		store = memory.New()
	} else {
		db, err := sql.Open("postgres", cfg.DBURL)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to postgres")
		}
		if err := db.Ping(); err != nil {
			log.WithError(err).Fatal("postgres ping failed")
		}
		defer db.Close()
		pg := postgres.New(db)
		if err := pg.Migrate(ctx); err != nil {
			log.WithError(err).Fatal("schema migration failed")
		}
		store = pg
		log.Info("connected to postgres")
	}

	rates, err := pricing.ParseRates(cfg.FXRates)
	if err != nil {
		log.WithError(err).Fatal("invalid FX_RATES")
	}
	fx, err := pricing.NewStaticRates(cfg.BaseCurrency, rates)
	if err != nil {
		log.WithError(err).Fatal("invalid currency configuration")
	}
	minorUnits, err := pricing.MinorUnits(cfg.BaseCurrency)
	if err != nil {
		log.WithError(err).Fatal("invalid BASE_CURRENCY")
	}
	providers, err := pricing.BuildProviders(cfg.PriceProviders, pricing.ProviderOptions{
		AlphaVantageKey: cfg.AlphaVantageAPIKey,
		HTTPTimeout:     cfg.ProviderTimeout,
		SimulatedTTL:    time.Hour,
		BaseCurrency:    cfg.BaseCurrency,
	})
	if err != nil {
		log.WithError(err).Fatal("invalid PRICE_PROVIDERS")
	}
	resolver := pricing.NewResolver(providers, pricing.NewQuoteCache(cfg.PriceCacheSize, cfg.PriceCacheTTL), fx, pricing.ResolverConfig{
		ProviderTimeout: cfg.ProviderTimeout,
		FreshnessWindow: cfg.FreshnessWindow,
	}, log)
	collector := pricing.NewCollector(resolver, store, log)

	readCache := readcache.New(cfg.ReadCacheSize, cfg.ReadCacheTTL)
	invalidator := events.NewCacheInvalidator(readCache, log)
	analytics := events.NewReasonAnalytics()
	bus := events.NewBus(5*time.Second, log)
	bus.Subscribe(invalidator)
	bus.Subscribe(analytics)

	tradeGate := gate.New(gate.Stores{Accounts: store, Catalog: store, Policies: store}, resolver, cfg.FreshnessWindow, log)
	engine := ledger.NewEngine(store, ledger.Config{
		CommissionRate:   cfg.CommissionRate,
		CommissionPlaces: minorUnits,
		FreshnessWindow:  cfg.FreshnessWindow,
		LockWait:         cfg.LockWait,
	}, log)

	tradeSvc := service.NewTradeService(service.Deps{
		Store:          store,
		Gate:           tradeGate,
		Engine:         engine,
		Events:         bus,
		Cache:          readCache,
		Refresher:      collector,
		Analytics:      analytics,
		DefaultCapital: cfg.InitialCapital,
	}, log)

	if cfg.SeedFile != "" {
		f, err := seed.Load(cfg.SeedFile)
		if err != nil {
			log.WithError(err).Fatal("failed to load seed file")
		}
		if err := seed.Apply(ctx, f, store, tradeSvc, log); err != nil {
			log.WithError(err).Fatal("failed to apply seed file")
		}
	}

	sched := scheduler.New(time.Minute, log)
	if err := sched.AddJob(cfg.PriceRefreshSchedule, collector); err != nil {
		log.WithError(err).Fatal("invalid PRICE_REFRESH_SCHEDULE")
	}
	if err := sched.AddJob(cfg.CacheSweepSchedule, invalidator); err != nil {
		log.WithError(err).Fatal("invalid CACHE_SWEEP_SCHEDULE")
	}
	go func() {
		// Prime the catalog so trades are not blocked until the first tick.
		_ = sched.RunNow(collector)
	}()
	sched.Start()
	defer sched.Stop()

	router := http.Router(tradeSvc, log)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Infof("trade engine listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.WithError(err).Error("server stopped")
		bus.Wait()
		os.Exit(1)
	}
}
