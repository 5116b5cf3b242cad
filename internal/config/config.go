package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	Port             string
	DBURL            string
	UseInMemoryStore bool
	Environment      string
	LogLevel         string

	BaseCurrency    string
	CommissionRate  decimal.Decimal
	FreshnessWindow time.Duration
	LockWait        time.Duration
	InitialCapital  decimal.Decimal

	PriceProviders     []string
	ProviderTimeout    time.Duration
	AlphaVantageAPIKey string
	FXRates            string
	PriceCacheTTL      time.Duration
	PriceCacheSize     int

	ReadCacheTTL  time.Duration
	ReadCacheSize int

	PriceRefreshSchedule string
	CacheSweepSchedule   string
	SeedFile             string
}

// Load reads configuration from environment variables. A .env file is loaded
// if present to simplify local development. We look in bin/.env so the file
// can live alongside a built binary, and fall back to .env in the project
// root for compatibility.
func Load() Config {
	loadDotEnv()

	cfg := Config{
		Port:        getString("PORT", "8080"),
		DBURL:       getString("DATABASE_URL", ""),
		Environment: getString("ENVIRONMENT", "local"),
		LogLevel:    getString("LOG_LEVEL", ""),

		BaseCurrency:    strings.ToUpper(getString("BASE_CURRENCY", "KRW")),
		CommissionRate:  getDecimal("COMMISSION_RATE", "0.00015"),
		FreshnessWindow: getDuration("FRESHNESS_WINDOW_HOURS", 24, time.Hour),
		LockWait:        getDuration("LOCK_WAIT_SECONDS", 5, time.Second),
		InitialCapital:  getDecimal("DEFAULT_INITIAL_CAPITAL", "10000000"),

		PriceProviders:     getList("PRICE_PROVIDERS", "yahoo,alphavantage,simulated"),
		ProviderTimeout:    getDuration("PROVIDER_TIMEOUT_SECONDS", 5, time.Second),
		AlphaVantageAPIKey: getString("ALPHAVANTAGE_API_KEY", ""),
		FXRates:            getString("FX_RATES", "USD:1350"),
		PriceCacheTTL:      getDurationMinutes("PRICE_CACHE_TTL_MINUTES", 1),
		PriceCacheSize:     getInt("PRICE_CACHE_SIZE", 1024),

		ReadCacheTTL:  getDurationMinutes("READ_CACHE_TTL_MINUTES", 5),
		ReadCacheSize: getInt("READ_CACHE_SIZE", 4096),

		PriceRefreshSchedule: getString("PRICE_REFRESH_SCHEDULE", "@every 10m"),
		CacheSweepSchedule:   getString("CACHE_SWEEP_SCHEDULE", "@every 1m"),
		SeedFile:             getString("SEED_FILE", ""),
	}

	cfg.UseInMemoryStore = cfg.DBURL == ""
	return cfg
}

func loadDotEnv() {
	candidates := []string{
		filepath.Join("bin", ".env"),
		".env",
	}

	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		candidates = append([]string{
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "bin", ".env"),
		}, candidates...)
	}

	for _, path := range candidates {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			log.Printf("invalid value for %s, using fallback: %v", key, err)
			return fallback
		}
		return n
	}
	return fallback
}

func getDecimal(key, fallback string) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		d, err := decimal.NewFromString(val)
		if err == nil {
			return d
		}
		log.Printf("invalid value for %s, using fallback: %v", key, err)
	}
	return decimal.RequireFromString(fallback)
}

// getList splits a comma-separated value, dropping blanks and keeping order.
func getList(key, fallback string) []string {
	raw := getString(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getDuration(key string, fallback int, unit time.Duration) time.Duration {
	return time.Duration(getInt(key, fallback)) * unit
}

func getDurationMinutes(key string, fallback int) time.Duration {
	return getDuration(key, fallback, time.Minute)
}
