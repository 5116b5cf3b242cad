package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYahooProviderParsesMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/005930.KS", r.URL.Path)
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"currency":"KRW","regularMarketPrice":71200,"regularMarketTime":1760000000,"chartPreviousClose":70100}}]}}`))
	}))
	defer srv.Close()

	p := NewYahooProvider(time.Second)
	p.baseURL = srv.URL
	q, err := p.Quote(context.Background(), "005930.ks")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(71200)))
	assert.True(t, q.PreviousClose.Equal(decimal.NewFromInt(70100)))
	assert.Equal(t, "KRW", q.Currency)
	assert.Equal(t, time.Unix(1760000000, 0).UTC(), q.AsOf)
}

func TestYahooProviderFallsBackToLastClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"currency":"USD"},"timestamp":[100,200,300],"indicators":{"quote":[{"close":[1.5,2.5,null]}]}}]}}`))
	}))
	defer srv.Close()

	p := NewYahooProvider(time.Second)
	p.baseURL = srv.URL
	q, err := p.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, time.Unix(200, 0).UTC(), q.AsOf)
}

func TestYahooProviderErrors(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"chart":{"result":[]}}`))
	}))
	defer srv.Close()

	p := NewYahooProvider(time.Second)
	p.baseURL = srv.URL
	_, err := p.Quote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrRateLimited)

	status = http.StatusOK
	_, err = p.Quote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestAlphaVantageProvider(t *testing.T) {
	body := `{"Global Quote":{"01. symbol":"IBM","05. price":"231.4400","07. latest trading day":"2026-10-16","08. previous close":"229.0000"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "secret", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	fetched := time.Date(2026, 10, 17, 14, 5, 0, 0, time.UTC)
	p := NewAlphaVantageProvider("secret", time.Second)
	p.baseURL = srv.URL
	p.now = func() time.Time { return fetched }
	q, err := p.Quote(context.Background(), "ibm")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("231.44")))
	assert.True(t, q.PreviousClose.Equal(decimal.NewFromInt(229)))
	assert.Equal(t, "USD", q.Currency)
	// the trading day is yesterday, but the quote is as of the fetch
	assert.Equal(t, fetched, q.AsOf)

	body = `{"Note":"Thank you for using Alpha Vantage!"}`
	_, err = p.Quote(context.Background(), "IBM")
	assert.ErrorIs(t, err, ErrRateLimited)

	body = `{"Global Quote":{}}`
	_, err = p.Quote(context.Background(), "IBM")
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestSimulatedProviderIsDeterministic(t *testing.T) {
	fixed := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	p := NewSimulatedProvider(time.Minute, "KRW")
	p.nowFunc = func() time.Time { return fixed }

	a, err := p.Quote(context.Background(), "AAA")
	require.NoError(t, err)
	other := NewSimulatedProvider(time.Minute, "KRW")
	other.nowFunc = func() time.Time { return fixed }
	b, err := other.Quote(context.Background(), "AAA")
	require.NoError(t, err)

	assert.True(t, a.Price.Equal(b.Price))
	assert.True(t, a.Price.IsPositive())
	assert.Equal(t, "KRW", a.Currency)
	assert.Equal(t, fixed, a.AsOf)
}

func TestSimulatedProviderRegeneratesWithinBucket(t *testing.T) {
	clock := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	p := NewSimulatedProvider(time.Hour, "KRW")
	p.nowFunc = func() time.Time { return clock }

	a, err := p.Quote(context.Background(), "AAA")
	require.NoError(t, err)
	clock = clock.Add(15 * time.Minute)
	b, err := p.Quote(context.Background(), "AAA")
	require.NoError(t, err)

	assert.True(t, a.Price.Equal(b.Price))
	assert.Equal(t, clock, b.AsOf)
}

func TestBuildProviders(t *testing.T) {
	ps, err := BuildProviders([]string{"yahoo", " alphavantage", "Simulated"}, ProviderOptions{HTTPTimeout: time.Second, BaseCurrency: "KRW"})
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, KindYahoo, ps[0].Kind())
	assert.Equal(t, KindSimulated, ps[1].Kind())

	_, err = BuildProviders([]string{"bloomberg"}, ProviderOptions{})
	assert.Error(t, err)
	_, err = BuildProviders(nil, ProviderOptions{})
	assert.Error(t, err)
}

func TestStaticRates(t *testing.T) {
	rates, err := ParseRates("usd:1350, JPY:9.1")
	require.NoError(t, err)
	fx, err := NewStaticRates("krw", rates)
	require.NoError(t, err)
	assert.Equal(t, "KRW", fx.Base())

	v, err := fx.ToBase(decimal.NewFromInt(2), "USD")
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(2700)))
	v, err = fx.ToBase(decimal.NewFromInt(2), "")
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(2)))
	_, err = fx.ToBase(decimal.NewFromInt(2), "EUR")
	assert.Error(t, err)

	_, err = NewStaticRates("XXXX", nil)
	assert.Error(t, err)
	_, err = ParseRates("USD=1")
	assert.Error(t, err)
}

func TestMinorUnits(t *testing.T) {
	krw, err := MinorUnits("KRW")
	require.NoError(t, err)
	assert.Equal(t, int32(0), krw)
	usd, err := MinorUnits("usd")
	require.NoError(t, err)
	assert.Equal(t, int32(2), usd)
	_, err = MinorUnits("NOPE")
	assert.Error(t, err)
}
