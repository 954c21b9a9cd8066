// Package market implements MarketData: on-demand spot price snapshots
// with a short-lived cache, per §2 ("returns current spot price per
// symbol... caches briefly").
package market

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cryptotrader/internal/exchange"
	"cryptotrader/internal/models"
)

// Data is the MarketData component.
type Data struct {
	client  exchange.Client
	ttl     time.Duration
	mu      sync.Mutex
	cache   map[string]cachedSnapshot
	// indicatorNames are surfaced to AI prompt construction only; no
	// indicator math is computed here (out of scope per §1).
	indicatorNames []string
}

type cachedSnapshot struct {
	snapshot models.MarketSnapshot
	at       time.Time
}

// DefaultCacheTTL is how long a fetched snapshot is reused before a fresh
// fetch is issued.
const DefaultCacheTTL = 10 * time.Second

// DefaultIndicatorNames lists the indicator names referenced in AI
// prompts; their computation is outside the core (§1).
var DefaultIndicatorNames = []string{"rsi_14", "ema_20", "ema_50", "macd", "atr_14", "volume_24h"}

// New constructs a MarketData component backed by an exchange client for
// ticker price lookups.
func New(client exchange.Client) *Data {
	return &Data{
		client:         client,
		ttl:            DefaultCacheTTL,
		cache:          make(map[string]cachedSnapshot),
		indicatorNames: DefaultIndicatorNames,
	}
}

// Snapshot returns {price, 24h change, indicator set} for coin, using the
// cache if still fresh.
func (d *Data) Snapshot(ctx context.Context, coin string) (models.MarketSnapshot, error) {
	d.mu.Lock()
	if cached, ok := d.cache[coin]; ok && time.Since(cached.at) < d.ttl {
		d.mu.Unlock()
		return cached.snapshot, nil
	}
	d.mu.Unlock()

	symbol := exchange.ToSymbol(coin)
	price, err := d.client.GetTickerPrice(ctx, symbol)
	if err != nil {
		return models.MarketSnapshot{}, err
	}

	snapshot := models.MarketSnapshot{
		Coin:         coin,
		Price:        price,
		Change24hPct: decimal.Zero, // exchange wire details for 24h change are out of scope beyond spot price (§1)
		Indicators:   emptyIndicators(d.indicatorNames),
		AsOf:         time.Now().UTC(),
	}

	d.mu.Lock()
	d.cache[coin] = cachedSnapshot{snapshot: snapshot, at: time.Now()}
	d.mu.Unlock()

	return snapshot, nil
}

// SnapshotAll fetches a snapshot for every coin, stopping at the first
// error (callers needing partial results should call Snapshot per coin).
func (d *Data) SnapshotAll(ctx context.Context, coins []string) (map[string]models.MarketSnapshot, error) {
	out := make(map[string]models.MarketSnapshot, len(coins))
	for _, c := range coins {
		snap, err := d.Snapshot(ctx, c)
		if err != nil {
			return nil, err
		}
		out[c] = snap
	}
	return out, nil
}

// IndicatorNames returns the indicator name list used in AI prompt
// construction.
func (d *Data) IndicatorNames() []string { return d.indicatorNames }

func emptyIndicators(names []string) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(names))
	for _, n := range names {
		m[n] = decimal.Zero
	}
	return m
}
