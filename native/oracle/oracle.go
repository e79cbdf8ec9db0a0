package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"
)

// PriceQuote captures a USD price for a collateral asset along with the
// timestamp reported by the upstream feed and the feed identifier. Value is a
// fixed-point USD amount scaled by 10^Decimals.
type PriceQuote struct {
	Value     *big.Int
	Decimals  uint8
	UpdatedAt int64
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{Decimals: q.Decimals, UpdatedAt: q.UpdatedAt, Source: q.Source}
	if q.Value != nil {
		clone.Value = new(big.Int).Set(q.Value)
	}
	return clone
}

// PriceFeed resolves the current USD quote for an asset symbol.
type PriceFeed interface {
	GetPrice(asset string) (PriceQuote, error)
}

// FeedHealth captures freshness metadata for a single asset feed.
type FeedHealth struct {
	Asset        string `json:"asset"`
	Source       string `json:"source"`
	LastObserved int64  `json:"lastObserved"`
	Stale        bool   `json:"stale"`
}

// Health aggregates freshness information for all registered feeds.
type Health struct {
	Feeds []FeedHealth `json:"feeds"`
}

var (
	// ErrStalePriceFeed indicates the feed's last update falls outside the
	// configured staleness window. Valuations used for solvency decisions
	// must fail closed on this error, never default to a zero or cached
	// price.
	ErrStalePriceFeed = errors.New("oracle: stale price feed")
	// ErrUnknownAsset marks a price request for an asset with no registered
	// feed.
	ErrUnknownAsset = errors.New("oracle: no feed registered for asset")
)

// usdDecimals is the fixed-point scale used for all USD valuations.
const usdDecimals = 18

// Adapter wraps per-asset price feeds behind a staleness check and converts
// raw quotes into 18-decimal USD valuations.
type Adapter struct {
	mu        sync.RWMutex
	feeds     map[string]PriceFeed
	maxAge    time.Duration
	volatile  bool
	nowFn     func() int64
	lastSeen  map[string]int64
	assetDecs map[string]uint8
}

// NewAdapter constructs an adapter enforcing the supplied staleness window.
func NewAdapter(maxAge time.Duration) *Adapter {
	return &Adapter{
		feeds:     make(map[string]PriceFeed),
		maxAge:    maxAge,
		nowFn:     func() int64 { return time.Now().Unix() },
		lastSeen:  make(map[string]int64),
		assetDecs: make(map[string]uint8),
	}
}

// SetNowFunc overrides the wall clock, primarily for deterministic tests.
func (a *Adapter) SetNowFunc(now func() int64) {
	if a == nil || now == nil {
		return
	}
	a.mu.Lock()
	a.nowFn = now
	a.mu.Unlock()
}

// RegisterFeed wires the feed serving the given asset symbol. assetDecimals
// is the token's native decimal count, used when scaling amounts to USD.
func (a *Adapter) RegisterFeed(asset string, feed PriceFeed, assetDecimals uint8) {
	if a == nil || feed == nil {
		return
	}
	symbol := normalizeAsset(asset)
	if symbol == "" {
		return
	}
	a.mu.Lock()
	a.feeds[symbol] = feed
	a.assetDecs[symbol] = assetDecimals
	a.mu.Unlock()
}

// SetVolatile flags the reference market as volatile. The interest model
// applies its oracle risk premium while the flag is raised.
func (a *Adapter) SetVolatile(v bool) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.volatile = v
	a.mu.Unlock()
}

// Volatile reports whether the volatility flag is currently raised.
func (a *Adapter) Volatile() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.volatile
}

// Degraded reports whether borrow pricing should carry the oracle risk
// premium: either the volatility flag is raised or any registered feed has
// gone stale.
func (a *Adapter) Degraded() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.volatile {
		return true
	}
	if a.maxAge <= 0 {
		return false
	}
	now := a.nowFn()
	for symbol := range a.feeds {
		last := a.lastSeen[symbol]
		if last > 0 && now-last > int64(a.maxAge/time.Second) {
			return true
		}
	}
	return false
}

// GetPrice returns a fresh quote for the asset or fails with
// ErrStalePriceFeed / ErrUnknownAsset.
func (a *Adapter) GetPrice(asset string) (PriceQuote, error) {
	if a == nil {
		return PriceQuote{}, ErrUnknownAsset
	}
	symbol := normalizeAsset(asset)
	a.mu.RLock()
	feed, ok := a.feeds[symbol]
	now := a.nowFn()
	maxAge := a.maxAge
	a.mu.RUnlock()
	if !ok {
		return PriceQuote{}, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	quote, err := feed.GetPrice(symbol)
	if err != nil {
		return PriceQuote{}, err
	}
	a.mu.Lock()
	a.lastSeen[symbol] = quote.UpdatedAt
	a.mu.Unlock()
	if quote.Value == nil || quote.Value.Sign() <= 0 {
		return PriceQuote{}, fmt.Errorf("%w: %s", ErrStalePriceFeed, asset)
	}
	if maxAge > 0 && now-quote.UpdatedAt > int64(maxAge/time.Second) {
		return PriceQuote{}, fmt.Errorf("%w: %s", ErrStalePriceFeed, asset)
	}
	return quote.Clone(), nil
}

// USDValue converts an asset amount into an 18-decimal USD valuation using a
// fresh quote. Staleness propagates as an error so solvency checks fail
// closed.
func (a *Adapter) USDValue(asset string, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	quote, err := a.GetPrice(asset)
	if err != nil {
		return nil, err
	}
	a.mu.RLock()
	assetDecs := a.assetDecs[normalizeAsset(asset)]
	a.mu.RUnlock()

	// value = amount * price, rescaled so the result carries usdDecimals.
	value := new(big.Int).Mul(amount, quote.Value)
	shift := int(assetDecs) + int(quote.Decimals) - usdDecimals
	switch {
	case shift > 0:
		value.Quo(value, pow10(shift))
	case shift < 0:
		value.Mul(value, pow10(-shift))
	}
	return value, nil
}

// Healthy reports per-feed freshness for operational visibility.
func (a *Adapter) Healthy() Health {
	if a == nil {
		return Health{}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	now := a.nowFn()
	report := Health{Feeds: make([]FeedHealth, 0, len(a.feeds))}
	for symbol := range a.feeds {
		last := a.lastSeen[symbol]
		stale := a.maxAge > 0 && last > 0 && now-last > int64(a.maxAge/time.Second)
		source := ""
		if quote, err := a.feeds[symbol].GetPrice(symbol); err == nil {
			source = quote.Source
			if a.maxAge > 0 && now-quote.UpdatedAt > int64(a.maxAge/time.Second) {
				stale = true
			} else {
				stale = false
			}
		}
		report.Feeds = append(report.Feeds, FeedHealth{
			Asset:        symbol,
			Source:       source,
			LastObserved: last,
			Stale:        stale,
		})
	}
	sort.Slice(report.Feeds, func(i, j int) bool {
		return report.Feeds[i].Asset < report.Feeds[j].Asset
	})
	return report
}

func normalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
