package oracle

import (
	"fmt"
	"math/big"
	"sync"
)

// ManualFeed is a PriceFeed whose quotes are posted explicitly. The daemon
// uses it for administrator-posted prices and tests use it to script price
// movement.
type ManualFeed struct {
	mu     sync.RWMutex
	quotes map[string]PriceQuote
	source string
}

// NewManualFeed constructs an empty manual feed labelled with source.
func NewManualFeed(source string) *ManualFeed {
	return &ManualFeed{
		quotes: make(map[string]PriceQuote),
		source: source,
	}
}

// SetPrice posts a quote for the asset. Value is USD scaled by 10^decimals.
func (f *ManualFeed) SetPrice(asset string, value *big.Int, decimals uint8, updatedAt int64) {
	if f == nil || value == nil {
		return
	}
	symbol := normalizeAsset(asset)
	f.mu.Lock()
	f.quotes[symbol] = PriceQuote{
		Value:     new(big.Int).Set(value),
		Decimals:  decimals,
		UpdatedAt: updatedAt,
		Source:    f.source,
	}
	f.mu.Unlock()
}

// GetPrice implements PriceFeed.
func (f *ManualFeed) GetPrice(asset string) (PriceQuote, error) {
	if f == nil {
		return PriceQuote{}, ErrUnknownAsset
	}
	f.mu.RLock()
	quote, ok := f.quotes[normalizeAsset(asset)]
	f.mu.RUnlock()
	if !ok {
		return PriceQuote{}, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return quote.Clone(), nil
}
