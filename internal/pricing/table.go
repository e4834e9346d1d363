package pricing

import (
	"strings"
	"sync"
	"time"

	"github.com/kirychukyurii/domain-search/internal/cache"
	"github.com/kirychukyurii/domain-search/internal/model"
)

// TLDPrice is a raw registry price for one TLD
type TLDPrice struct {
	TLD          string
	Cents        int64
	RenewalCents int64
	Currency     string
}

// Lookup returns a cached price for a TLD without doing any I/O
type Lookup interface {
	FetchPrice(tld string) (*model.Price, bool)
}

// Table is the read-mostly per-TLD price table
type Table struct {
	cache      cache.Cache
	currency   string
	thresholds model.PriceThresholds

	mu     sync.RWMutex
	static map[string]TLDPrice
}

// NewTable creates an empty table. Entries expire after ttl unless refreshed;
// a non-positive ttl keeps them until the next refresh replaces them.
func NewTable(ttl time.Duration, currency string, thresholds model.PriceThresholds) *Table {
	if currency == "" {
		currency = "USD"
	}
	return &Table{
		cache:      cache.New(ttl),
		currency:   currency,
		thresholds: thresholds,
		static:     make(map[string]TLDPrice),
	}
}

// FetchPrice returns the price of a TLD or false when the TLD is unpriced.
// It never blocks on a refresh.
func (t *Table) FetchPrice(tld string) (*model.Price, bool) {
	tld = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(tld)), ".")
	v, ok := t.cache.Get(tld)
	if !ok {
		return nil, false
	}
	p := v.(TLDPrice)

	currency := p.Currency
	if currency == "" {
		currency = t.currency
	}
	return &model.Price{
		Cents:        p.Cents,
		RenewalCents: p.RenewalCents,
		Currency:     currency,
		Category:     t.thresholds.Categorize(p.Cents),
	}, true
}

// Set stores a single TLD price
func (t *Table) Set(p TLDPrice) {
	p = canonical(p)
	t.cache.Set(p.TLD, p, 0)
}

// SetStatic stores a configured fallback price. It never expires, and a
// refresh that omits the TLD restores it instead of dropping it.
func (t *Table) SetStatic(p TLDPrice) {
	p = canonical(p)

	t.mu.Lock()
	t.static[p.TLD] = p
	t.mu.Unlock()

	t.cache.Set(p.TLD, p, cache.NoExpiration)
}

// Replace swaps the table content for a freshly fetched price list. Fetched
// prices win over static ones for the same TLD.
func (t *Table) Replace(prices []TLDPrice) {
	keep := make(map[string]bool, len(prices))
	for _, p := range prices {
		p = canonical(p)
		t.cache.Set(p.TLD, p, 0)
		keep[p.TLD] = true
	}

	t.mu.RLock()
	for tld, p := range t.static {
		if !keep[tld] {
			t.cache.Set(tld, p, cache.NoExpiration)
			keep[tld] = true
		}
	}
	t.mu.RUnlock()

	for _, key := range t.cache.Keys() {
		if !keep[key] {
			t.cache.Delete(key)
		}
	}
}

func canonical(p TLDPrice) TLDPrice {
	p.TLD = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(p.TLD)), ".")
	if p.RenewalCents == 0 {
		p.RenewalCents = p.Cents
	}
	return p
}

// Len returns the number of priced TLDs
func (t *Table) Len() int {
	return len(t.cache.Keys())
}

// Thresholds returns the categorization thresholds
func (t *Table) Thresholds() model.PriceThresholds {
	return t.thresholds
}
