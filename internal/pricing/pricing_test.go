package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirychukyurii/domain-search/internal/config"
	"github.com/kirychukyurii/domain-search/internal/logger"
	"github.com/kirychukyurii/domain-search/internal/model"
)

const pricingBody = `{
  "success": true,
  "errors": [],
  "result": [
    {"tld": "com", "price": 10.44, "renewal_price": 10.44},
    {"tld": "io", "price": 39.0, "renewal_price": 49.5},
    {"tld": "xyz", "price": 0},
    {"tld": "luxury", "price": 120.0}
  ]
}`

var testThresholds = model.PriceThresholds{
	BundledMaxCents:       0,
	RecommendedMaxCents:   1500,
	PremiumFlagAboveCents: 5000,
}

func TestHTTPSource_FetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pricingBody))
	}))
	defer srv.Close()

	prices, err := NewHTTPSource(srv.URL, time.Second).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(prices) != 4 {
		t.Fatalf("got %d prices", len(prices))
	}
	if prices[0].Cents != 1044 {
		t.Errorf("com cents = %d, want 1044", prices[0].Cents)
	}
	if prices[1].RenewalCents != 4950 {
		t.Errorf("io renewal = %d, want 4950", prices[1].RenewalCents)
	}
	if prices[3].RenewalCents != 12000 {
		t.Errorf("luxury renewal should default to price, got %d", prices[3].RenewalCents)
	}
}

func TestHTTPSource_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "errors": [{"message": "bad token"}], "result": []}`))
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, time.Second).FetchAll(context.Background())
	if err == nil || err.Error() != "pricing api error: bad token" {
		t.Fatalf("err = %v", err)
	}
}

func TestTable_Categories(t *testing.T) {
	table := NewTable(0, "USD", testThresholds)
	table.Replace([]TLDPrice{
		{TLD: "com", Cents: 1044},
		{TLD: ".IO", Cents: 3900},
		{TLD: "xyz", Cents: 0},
		{TLD: "luxury", Cents: 12000},
	})

	tests := []struct {
		tld      string
		category string
	}{
		{"com", model.PriceCategoryRecommended},
		{"io", model.PriceCategoryStandard},
		{"xyz", model.PriceCategoryBundled},
		{".luxury", model.PriceCategoryPremium},
	}
	for _, tt := range tests {
		price, ok := table.FetchPrice(tt.tld)
		if !ok {
			t.Errorf("%s: not priced", tt.tld)
			continue
		}
		if price.Category != tt.category {
			t.Errorf("%s: category = %s, want %s", tt.tld, price.Category, tt.category)
		}
		if price.Currency != "USD" {
			t.Errorf("%s: currency = %s", tt.tld, price.Currency)
		}
	}

	if _, ok := table.FetchPrice("dev"); ok {
		t.Error("dev should be unpriced")
	}
}

func TestTable_ReplaceDropsStaleEntries(t *testing.T) {
	table := NewTable(0, "USD", testThresholds)
	table.Replace([]TLDPrice{{TLD: "com", Cents: 1000}, {TLD: "net", Cents: 1200}})
	table.Replace([]TLDPrice{{TLD: "com", Cents: 1100}})

	if table.Len() != 1 {
		t.Fatalf("len = %d, want 1", table.Len())
	}
	if _, ok := table.FetchPrice("net"); ok {
		t.Error("net should have been dropped")
	}
	price, _ := table.FetchPrice("com")
	if price.Cents != 1100 || price.RenewalCents != 1100 {
		t.Errorf("com = %+v", price)
	}
}

func TestTable_ReplaceKeepsStaticFallback(t *testing.T) {
	table := NewTable(time.Hour, "USD", testThresholds)
	table.SetStatic(TLDPrice{TLD: ".DEV", Cents: 1200})
	table.SetStatic(TLDPrice{TLD: "com", Cents: 900})

	table.Replace([]TLDPrice{{TLD: "com", Cents: 1100}, {TLD: "net", Cents: 1300}})
	if price, ok := table.FetchPrice("com"); !ok || price.Cents != 1100 {
		t.Errorf("com after refresh = %+v, want the fetched price", price)
	}
	if price, ok := table.FetchPrice("dev"); !ok || price.Cents != 1200 {
		t.Errorf("dev after refresh = %+v, want the static price", price)
	}

	// a later refresh without com falls back to its static price
	table.Replace([]TLDPrice{{TLD: "net", Cents: 1300}})
	if price, ok := table.FetchPrice("com"); !ok || price.Cents != 900 {
		t.Errorf("com after it left the price list = %+v, want 900", price)
	}
	if table.Len() != 3 {
		t.Errorf("len = %d, want 3", table.Len())
	}

	table.Replace(nil)
	if _, ok := table.FetchPrice("net"); ok {
		t.Error("net should have been dropped")
	}
	if _, ok := table.FetchPrice("dev"); !ok {
		t.Error("dev should survive an empty refresh")
	}
}

type sourceFunc func(ctx context.Context) ([]TLDPrice, error)

func (f sourceFunc) FetchAll(ctx context.Context) ([]TLDPrice, error) { return f(ctx) }

func TestRefresher_FailureKeepsTable(t *testing.T) {
	cfg := &config.PricingConfig{URL: "unused", RefreshInterval: time.Hour, Currency: "USD"}
	table := NewTable(0, "USD", testThresholds)
	table.Set(TLDPrice{TLD: "com", Cents: 1000})

	r := NewRefresher(cfg, table, sourceFunc(func(ctx context.Context) ([]TLDPrice, error) {
		return nil, errors.New("upstream down")
	}), logger.Discard())

	if err := r.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if _, ok := table.FetchPrice("com"); !ok {
		t.Error("failed refresh must not clear the table")
	}
	if !r.LastRefresh().IsZero() {
		t.Error("last refresh should not be set on failure")
	}
}

func TestRefresher_ConcurrentRefreshSharesFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})

	cfg := &config.PricingConfig{URL: "unused", RefreshInterval: time.Hour, Currency: "USD"}
	table := NewTable(0, "USD", testThresholds)
	r := NewRefresher(cfg, table, sourceFunc(func(ctx context.Context) ([]TLDPrice, error) {
		calls.Add(1)
		<-release
		return []TLDPrice{{TLD: "com", Cents: 1000}}, nil
	}), logger.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Refresh(context.Background()); err != nil {
				t.Errorf("Refresh: %v", err)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fetches = %d, want 1", calls.Load())
	}
	if table.Len() != 1 {
		t.Errorf("len = %d", table.Len())
	}
}

func TestRefresher_StartStop(t *testing.T) {
	fetched := make(chan struct{}, 1)
	cfg := &config.PricingConfig{
		URL:             "unused",
		RefreshInterval: time.Hour,
		Currency:        "USD",
		Static:          map[string]int64{"dev": 1200},
	}
	table := NewTableFromConfig(cfg)
	if _, ok := table.FetchPrice("dev"); !ok {
		t.Fatal("static price missing before first refresh")
	}

	r := NewRefresher(cfg, table, sourceFunc(func(ctx context.Context) ([]TLDPrice, error) {
		defer func() { fetched <- struct{}{} }()
		return []TLDPrice{{TLD: "com", Cents: 1000}}, nil
	}), logger.Discard())

	r.Start(context.Background())
	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatal("initial refresh did not run")
	}
	r.Stop()

	if _, ok := table.FetchPrice("com"); !ok {
		t.Error("com missing after refresh")
	}
	if _, ok := table.FetchPrice("dev"); !ok {
		t.Error("static tld dropped by refresh")
	}
}
