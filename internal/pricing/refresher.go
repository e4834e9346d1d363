package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kirychukyurii/domain-search/internal/config"
	"github.com/kirychukyurii/domain-search/internal/model"
)

// Refresher keeps the price table up to date in the background
type Refresher struct {
	cfg     *config.PricingConfig
	table   *Table
	source  Source
	logger  *slog.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	group   singleflight.Group
	started bool

	mu                  sync.RWMutex
	lastRefresh         time.Time
	consecutiveFailures int
}

// NewRefresher creates a new pricing refresher
func NewRefresher(cfg *config.PricingConfig, table *Table, source Source, logger *slog.Logger) *Refresher {
	return &Refresher{
		cfg:    cfg,
		table:  table,
		source: source,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// NewTableFromConfig builds a table with thresholds and static prices from config
func NewTableFromConfig(cfg *config.PricingConfig) *Table {
	table := NewTable(cfg.TTL, cfg.Currency, model.PriceThresholds{
		BundledMaxCents:       cfg.BundledMaxCents,
		RecommendedMaxCents:   cfg.RecommendedMaxCents,
		PremiumFlagAboveCents: cfg.PremiumFlagAboveCents,
	})
	for tld, cents := range cfg.Static {
		table.SetStatic(TLDPrice{TLD: tld, Cents: cents, Currency: cfg.Currency})
	}
	return table
}

// Start begins the refresh loop in a background goroutine. The first refresh
// runs immediately; lookups return "unpriced" until it lands.
func (r *Refresher) Start(ctx context.Context) {
	if r.cfg.URL == "" || r.cfg.RefreshInterval <= 0 {
		r.logger.Info("pricing refresh is disabled",
			slog.Int("static_tlds", r.table.Len()),
		)
		return
	}

	r.logger.Info("starting pricing refresher",
		slog.String("url", r.cfg.URL),
		slog.Duration("interval", r.cfg.RefreshInterval),
	)

	r.started = true
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop gracefully stops the refresher
func (r *Refresher) Stop() {
	if !r.started {
		return
	}

	r.logger.Info("stopping pricing refresher")
	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("pricing refresher stopped")
}

func (r *Refresher) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()

	r.refreshAndLog(ctx)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshAndLog(ctx)
		}
	}
}

func (r *Refresher) refreshAndLog(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		r.mu.RLock()
		failures := r.consecutiveFailures
		r.mu.RUnlock()

		r.logger.Warn("pricing refresh failed, keeping previous table",
			slog.String("error", err.Error()),
			slog.Int("consecutive_failures", failures),
		)
	}
}

// Refresh fetches the price list once. Concurrent callers share a single
// fetch. A failed refresh leaves the current table untouched.
func (r *Refresher) Refresh(ctx context.Context) error {
	_, err, _ := r.group.Do("refresh", func() (any, error) {
		fetchCtx := ctx
		if r.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
			defer cancel()
		}

		prices, err := r.source.FetchAll(fetchCtx)
		if err != nil {
			r.mu.Lock()
			r.consecutiveFailures++
			r.mu.Unlock()
			return nil, fmt.Errorf("refresh pricing: %w", err)
		}

		r.table.Replace(prices)

		r.mu.Lock()
		previousFailures := r.consecutiveFailures
		r.consecutiveFailures = 0
		r.lastRefresh = time.Now()
		r.mu.Unlock()

		if previousFailures > 0 {
			r.logger.Info("pricing refreshed, source restored",
				slog.Int("tlds", len(prices)),
				slog.Int("previous_failures", previousFailures),
			)
		} else {
			r.logger.Debug("pricing refreshed", slog.Int("tlds", len(prices)))
		}
		return nil, nil
	})
	return err
}

// LastRefresh returns the time of the last successful refresh
func (r *Refresher) LastRefresh() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefresh
}
