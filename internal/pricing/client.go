package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// Source fetches the full price list
type Source interface {
	FetchAll(ctx context.Context) ([]TLDPrice, error)
}

// HTTPSource reads the Cloudflare-style pricing endpoint
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates a pricing source for the given endpoint
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSource{url: url, client: &http.Client{Timeout: timeout}}
}

type pricingResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
	Result []struct {
		TLD          string   `json:"tld"`
		Price        float64  `json:"price"`
		RenewalPrice *float64 `json:"renewal_price"`
		Currency     string   `json:"currency"`
	} `json:"result"`
}

// FetchAll downloads and converts every listed TLD price to cents
func (s *HTTPSource) FetchAll(ctx context.Context) ([]TLDPrice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pricing: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch pricing: status %d", resp.StatusCode)
	}

	var out pricingResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode pricing: %w", err)
	}

	if !out.Success {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		if len(msgs) == 0 {
			return nil, errors.New("pricing api error: unknown error")
		}
		return nil, fmt.Errorf("pricing api error: %s", strings.Join(msgs, "; "))
	}

	prices := make([]TLDPrice, 0, len(out.Result))
	for _, r := range out.Result {
		if r.TLD == "" {
			continue
		}
		p := TLDPrice{
			TLD:      r.TLD,
			Cents:    toCents(r.Price),
			Currency: r.Currency,
		}
		if r.RenewalPrice != nil {
			p.RenewalCents = toCents(*r.RenewalPrice)
		} else {
			p.RenewalCents = p.Cents
		}
		prices = append(prices, p)
	}
	return prices, nil
}

func toCents(dollars float64) int64 {
	return int64(math.Round(dollars * 100))
}
