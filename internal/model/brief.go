package model

import (
	"fmt"
	"strings"
)

// Brief describes the business a search runs for
type Brief struct {
	BusinessName  string   `json:"business_name"`
	Vibe          string   `json:"vibe,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	Constraints   []string `json:"constraints,omitempty"`
	TLDs          []string `json:"tlds"`
	TargetResults int      `json:"target_results"`
	MaxBatches    int      `json:"max_batches"`
	Backend       string   `json:"backend,omitempty"`
	NotifyEmail   string   `json:"notify_email,omitempty"`
}

// Normalize trims fields and canonicalizes the TLD list
func (b *Brief) Normalize() {
	b.BusinessName = strings.TrimSpace(b.BusinessName)
	b.Vibe = strings.TrimSpace(b.Vibe)
	b.Backend = strings.ToLower(strings.TrimSpace(b.Backend))
	b.NotifyEmail = strings.TrimSpace(b.NotifyEmail)

	seen := make(map[string]bool, len(b.TLDs))
	tlds := make([]string, 0, len(b.TLDs))
	for _, tld := range b.TLDs {
		tld = strings.ToLower(strings.TrimSpace(tld))
		tld = strings.TrimPrefix(tld, ".")
		if tld == "" || seen[tld] {
			continue
		}
		seen[tld] = true
		tlds = append(tlds, tld)
	}
	b.TLDs = tlds

	b.Keywords = compact(b.Keywords)
	b.Constraints = compact(b.Constraints)
}

// Validate checks the required fields
func (b *Brief) Validate() error {
	if b.BusinessName == "" {
		return fmt.Errorf("%w: business_name is required", ErrInvalidBrief)
	}
	if len(b.TLDs) == 0 {
		return fmt.Errorf("%w: at least one tld is required", ErrInvalidBrief)
	}
	if b.TargetResults < 1 {
		return fmt.Errorf("%w: target_results must be positive", ErrInvalidBrief)
	}
	if b.MaxBatches < 1 {
		return fmt.Errorf("%w: max_batches must be positive", ErrInvalidBrief)
	}
	return nil
}

// MatchTLD returns the longest brief TLD that name ends with, so
// "sunrise.co.uk" matches "co.uk" even when "uk" is targeted too
func (b *Brief) MatchTLD(name string) (string, bool) {
	match := ""
	for _, t := range b.TLDs {
		if len(t) > len(match) && len(name) > len(t)+1 && strings.HasSuffix(name, "."+t) {
			match = t
		}
	}
	return match, match != ""
}

func compact(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
