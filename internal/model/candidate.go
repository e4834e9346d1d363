package model

import (
	"sort"
	"strings"
)

// Availability is the outcome of an availability lookup
type Availability string

const (
	AvailabilityUnknown   Availability = "unknown"
	AvailabilityAvailable Availability = "available"
	AvailabilityTaken     Availability = "taken"
	AvailabilityError     Availability = "error"
)

// Price categories, ordered from cheapest to most expensive
const (
	PriceCategoryBundled     = "bundled"
	PriceCategoryRecommended = "recommended"
	PriceCategoryStandard    = "standard"
	PriceCategoryPremium     = "premium"
)

// Candidate is one evaluated domain name
type Candidate struct {
	Name         string       `json:"name"`
	Score        *Score       `json:"score,omitempty"`
	Availability Availability `json:"availability"`
	Detail       *Detail      `json:"detail,omitempty"`
	Price        *Price       `json:"price,omitempty"`
	BatchIndex   int          `json:"batch_index"`
}

// Score holds the evaluator quality signals (0-10, higher is better)
type Score struct {
	Overall          float64 `json:"overall"`
	Pronounceability float64 `json:"pronounceability"`
	Memorability     float64 `json:"memorability"`
	BrandFit         float64 `json:"brand_fit"`
}

// Detail carries diagnostic lookup information
type Detail struct {
	Registrar  string `json:"registrar,omitempty"`
	Expiration string `json:"expiration,omitempty"`
	Created    string `json:"created,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Price is a registration price for a domain
type Price struct {
	Cents        int64  `json:"cents"`
	RenewalCents int64  `json:"renewal_cents,omitempty"`
	Currency     string `json:"currency"`
	Category     string `json:"category"`
}

// Dollars returns the price in currency units
func (p *Price) Dollars() float64 {
	return float64(p.Cents) / 100.0
}

// PriceThresholds configures how prices map to categories
type PriceThresholds struct {
	BundledMaxCents       int64
	RecommendedMaxCents   int64
	PremiumFlagAboveCents int64
}

// Categorize returns the category for a price in cents
func (t PriceThresholds) Categorize(cents int64) string {
	switch {
	case cents <= t.BundledMaxCents:
		return PriceCategoryBundled
	case cents <= t.RecommendedMaxCents:
		return PriceCategoryRecommended
	case cents >= t.PremiumFlagAboveCents:
		return PriceCategoryPremium
	default:
		return PriceCategoryStandard
	}
}

// Qualifies reports whether the candidate may appear in results
func (c *Candidate) Qualifies(requireScore bool) bool {
	if c.Availability != AvailabilityAvailable || c.Price == nil {
		return false
	}
	return !requireScore || c.Score != nil
}

// NormalizeDomain lower-cases a domain name and strips surrounding noise
func NormalizeDomain(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "http://")
	name = strings.TrimPrefix(name, "https://")
	name = strings.TrimPrefix(name, "www.")
	name = strings.TrimSuffix(name, "/")
	name = strings.TrimSuffix(name, ".")
	return name
}

// TLDSuffixes returns the possible TLDs of a domain name, longest first:
// "a.co.uk" gives "co.uk" then "uk"
func TLDSuffixes(name string) []string {
	var out []string
	for i := strings.Index(name, "."); i >= 0 && i < len(name)-1; {
		out = append(out, name[i+1:])
		next := strings.Index(name[i+1:], ".")
		if next < 0 {
			break
		}
		i += next + 1
	}
	return out
}

// IsValidDomain performs a cheap syntactic check on a normalized domain
func IsValidDomain(name string) bool {
	if len(name) < 3 || len(name) > 253 {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}
	return true
}

// RankResults orders result names by score descending then price ascending.
// Unscored candidates sort after scored ones; ties fall back to name.
func RankResults(names []string, candidates map[string]*Candidate) {
	sort.SliceStable(names, func(i, k int) bool {
		a, b := candidates[names[i]], candidates[names[k]]
		as, bs := scoreOf(a), scoreOf(b)
		if as != bs {
			return as > bs
		}
		ap, bp := priceOf(a), priceOf(b)
		if ap != bp {
			return ap < bp
		}
		return names[i] < names[k]
	})
}

func scoreOf(c *Candidate) float64 {
	if c == nil || c.Score == nil {
		return -1
	}
	return c.Score.Overall
}

func priceOf(c *Candidate) int64 {
	if c == nil || c.Price == nil {
		return 1<<63 - 1
	}
	return c.Price.Cents
}
