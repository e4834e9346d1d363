package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirychukyurii/domain-search/internal/model"
)

const (
	generateSystemPrompt = "You are a naming expert who proposes brandable domain names. Respond only with valid JSON."
	evaluateSystemPrompt = "You are a brand strategist who rates domain names. Respond only with valid JSON."
)

type generatePayload struct {
	Domains []string `json:"domains"`
}

type evaluatePayload struct {
	Overall          float64 `json:"overall"`
	Pronounceability float64 `json:"pronounceability"`
	Memorability     float64 `json:"memorability"`
	BrandFit         float64 `json:"brand_fit"`
}

func buildGeneratePrompt(req GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business: %s\n", req.Brief.BusinessName)
	if req.Brief.Vibe != "" {
		fmt.Fprintf(&b, "Vibe: %s\n", req.Brief.Vibe)
	}
	if len(req.Brief.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(req.Brief.Keywords, ", "))
	}
	for _, c := range req.Brief.Constraints {
		fmt.Fprintf(&b, "Constraint: %s\n", c)
	}
	fmt.Fprintf(&b, "Allowed TLDs: %s\n", strings.Join(req.Brief.TLDs, ", "))
	if len(req.Exclusions) > 0 {
		fmt.Fprintf(&b, "Do not propose any of: %s\n", strings.Join(req.Exclusions, ", "))
	}
	fmt.Fprintf(&b, "Propose %d new domain names. ", req.Count)
	b.WriteString(`Return {"domains": ["name.tld", ...]}.`)
	return b.String()
}

func buildEvaluatePrompt(req EvaluateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business: %s\n", req.Brief.BusinessName)
	if req.Brief.Vibe != "" {
		fmt.Fprintf(&b, "Vibe: %s\n", req.Brief.Vibe)
	}
	fmt.Fprintf(&b, "Domain: %s\n", req.Name)
	b.WriteString("Rate the domain from 0 to 10 on pronounceability, memorability and brand fit. ")
	b.WriteString(`Return {"pronounceability": n, "memorability": n, "brand_fit": n, "overall": n}.`)
	return b.String()
}

// parseGenerated turns a model reply into a clean list of names
func parseGenerated(raw string, req GenerateRequest) ([]string, error) {
	text := extractJSONFragment(raw)
	if text == "" {
		return nil, errors.New("empty payload")
	}

	var names []string
	if strings.HasPrefix(text, "[") {
		if err := json.Unmarshal([]byte(text), &names); err != nil {
			return nil, err
		}
	} else {
		var payload generatePayload
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			return nil, err
		}
		names = payload.Domains
	}

	return FilterNames(names, req), nil
}

func parseScore(raw string) (*model.Score, error) {
	payload, err := parseModelPayload[evaluatePayload](raw)
	if err != nil {
		return nil, err
	}

	score := &model.Score{
		Pronounceability: clampScore(payload.Pronounceability),
		Memorability:     clampScore(payload.Memorability),
		BrandFit:         clampScore(payload.BrandFit),
		Overall:          clampScore(payload.Overall),
	}
	if score.Overall == 0 {
		score.Overall = (score.Pronounceability + score.Memorability + score.BrandFit) / 3
	}
	return score, nil
}

// FilterNames normalizes names, keeps those on the brief's TLDs, drops
// duplicates and exclusions, and truncates to req.Count
func FilterNames(names []string, req GenerateRequest) []string {
	excluded := make(map[string]bool, len(req.Exclusions))
	for _, name := range req.Exclusions {
		excluded[model.NormalizeDomain(name)] = true
	}

	out := make([]string, 0, len(names))
	for _, name := range names {
		name = model.NormalizeDomain(name)
		if !model.IsValidDomain(name) || excluded[name] {
			continue
		}
		if _, ok := req.Brief.MatchTLD(name); !ok {
			continue
		}
		excluded[name] = true
		out = append(out, name)
		if req.Count > 0 && len(out) == req.Count {
			break
		}
	}
	return out
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 10:
		return 10
	default:
		return v
	}
}

func parseModelPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return zero, errors.New("empty payload")
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := trimCodeFence(raw)
	if text == "" {
		return ""
	}
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
