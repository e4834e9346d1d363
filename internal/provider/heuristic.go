package provider

import (
	"context"
	"strings"
	"unicode"

	"github.com/kirychukyurii/domain-search/internal/model"
)

var (
	heuristicPrefixes = []string{"get", "the", "try", "my", "go", "hey", "join", "meet"}
	heuristicSuffixes = []string{"hq", "co", "hub", "shop", "studio", "lab", "works", "ly", "house", "place"}
)

// heuristicBackend synthesizes and scores names offline. It is deterministic
// and never fails, which makes it the fallback when no API key is configured.
type heuristicBackend struct{}

// NewHeuristic creates the offline backend
func NewHeuristic() Backend {
	return heuristicBackend{}
}

func (heuristicBackend) Name() string {
	return Heuristic
}

func (heuristicBackend) Generate(ctx context.Context, req GenerateRequest) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &model.ProviderError{Provider: Heuristic, Op: "generate", Err: err}
	}

	stems := heuristicStems(req.Brief)
	bases := make([]string, 0, len(stems)*(2+len(heuristicPrefixes)+len(heuristicSuffixes)))
	if len(stems) > 1 {
		bases = append(bases, strings.Join(stems, ""))
	}
	bases = append(bases, stems...)
	for i := 0; i < len(stems); i++ {
		for k := 0; k < len(stems); k++ {
			if i != k {
				bases = append(bases, stems[i]+stems[k])
			}
		}
	}
	for _, stem := range stems {
		for _, p := range heuristicPrefixes {
			bases = append(bases, p+stem)
		}
		for _, s := range heuristicSuffixes {
			bases = append(bases, stem+s)
		}
	}

	names := make([]string, 0, len(bases)*len(req.Brief.TLDs))
	for _, base := range bases {
		for _, tld := range req.Brief.TLDs {
			names = append(names, base+"."+tld)
		}
	}

	return FilterNames(names, req), nil
}

func (heuristicBackend) Evaluate(ctx context.Context, req EvaluateRequest) (*model.Score, error) {
	if err := ctx.Err(); err != nil {
		return nil, &model.ProviderError{Provider: Heuristic, Op: "evaluate", Err: err}
	}

	label := req.Name
	if idx := strings.Index(label, "."); idx > 0 {
		label = label[:idx]
	}

	pron := pronounceability(label)
	mem := memorability(label)
	fit := brandFit(label, req.Brief)

	return &model.Score{
		Pronounceability: pron,
		Memorability:     mem,
		BrandFit:         fit,
		Overall:          round1((pron + mem + fit) / 3),
	}, nil
}

// heuristicStems splits the business name and keywords into lower-case words
func heuristicStems(brief model.Brief) []string {
	seen := make(map[string]bool)
	var stems []string
	add := func(text string) {
		for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			if len(word) < 2 || seen[word] || !isASCII(word) {
				continue
			}
			seen[word] = true
			stems = append(stems, word)
		}
	}
	add(brief.BusinessName)
	for _, kw := range brief.Keywords {
		add(kw)
	}
	return stems
}

func pronounceability(label string) float64 {
	if label == "" {
		return 0
	}
	score := 10.0
	run := 0
	for _, r := range label {
		switch {
		case r == '-' || unicode.IsDigit(r):
			score -= 1.5
			run = 0
		case strings.ContainsRune("aeiouy", r):
			run = 0
		default:
			run++
			if run >= 3 {
				score -= 1
			}
		}
	}
	return round1(clampScore(score))
}

func memorability(label string) float64 {
	n := len(label)
	var score float64
	switch {
	case n <= 6:
		score = 10
	case n <= 10:
		score = 9 - float64(n-6)*0.5
	case n <= 16:
		score = 7 - float64(n-10)*0.5
	default:
		score = 3
	}
	if strings.ContainsAny(label, "-0123456789") {
		score -= 2
	}
	return round1(clampScore(score))
}

func brandFit(label string, brief model.Brief) float64 {
	stems := heuristicStems(brief)
	if len(stems) == 0 {
		return 5
	}
	matched := 0
	for _, stem := range stems {
		if strings.Contains(label, stem) {
			matched++
		}
	}
	return round1(clampScore(4 + 6*float64(matched)/float64(len(stems))))
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}
