package provider

import (
	"context"

	"github.com/kirychukyurii/domain-search/internal/model"
)

// Backend names
const (
	Claude     = "claude"
	Deepseek   = "deepseek"
	Kimi       = "kimi"
	Cloudflare = "cloudflare"
	Heuristic  = "heuristic"
)

// GenerateRequest asks for new candidate names
type GenerateRequest struct {
	Brief      model.Brief
	Exclusions []string
	Count      int
}

// EvaluateRequest asks for a quality score of one name
type EvaluateRequest struct {
	Name  string
	Brief model.Brief
}

// Generator produces candidate domain names for a brief
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]string, error)
}

// Evaluator scores a single candidate name
type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluateRequest) (*model.Score, error)
}

// Backend is a named AI capability offering both generation and evaluation
type Backend interface {
	Generator
	Evaluator
	Name() string
}
