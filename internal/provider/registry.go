package provider

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/kirychukyurii/domain-search/internal/config"
)

// Registry resolves backend names to configured backends
type Registry struct {
	backends map[string]Backend
	fallback string
}

// NewRegistry creates a registry holding the given backends. The fallback is
// used for empty names.
func NewRegistry(fallback string, backends ...Backend) *Registry {
	r := &Registry{backends: make(map[string]Backend, len(backends)), fallback: fallback}
	for _, b := range backends {
		r.backends[b.Name()] = b
	}
	return r
}

// NewRegistryFromConfig builds every backend that has credentials configured.
// The heuristic backend is always present; when the configured default is not
// available it becomes the fallback.
func NewRegistryFromConfig(cfg config.ProvidersConfig, defaultBackend string, logger *slog.Logger) *Registry {
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.Timeout <= 0 {
		client.Timeout = defaultHTTPTimeout
	}

	backends := []Backend{NewHeuristic()}
	add := func(b Backend, err error, name string) {
		if err != nil {
			logger.Info("ai backend disabled",
				slog.String("backend", name),
				slog.String("reason", err.Error()))
			return
		}
		backends = append(backends, b)
	}

	if cfg.Claude.APIKey != "" {
		b, err := NewClaude(ClaudeOptions{APIKey: cfg.Claude.APIKey, Model: cfg.Claude.Model, BaseURL: cfg.Claude.BaseURL, HTTPClient: client})
		add(b, err, Claude)
	}
	if cfg.Deepseek.APIKey != "" {
		b, err := NewOpenAICompatible(OpenAIOptions{Name: Deepseek, APIKey: cfg.Deepseek.APIKey, Model: cfg.Deepseek.Model, BaseURL: cfg.Deepseek.BaseURL, HTTPClient: client})
		add(b, err, Deepseek)
	}
	if cfg.Kimi.APIKey != "" {
		b, err := NewOpenAICompatible(OpenAIOptions{Name: Kimi, APIKey: cfg.Kimi.APIKey, Model: cfg.Kimi.Model, BaseURL: cfg.Kimi.BaseURL, HTTPClient: client})
		add(b, err, Kimi)
	}
	if cfg.Cloudflare.APIToken != "" {
		b, err := NewCloudflare(CloudflareOptions{
			AccountID:  cfg.Cloudflare.AccountID,
			APIToken:   cfg.Cloudflare.APIToken,
			Model:      cfg.Cloudflare.Model,
			BaseURL:    cfg.Cloudflare.BaseURL,
			HTTPClient: client,
		})
		add(b, err, Cloudflare)
	}

	r := NewRegistry(defaultBackend, backends...)
	if _, ok := r.backends[strings.ToLower(defaultBackend)]; !ok {
		logger.Warn("default backend not configured, using heuristic",
			slog.String("backend", defaultBackend))
		r.fallback = Heuristic
	}

	logger.Info("ai backends ready", slog.Any("backends", r.Names()))
	return r
}

// Resolve returns the backend for name, or the fallback for an empty name
func (r *Registry) Resolve(name string) (Backend, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = r.fallback
	}
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("backend %q is not configured", name)
	}
	return b, nil
}

// Names returns the configured backend names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
