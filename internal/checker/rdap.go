package checker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirychukyurii/domain-search/internal/concurrent"
	"github.com/kirychukyurii/domain-search/internal/model"
)

// Checker looks up domain availability
type Checker interface {
	// Check returns the availability of one name. When every attempt failed it
	// returns model.AvailabilityError together with a *model.ProviderError.
	Check(ctx context.Context, name string) (model.Availability, *model.Detail, error)

	// CheckAll checks names concurrently; it never fails as a whole
	CheckAll(ctx context.Context, names []string) []Result
}

// Result is the availability of one name
type Result struct {
	Name         string
	Availability model.Availability
	Detail       *model.Detail
}

// Options configures the RDAP checker
type Options struct {
	BaseURL     string
	MaxAttempts int
	BaseBackoff time.Duration
	HTTPClient  *http.Client
}

type rdapChecker struct {
	baseURL     string
	maxAttempts int
	baseBackoff time.Duration
	client      *http.Client
	limiter     *Limiter
	logger      *slog.Logger
}

// NewRDAP creates a checker querying <base>/domain/<name>. The limiter is the
// process-wide budget and is shared with every other checker user.
func NewRDAP(opts Options, limiter *Limiter, logger *slog.Logger) Checker {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &rdapChecker{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		maxAttempts: attempts,
		baseBackoff: opts.BaseBackoff,
		client:      client,
		limiter:     limiter,
		logger:      logger,
	}
}

// errTransient marks lookup failures worth retrying
var errTransient = errors.New("transient lookup failure")

type rdapResponse struct {
	LDHName  string `json:"ldhName"`
	Entities []struct {
		Roles      []string          `json:"roles"`
		Handle     string            `json:"handle"`
		VCardArray []json.RawMessage `json:"vcardArray"`
	} `json:"entities"`
	Events []struct {
		Action string `json:"eventAction"`
		Date   string `json:"eventDate"`
	} `json:"events"`
}

func (c *rdapChecker) Check(ctx context.Context, name string) (model.Availability, *model.Detail, error) {
	name = model.NormalizeDomain(name)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := c.baseBackoff << (attempt - 2)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				lastErr = ctx.Err()
				return c.failed(name, lastErr)
			}
		}

		availability, detail, err := c.lookup(ctx, name)
		if err == nil {
			return availability, detail, nil
		}
		lastErr = err

		if !errors.Is(err, errTransient) || ctx.Err() != nil {
			break
		}
		c.logger.Debug("rdap lookup failed, retrying",
			slog.String("name", name),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}

	return c.failed(name, lastErr)
}

func (c *rdapChecker) failed(name string, err error) (model.Availability, *model.Detail, error) {
	return model.AvailabilityError,
		&model.Detail{Error: err.Error()},
		&model.ProviderError{Provider: "rdap", Op: "check " + name, Err: err}
}

func (c *rdapChecker) lookup(ctx context.Context, name string) (model.Availability, *model.Detail, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return model.AvailabilityError, nil, err
		}
		defer c.limiter.Release()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/domain/"+name, nil)
	if err != nil {
		return model.AvailabilityError, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/rdap+json, application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return model.AvailabilityError, nil, fmt.Errorf("%w: %v", errTransient, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return model.AvailabilityAvailable, nil, nil
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return model.AvailabilityError, nil, fmt.Errorf("%w: read body: %v", errTransient, err)
		}
		return model.AvailabilityTaken, parseRegistration(body), nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return model.AvailabilityError, nil, fmt.Errorf("%w: status %d", errTransient, resp.StatusCode)
	default:
		return model.AvailabilityError, nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

// parseRegistration extracts registrar and dates; malformed bodies yield an empty detail
func parseRegistration(body []byte) *model.Detail {
	detail := &model.Detail{}

	var out rdapResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return detail
	}

	for _, ev := range out.Events {
		switch ev.Action {
		case "expiration":
			detail.Expiration = ev.Date
		case "registration":
			detail.Created = ev.Date
		}
	}

	for _, entity := range out.Entities {
		if !hasRole(entity.Roles, "registrar") {
			continue
		}
		detail.Registrar = vcardName(entity.VCardArray)
		if detail.Registrar == "" {
			detail.Registrar = entity.Handle
		}
		break
	}

	return detail
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// vcardName reads the "fn" property from a jCard: ["vcard", [[name, params, type, value], ...]]
func vcardName(raw []json.RawMessage) string {
	if len(raw) < 2 {
		return ""
	}
	var props [][]any
	if err := json.Unmarshal(raw[1], &props); err != nil {
		return ""
	}
	for _, prop := range props {
		if len(prop) < 4 {
			continue
		}
		if key, _ := prop[0].(string); key == "fn" {
			if value, ok := prop[3].(string); ok {
				return value
			}
		}
	}
	return ""
}

func (c *rdapChecker) CheckAll(ctx context.Context, names []string) []Result {
	results := concurrent.ParallelMapUntil(ctx, names, func(ctx context.Context, name string) (Result, error) {
		availability, detail, err := c.Check(ctx, name)
		return Result{Name: name, Availability: availability, Detail: detail}, err
	}, 0)

	out := make([]Result, len(names))
	for i, r := range results {
		out[i] = r.Value
		if r.Error != nil {
			out[i] = Result{Name: names[i], Availability: model.AvailabilityError, Detail: &model.Detail{Error: r.Error.Error()}}
		}
	}
	return out
}
