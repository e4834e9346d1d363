package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kirychukyurii/domain-search/internal/model"
)

const defaultHTTPTimeout = 60 * time.Second

// completer sends one system+user exchange to a chat model and returns its text
type completer interface {
	complete(ctx context.Context, system, user string) (string, error)
}

// chatBackend implements Backend on top of any chat completer
type chatBackend struct {
	name string
	chat completer
}

func (c *chatBackend) Name() string {
	return c.name
}

func (c *chatBackend) Generate(ctx context.Context, req GenerateRequest) ([]string, error) {
	text, err := c.chat.complete(ctx, generateSystemPrompt, buildGeneratePrompt(req))
	if err != nil {
		return nil, &model.ProviderError{Provider: c.name, Op: "generate", Err: err}
	}

	names, err := parseGenerated(text, req)
	if err != nil {
		return nil, &model.ProviderError{Provider: c.name, Op: "generate", Err: fmt.Errorf("parse payload: %w", err)}
	}
	return names, nil
}

func (c *chatBackend) Evaluate(ctx context.Context, req EvaluateRequest) (*model.Score, error) {
	text, err := c.chat.complete(ctx, evaluateSystemPrompt, buildEvaluatePrompt(req))
	if err != nil {
		return nil, &model.ProviderError{Provider: c.name, Op: "evaluate", Err: err}
	}

	score, err := parseScore(text)
	if err != nil {
		return nil, &model.ProviderError{Provider: c.name, Op: "evaluate", Err: fmt.Errorf("parse payload: %w", err)}
	}
	return score, nil
}

// doJSON executes a request and returns the body when the status is 2xx
func doJSON(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

var errEmptyResponse = errors.New("empty response")

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
