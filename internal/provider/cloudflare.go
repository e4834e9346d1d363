package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// CloudflareOptions configures the Workers AI backend
type CloudflareOptions struct {
	AccountID  string
	APIToken   string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

type cloudflareRequest struct {
	Messages []openAIMessage `json:"messages"`
}

type cloudflareResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Response string `json:"response"`
	} `json:"result"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type cloudflareClient struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewCloudflare creates a backend on the Workers AI run endpoint
func NewCloudflare(opts CloudflareOptions) (Backend, error) {
	if strings.TrimSpace(opts.AccountID) == "" || strings.TrimSpace(opts.APIToken) == "" {
		return nil, errors.New("cloudflare account id and api token are required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.cloudflare.com/client/v4"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &chatBackend{
		name: Cloudflare,
		chat: &cloudflareClient{
			endpoint: fmt.Sprintf("%s/accounts/%s/ai/run/%s", baseURL, opts.AccountID, opts.Model),
			token:    strings.TrimSpace(opts.APIToken),
			client:   client,
		},
	}, nil
}

func (c *cloudflareClient) complete(ctx context.Context, system, user string) (string, error) {
	payload := cloudflareRequest{Messages: []openAIMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	body, err := doJSON(c.client, httpReq)
	if err != nil {
		return "", err
	}

	var out cloudflareResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if !out.Success {
		if len(out.Errors) > 0 {
			return "", fmt.Errorf("workers ai: %s", out.Errors[0].Message)
		}
		return "", errors.New("workers ai: request failed")
	}
	if strings.TrimSpace(out.Result.Response) == "" {
		return "", errEmptyResponse
	}
	return out.Result.Response, nil
}
