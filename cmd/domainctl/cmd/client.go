package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirychukyurii/domain-search/pkg/api"
)

// Client handles API calls to the domain search service
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// StreamClient has no timeout; event streams stay open for the job lifetime
	StreamClient *http.Client
}

// NewClient creates a client for the given base URL
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		StreamClient: &http.Client{},
	}
}

// APIError represents an error response from the API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// CreateJob sends POST /api/jobs
func (c *Client) CreateJob(ctx context.Context, req api.CreateJobRequest) (*api.CreateJobResponse, error) {
	var out api.CreateJobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStatus sends GET /api/jobs/{id}
func (c *Client) GetStatus(ctx context.Context, jobID string) (*api.StatusResponse, error) {
	var out api.StatusResponse
	if err := c.do(ctx, http.MethodGet, jobPath(jobID, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetResults sends GET /api/jobs/{id}/results
func (c *Client) GetResults(ctx context.Context, jobID string) (*api.ResultsResponse, error) {
	var out api.ResultsResponse
	if err := c.do(ctx, http.MethodGet, jobPath(jobID, "/results"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetFollowup sends GET /api/jobs/{id}/followup
func (c *Client) GetFollowup(ctx context.Context, jobID string) (*api.FollowupResponse, error) {
	var out api.FollowupResponse
	if err := c.do(ctx, http.MethodGet, jobPath(jobID, "/followup"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Resume sends POST /api/jobs/{id}/resume
func (c *Client) Resume(ctx context.Context, jobID string, answers map[string]string) (*api.StatusResponse, error) {
	var out api.StatusResponse
	if err := c.do(ctx, http.MethodPost, jobPath(jobID, "/resume"), api.ResumeRequest{Answers: answers}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel sends POST /api/jobs/{id}/cancel
func (c *Client) Cancel(ctx context.Context, jobID string) (*api.StatusResponse, error) {
	var out api.StatusResponse
	if err := c.do(ctx, http.MethodPost, jobPath(jobID, "/cancel"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamEvent is one server-sent event
type StreamEvent struct {
	ID   string
	Name string
	Data []byte
}

// errStopStream ends Watch without an error
var errStopStream = errors.New("stop stream")

// Watch reads GET /api/jobs/{id}/events and calls fn for every event until the
// server closes the stream, ctx is done or fn returns an error
func (c *Client) Watch(ctx context.Context, jobID string, fn func(StreamEvent) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+jobPath(jobID, "/events"), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.StreamClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	err = readSSE(resp.Body, fn)
	if errors.Is(err, errStopStream) || ctx.Err() != nil {
		return nil
	}
	return err
}

// readSSE splits a text/event-stream body into events. Comment lines are
// keep-alives and are skipped.
func readSSE(r io.Reader, fn func(StreamEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var ev StreamEvent
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 || ev.Name != "" {
				ev.Data = bytes.Clone(data.Bytes())
				if err := fn(ev); err != nil {
					return err
				}
			}
			ev = StreamEvent{}
			data.Reset()
		case strings.HasPrefix(line, ":"):
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "id":
				ev.ID = value
			case "event":
				ev.Name = value
			case "data":
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(value)
			}
		}
	}
	return scanner.Err()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)

	var apiErr api.ErrorResponse
	if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
}

func jobPath(jobID, suffix string) string {
	return "/api/jobs/" + url.PathEscape(jobID) + suffix
}
