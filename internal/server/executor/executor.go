// Package executor is the client of the external load runner that actually
// drives traffic for a job.
package executor

import (
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

	"github.com/dmitrijs2005/loadgate/internal/common"
)

// maxBodySize bounds how much of a runner response is kept.
const maxBodySize = 1 << 20

// StartRequest is the job description forwarded to the runner. Params is
// passed through untouched.
type StartRequest struct {
	Target   string          `json:"target"`
	Port     *int            `json:"port,omitempty"`
	Duration int             `json:"duration"`
	JobType  string          `json:"type"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// StartResult is the runner's reply. ExternalID is nil when the body did
// not carry an id.
type StartResult struct {
	Body       string
	ExternalID *string
}

// Executor starts and stops jobs on the runner.
type Executor interface {
	Start(ctx context.Context, req StartRequest) (*StartResult, error)
	Stop(ctx context.Context, externalID string) (string, error)
}

// HTTPError is a non-2xx runner reply.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("executor responded %d: %s", e.Status, e.Body)
}

func (e *HTTPError) Unwrap() error { return common.ErrDelegatedFailure }

// Client talks to the runner over HTTP.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

// NewClient returns a Client for baseURL. Each call is bounded by timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid executor URL %q", common.ErrConfiguration, baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return &Client{
		baseURL:    u,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) endpoint(elem ...string) string {
	return c.baseURL.JoinPath(elem...).String()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDelegatedFailure, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDelegatedFailure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", common.ErrDelegatedFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPError{Status: resp.StatusCode, Body: string(data)}
	}
	return string(data), nil
}

// Start asks the runner to begin a job.
func (c *Client) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", common.ErrDelegatedFailure, err)
	}

	body, err := c.do(ctx, http.MethodPost, c.endpoint("jobs"), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	return &StartResult{Body: body, ExternalID: parseExternalID(body)}, nil
}

// Stop asks the runner to halt the job it knows as externalID.
func (c *Client) Stop(ctx context.Context, externalID string) (string, error) {
	if externalID == "" {
		return "", errors.New("empty external id")
	}
	return c.do(ctx, http.MethodDelete, c.endpoint("jobs", externalID), nil)
}

// parseExternalID extracts "id" (string or number) from a JSON body.
func parseExternalID(body string) *string {
	var reply struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal([]byte(body), &reply); err != nil || len(reply.ID) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(reply.ID, &s); err == nil {
		if s == "" {
			return nil
		}
		return &s
	}
	var n json.Number
	if err := json.Unmarshal(reply.ID, &n); err == nil {
		s = n.String()
		return &s
	}
	return nil
}
