// Package engine provides the public Go SDK for the entity filter API.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the public SDK client for the entity filter API.
type Client struct {
	baseURL    string
	tenantID   string
	httpClient *http.Client
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	BaseURL string
	// TenantID is sent as X-Tenant-ID on every request. Empty uses the
	// server's default tenant.
	TenantID   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient creates a new entity filter client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8086"
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.HTTPClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tenantID:   cfg.TenantID,
		httpClient: cfg.HTTPClient,
	}, nil
}

// Extraction is the entity constraints found in a text.
type Extraction struct {
	BaseEntity   string   `json:"baseEntity,omitempty"`
	Attributes   []string `json:"attributes,omitempty"`
	AllEntities  []string `json:"allEntities,omitempty"`
	IsComparison bool     `json:"isComparison"`
}

// Verdict explains a match decision.
type Verdict struct {
	Matched           bool     `json:"matched"`
	Reason            string   `json:"reason"`
	QueryEntity       string   `json:"queryEntity,omitempty"`
	DocumentEntity    string   `json:"documentEntity,omitempty"`
	MissingAttributes []string `json:"missingAttributes,omitempty"`
}

// Decision is the outcome for one document.
type Decision struct {
	Filter   bool       `json:"filter"`
	Reason   string     `json:"reason,omitempty"`
	Verdict  *Verdict   `json:"verdict,omitempty"`
	Document Extraction `json:"document"`
}

// FilterResponse is the outcome of filtering a document batch.
type FilterResponse struct {
	Query         Extraction `json:"query"`
	Decisions     []Decision `json:"decisions"`
	Kept          []int      `json:"kept"`
	KeptDocuments []string   `json:"keptDocuments"`
	LatencyMs     int64      `json:"latencyMs"`
}

// RuleStats describes a tenant's compiled dictionary.
type RuleStats struct {
	Name   string        `json:"name"`
	Source string        `json:"source"`
	Loaded bool          `json:"loaded"`
	Loads  int64         `json:"loads"`
	Rules  *RuleSetStats `json:"rules,omitempty"`
}

// RuleSetStats summarizes the compiled rules.
type RuleSetStats struct {
	Version    string        `json:"version"`
	Entities   int           `json:"entities"`
	Attributes int           `json:"attributes"`
	Skipped    []SkippedRule `json:"skipped,omitempty"`
	Prefilter  bool          `json:"prefilter"`
	CompiledAt time.Time     `json:"compiledAt"`
}

// SkippedRule is a dictionary entry the server could not compile.
type SkippedRule struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Detail     string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("entity filter api: %d %s: %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("entity filter api: %d %s", e.StatusCode, e.Message)
}

// Extract returns the entity constraints of text. Comparison queries are
// detected by the server.
func (c *Client) Extract(ctx context.Context, text string) (*Extraction, error) {
	var resp struct {
		Extraction Extraction `json:"extraction"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/rules/extract", map[string]string{"text": text}, &resp); err != nil {
		return nil, err
	}
	return &resp.Extraction, nil
}

// Filter evaluates documents against query.
func (c *Client) Filter(ctx context.Context, query string, documents []string) (*FilterResponse, error) {
	req := map[string]interface{}{"query": query, "documents": documents}
	var resp FilterResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/filter", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ShouldFilterOut reports whether document should be dropped for query.
func (c *Client) ShouldFilterOut(ctx context.Context, document string, query Extraction) (bool, string, error) {
	req := map[string]interface{}{"document": document, "extraction": query}
	var resp Decision
	if err := c.do(ctx, http.MethodPost, "/api/v1/filter/decision", req, &resp); err != nil {
		return false, "", err
	}
	return resp.Filter, resp.Reason, nil
}

// Reload drops and rebuilds the tenant's compiled dictionary.
func (c *Client) Reload(ctx context.Context) (*RuleStats, error) {
	var resp struct {
		Reloaded []RuleStats `json:"reloaded"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/rules/reload", nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Reloaded) == 0 {
		return nil, fmt.Errorf("reload returned no stats")
	}
	return &resp.Reloaded[0], nil
}

// Stats returns the tenant's dictionary statistics.
func (c *Client) Stats(ctx context.Context) (*RuleStats, error) {
	var resp RuleStats
	if err := c.do(ctx, http.MethodGet, "/api/v1/rules/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the service health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.tenantID != "" {
		req.Header.Set("X-Tenant-ID", c.tenantID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
