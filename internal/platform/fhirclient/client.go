// Package fhirclient talks to the configured FHIR server over its REST API.
// Every call reads the current connection settings, so a settings change
// takes effect on the next request without rebuilding the client.
package fhirclient

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

	"github.com/rs/zerolog"

	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
	"github.com/vincemic/ai-fhir-pit/pkg/pagination"
)

const (
	contentType    = "application/fhir+json"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 32 << 20
)

// Config is the connection used for one request.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ConfigFunc returns the connection to use for a request.
type ConfigFunc func(ctx context.Context) Config

// Static returns a ConfigFunc that always yields cfg.
func Static(cfg Config) ConfigFunc {
	return func(context.Context) Config { return cfg }
}

// Client is a FHIR R4 REST client.
type Client struct {
	config ConfigFunc
	http   *http.Client
	logger zerolog.Logger
	now    func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for transport failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger.With().Str("component", "fhirclient").Logger() }
}

func New(config ConfigFunc, opts ...Option) *Client {
	c := &Client{
		config: config,
		http:   &http.Client{},
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchParams describes a resource search. SearchField and SearchTerm are
// sent as one parameter and only when both are set.
type SearchParams struct {
	ResourceType string
	SearchField  string
	SearchTerm   string
	Page         pagination.Params
	Sort         string
	Extra        map[string]string
}

func (p SearchParams) query() url.Values {
	q := url.Values{}
	if p.SearchField != "" && p.SearchTerm != "" {
		q.Set(p.SearchField, p.SearchTerm)
	}
	p.Page.Apply(q)
	if p.Sort != "" {
		q.Set("_sort", p.Sort)
	}
	for k, v := range p.Extra {
		if k != "" && v != "" {
			q.Set(k, v)
		}
	}
	return q
}

// Search runs a type-level search and returns the searchset Bundle.
func (c *Client) Search(ctx context.Context, params SearchParams) (*fhir.Bundle, error) {
	if params.ResourceType == "" {
		return nil, fmt.Errorf("search: resource type is required")
	}
	path := "/" + params.ResourceType
	if q := params.query(); len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.bundle(ctx, http.MethodGet, path, nil)
}

// FollowURL fetches an absolute paging link such as a Bundle "next" link.
func (c *Client) FollowURL(ctx context.Context, link string) (*fhir.Bundle, error) {
	if link == "" {
		return nil, ErrReferenceRequired
	}
	return c.bundle(ctx, http.MethodGet, link, nil)
}

func (c *Client) Read(ctx context.Context, resourceType, id string) (fhir.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	return c.document(ctx, http.MethodGet, "/"+resourceType+"/"+url.PathEscape(id), nil)
}

// Create POSTs a new resource and returns what the server stored.
func (c *Client) Create(ctx context.Context, doc fhir.Document) (fhir.Document, error) {
	return c.document(ctx, http.MethodPost, "/"+doc.ResourceType(), doc)
}

// Update PUTs doc under its own id.
func (c *Client) Update(ctx context.Context, doc fhir.Document) (fhir.Document, error) {
	if doc.ID() == "" {
		return nil, ErrIDRequired
	}
	return c.document(ctx, http.MethodPut, "/"+doc.ResourceType()+"/"+url.PathEscape(doc.ID()), doc)
}

// FollowReference resolves a reference. Absolute http(s) references are
// fetched as is; anything else is relative to the server base.
func (c *Client) FollowReference(ctx context.Context, reference string) (fhir.Document, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrReferenceRequired
	}
	if isAbsolute(reference) {
		return c.document(ctx, http.MethodGet, reference, nil)
	}
	return c.document(ctx, http.MethodGet, "/"+strings.TrimPrefix(reference, "/"), nil)
}

// Capabilities fetches the server's CapabilityStatement.
func (c *Client) Capabilities(ctx context.Context) (fhir.Document, error) {
	return c.document(ctx, http.MethodGet, "/metadata", nil)
}

// Batch POSTs a batch or transaction Bundle to the server base and returns
// the response Bundle.
func (c *Client) Batch(ctx context.Context, bundle *fhir.Bundle) (*fhir.Bundle, error) {
	return c.bundle(ctx, http.MethodPost, "", bundle)
}

// TestResult is the outcome of a connection test.
type TestResult struct {
	Success      bool     `json:"success"`
	ResponseTime int64    `json:"responseTime"`
	Version      string   `json:"version,omitempty"`
	Software     string   `json:"software,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Error        string   `json:"error,omitempty"`
	Details      string   `json:"details,omitempty"`
}

// TestConnection reads /metadata from serverURL, or from the configured
// server when serverURL is empty. Failures are reported in the result,
// never as an error.
func (c *Client) TestConnection(ctx context.Context, serverURL string) *TestResult {
	cfg := c.config(ctx)
	if serverURL != "" {
		cfg.BaseURL = serverURL
	}

	start := c.now()
	body, err := c.do(ctx, cfg, http.MethodGet, "/metadata", nil)
	result := &TestResult{ResponseTime: c.now().Sub(start).Milliseconds()}
	if err != nil {
		result.Error = "Connection failed"
		var se *ServerError
		if errors.As(err, &se) {
			if se.StatusCode != 0 {
				result.Error = fmt.Sprintf("HTTP %d: %s", se.StatusCode, http.StatusText(se.StatusCode))
				result.Details = se.Message
			} else if se.Err != nil {
				result.Details = se.Err.Error()
			}
		} else {
			result.Details = err.Error()
		}
		return result
	}

	meta, err := fhir.ParseDocument(body)
	if err != nil {
		result.Error = "Invalid metadata response"
		result.Details = err.Error()
		return result
	}

	result.Success = true
	result.Version = meta.String("fhirVersion")
	if result.Version == "" {
		result.Version = meta.String("version")
	}
	result.Software = "Unknown"
	if name := meta.Object("software").String("name"); name != "" {
		result.Software = name
	}
	if rest := meta.Objects("rest"); len(rest) > 0 {
		for _, r := range rest[0].Objects("resource") {
			if t := r.String("type"); t != "" {
				result.Capabilities = append(result.Capabilities, t)
			}
		}
	}
	return result
}

func (c *Client) document(ctx context.Context, method, path string, body interface{}) (fhir.Document, error) {
	data, err := c.do(ctx, c.config(ctx), method, path, body)
	if err != nil {
		return nil, err
	}
	doc, err := fhir.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return doc, nil
}

func (c *Client) bundle(ctx context.Context, method, path string, body interface{}) (*fhir.Bundle, error) {
	data, err := c.do(ctx, c.config(ctx), method, path, body)
	if err != nil {
		return nil, err
	}
	var b fhir.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if b.ResourceType != "Bundle" {
		return nil, fmt.Errorf("decode bundle: unexpected resourceType %q", b.ResourceType)
	}
	return &b, nil
}

// do performs one exchange. path is either absolute or relative to the
// configured base URL.
func (c *Client) do(ctx context.Context, cfg Config, method, path string, body interface{}) ([]byte, error) {
	target := path
	if !isAbsolute(path) {
		if cfg.BaseURL == "" {
			return nil, ErrNoServer
		}
		target = strings.TrimRight(cfg.BaseURL, "/") + path
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", contentType)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("url", target).Msg("FHIR request failed")
		return nil, connectionError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, connectionError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := newServerError(resp.StatusCode, data)
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("method", method).
			Str("url", target).
			Str("message", se.Message).
			Msg("FHIR server returned an error")
		return nil, se
	}
	return data, nil
}

func isAbsolute(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
