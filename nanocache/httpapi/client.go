package httpapi

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

	"github.com/arthur-debert/nanocache/types"
)

// Client implements types.Backend against a server built with NewRouter.
// Failed responses come back as *types.APIError, so errors.Is(err,
// types.ErrNotFound) works across the wire.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ types.Backend = (*Client)(nil)

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		cl.http = &http.Client{Timeout: d}
	}
}

// NewClient creates a client for the API rooted at baseURL
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q: %w", baseURL, types.ErrInvalid)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) entitiesURL(collection string, parts ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("/collections/")
	b.WriteString(url.PathEscape(collection))
	b.WriteString("/entities")
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

// do sends body (if any) as JSON and decodes a successful response into out (if any)
func (c *Client) do(ctx context.Context, method, target string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError turns an error response into *types.APIError
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.Status = resp.StatusCode
		return envelope.Error
	}

	message := strings.TrimSpace(string(raw))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	code := types.CodeInternal
	if resp.StatusCode == http.StatusNotFound {
		code = types.CodeNotFound
	}
	return &types.APIError{Status: resp.StatusCode, Code: code, Message: message}
}

// FetchAll implements types.Backend
func (c *Client) FetchAll(ctx context.Context, collection string) ([]types.Entity, error) {
	var entities []types.Entity
	if err := c.do(ctx, http.MethodGet, c.entitiesURL(collection), nil, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// FetchChildren implements types.Backend
func (c *Client) FetchChildren(ctx context.Context, collection, parentID string) ([]types.Entity, error) {
	var entities []types.Entity
	if err := c.do(ctx, http.MethodGet, c.entitiesURL(collection, parentID, "children"), nil, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// Create implements types.Backend
func (c *Client) Create(ctx context.Context, collection string, req types.CreateRequest) (types.Entity, error) {
	var created types.Entity
	if err := c.do(ctx, http.MethodPost, c.entitiesURL(collection), req, &created); err != nil {
		return types.Entity{}, err
	}
	return created, nil
}

// Update implements types.Backend
func (c *Client) Update(ctx context.Context, collection, id string, req types.UpdateRequest) (types.Entity, error) {
	var updated types.Entity
	if err := c.do(ctx, http.MethodPatch, c.entitiesURL(collection, id), req, &updated); err != nil {
		return types.Entity{}, err
	}
	return updated, nil
}

// Delete implements types.Backend
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, http.MethodDelete, c.entitiesURL(collection, id), nil, nil)
}
