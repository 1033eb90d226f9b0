// Package client is a Go client for the recommender HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a recommender server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Health fetches the health report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// PutEntity creates the entity if needed and links it to the given features.
func (c *Client) PutEntity(ctx context.Context, ns Namespace, id int64, featureIDs []int64) error {
	if featureIDs == nil {
		featureIDs = []int64{}
	}
	body := map[string][]int64{"feature_ids": featureIDs}
	return c.do(ctx, http.MethodPut, entityPath(ns, id), body, nil)
}

// GetEntity fetches an entity profile.
func (c *Client) GetEntity(ctx context.Context, ns Namespace, id int64) (*Profile, error) {
	var resp struct {
		Data Profile `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, entityPath(ns, id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// DeleteEntity removes an entity with its feature links and interactions.
func (c *Client) DeleteEntity(ctx context.Context, ns Namespace, id int64) error {
	return c.do(ctx, http.MethodDelete, entityPath(ns, id), nil, nil)
}

// Interact records that the user interacted with the item.
func (c *Client) Interact(ctx context.Context, userID, itemID int64) error {
	path := fmt.Sprintf("/users/%d/interact/%d", userID, itemID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// History returns the user's most recent item ids, newest first.
// A limit of zero uses the server default.
func (c *Client) History(ctx context.Context, userID int64, limit int) ([]int64, error) {
	var resp itemList
	if err := c.do(ctx, http.MethodGet, withLimit(fmt.Sprintf("/users/%d/history", userID), limit), nil, &resp); err != nil {
		return nil, err
	}
	return resp.ids(), nil
}

// Recommendations returns up to limit item ids for the user.
// A limit of zero uses the server default.
func (c *Client) Recommendations(ctx context.Context, userID int64, limit int) (*Recommendations, error) {
	var resp itemList
	if err := c.do(ctx, http.MethodGet, withLimit(fmt.Sprintf("/users/%d/recommendations", userID), limit), nil, &resp); err != nil {
		return nil, err
	}
	return &Recommendations{Items: resp.ids(), Source: resp.Source}, nil
}

func entityPath(ns Namespace, id int64) string {
	return fmt.Sprintf("/%s/%d", ns, id)
}

func withLimit(path string, limit int) string {
	if limit <= 0 {
		return path
	}
	return path + "?limit=" + strconv.Itoa(limit)
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.StatusCode == 0 {
		apiErr.StatusCode = resp.StatusCode
		apiErr.Detail = strings.TrimSpace(string(data))
	}
	return apiErr
}
