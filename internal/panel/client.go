package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the panel application API using a bearer API key.
// A nil or unconfigured client returns ErrUnavailable from every call so
// callers can degrade to feature-unavailable responses.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a panel client. Empty baseURL or apiKey yields an
// unconfigured client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// Configured reports whether the client can reach a panel.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

// CreateUser creates a remote panel user.
func (c *Client) CreateUser(ctx context.Context, input CreateUserInput) (*User, error) {
	raw, err := c.do(ctx, http.MethodPost, "/api/application/users", input)
	if err != nil {
		return nil, err
	}
	var user User
	if err := decodeOne(raw, &user); err != nil {
		return nil, fmt.Errorf("panel: decode user: %w", err)
	}
	return &user, nil
}

// FindUserByEmail looks up an existing panel user by email address.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	query := url.Values{"filter[email]": {email}}.Encode()
	raw, err := c.do(ctx, http.MethodGet, "/api/application/users?"+query, nil)
	if err != nil {
		return nil, err
	}
	items, err := decodeList(raw)
	if err != nil {
		return nil, fmt.Errorf("panel: decode users: %w", err)
	}
	for _, item := range items {
		var user User
		if err := json.Unmarshal(item, &user); err != nil {
			return nil, fmt.Errorf("panel: decode user: %w", err)
		}
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

// ListNodes returns all nodes known to the panel.
func (c *Client) ListNodes(ctx context.Context) ([]Node, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/application/nodes", nil)
	if err != nil {
		return nil, err
	}
	items, err := decodeList(raw)
	if err != nil {
		return nil, fmt.Errorf("panel: decode nodes: %w", err)
	}
	nodes := make([]Node, 0, len(items))
	for _, item := range items {
		var node Node
		if err := json.Unmarshal(item, &node); err != nil {
			return nil, fmt.Errorf("panel: decode node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// ListAllocations returns the network allocations of a node.
func (c *Client) ListAllocations(ctx context.Context, nodeID int64) ([]Allocation, error) {
	raw, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/application/nodes/%d/allocations", nodeID), nil)
	if err != nil {
		return nil, err
	}
	items, err := decodeList(raw)
	if err != nil {
		return nil, fmt.Errorf("panel: decode allocations: %w", err)
	}
	allocations := make([]Allocation, 0, len(items))
	for _, item := range items {
		var alloc Allocation
		if err := json.Unmarshal(item, &alloc); err != nil {
			return nil, fmt.Errorf("panel: decode allocation: %w", err)
		}
		allocations = append(allocations, alloc)
	}
	return allocations, nil
}

// CreateServer issues a synchronous create-server call.
func (c *Client) CreateServer(ctx context.Context, input CreateServerInput) (*Server, error) {
	payload := map[string]any{
		"name":         input.Name,
		"user":         input.UserID,
		"egg":          input.EggID,
		"docker_image": input.DockerImage,
		"startup":      input.Startup,
		"environment":  input.Environment,
		"limits":       input.Limits,
		"feature_limits": map[string]int{
			"databases": 1,
			"backups":   1,
		},
		"allocation": map[string]int64{
			"default": input.AllocationID,
		},
	}
	raw, err := c.do(ctx, http.MethodPost, "/api/application/servers", payload)
	if err != nil {
		return nil, err
	}
	var server Server
	if err := decodeOne(raw, &server); err != nil {
		return nil, fmt.Errorf("panel: decode server: %w", err)
	}
	return &server, nil
}

// GetServer fetches a server by remote id.
func (c *Client) GetServer(ctx context.Context, id int64) (*Server, error) {
	raw, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/application/servers/%d", id), nil)
	if err != nil {
		return nil, err
	}
	var server Server
	if err := decodeOne(raw, &server); err != nil {
		return nil, fmt.Errorf("panel: decode server: %w", err)
	}
	return &server, nil
}

// DeleteServer removes a server from the panel. Used as the compensating
// action when provisioning fails after the remote create succeeded.
func (c *Client) DeleteServer(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/application/servers/%d", id), nil)
	return err
}

// SuspendServer suspends a running server.
func (c *Client) SuspendServer(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/application/servers/%d/suspend", id), nil)
	return err
}

// UnsuspendServer lifts a suspension.
func (c *Client) UnsuspendServer(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/application/servers/%d/unsuspend", id), nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrUnavailable
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("panel: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, c.decodeError(resp, raw)
	}
	return raw, nil
}

// decodeError sniffs the response content type before interpreting the body:
// the panel answers JSON error envelopes, but proxies in front of it answer
// HTML pages.
func (c *Client) decodeError(resp *http.Response, raw []byte) error {
	apiErr := &APIError{Status: resp.StatusCode}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var wire wireError
		if err := json.Unmarshal(raw, &wire); err == nil && len(wire.Errors) > 0 {
			apiErr.Code = wire.Errors[0].Code
			apiErr.Detail = wire.Errors[0].Detail
			return apiErr
		}
	case "text/html":
		if title := htmlTitle(raw); title != "" {
			apiErr.Detail = title
			return apiErr
		}
	}
	apiErr.Detail = http.StatusText(resp.StatusCode)
	return apiErr
}
