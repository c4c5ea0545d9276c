// Package payments integrates the PayPal-style checkout used for wallet
// deposits. Orders are created server-side, approved by the customer on the
// provider's site and captured on return.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrUnavailable is returned when no provider credentials are configured.
var ErrUnavailable = errors.New("payments: provider not configured")

// Order is a created checkout order awaiting customer approval.
type Order struct {
	ID          string
	ApprovalURL string
}

// CaptureResult is the outcome of capturing an approved order.
type CaptureResult struct {
	OrderID  string
	Status   string
	Amount   float64
	Currency string
}

// Completed reports whether the provider confirmed the payment.
func (r *CaptureResult) Completed() bool {
	return r.Status == "COMPLETED"
}

// Client talks to the provider's REST API with client-credential tokens.
type Client struct {
	baseURL    string
	clientID   string
	secret     string
	httpClient *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewClient constructs a Client. Empty credentials yield an unconfigured
// client whose calls fail with ErrUnavailable.
func NewClient(baseURL, clientID, secret string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientID:   clientID,
		secret:     secret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether provider credentials are present.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.clientID != "" && c.secret != ""
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("payments: token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("payments: token request returned status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	c.token = payload.AccessToken
	c.tokenExp = time.Now().Add(time.Duration(payload.ExpiresIn-60) * time.Second)
	return c.token, nil
}

type orderResource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	PurchaseUnits []struct {
		Amount struct {
			Value        string `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
		Payments struct {
			Captures []struct {
				Status string `json:"status"`
				Amount struct {
					Value        string `json:"value"`
					CurrencyCode string `json:"currency_code"`
				} `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreateOrder opens a checkout order and returns the customer approval URL.
func (c *Client) CreateOrder(ctx context.Context, amount float64, currency, returnURL, cancelURL string) (*Order, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": map[string]string{
				"currency_code": currency,
				"value":         strconv.FormatFloat(amount, 'f', 2, 64),
			},
			"description": "wallet deposit",
		}},
		"application_context": map[string]string{
			"return_url": returnURL,
			"cancel_url": cancelURL,
		},
	}
	raw, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", payload)
	if err != nil {
		return nil, err
	}
	var resource orderResource
	if err := json.Unmarshal(raw, &resource); err != nil {
		return nil, err
	}
	order := &Order{ID: resource.ID}
	for _, link := range resource.Links {
		if link.Rel == "approve" {
			order.ApprovalURL = link.Href
			break
		}
	}
	if order.ID == "" || order.ApprovalURL == "" {
		return nil, errors.New("payments: order response missing id or approval link")
	}
	return order, nil
}

// CaptureOrder captures an approved order.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	raw, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", struct{}{})
	if err != nil {
		return nil, err
	}
	var resource orderResource
	if err := json.Unmarshal(raw, &resource); err != nil {
		return nil, err
	}
	result := &CaptureResult{OrderID: resource.ID, Status: resource.Status}
	for _, unit := range resource.PurchaseUnits {
		for _, capture := range unit.Payments.Captures {
			value, err := strconv.ParseFloat(capture.Amount.Value, 64)
			if err != nil {
				continue
			}
			result.Amount = value
			result.Currency = capture.Amount.CurrencyCode
		}
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrUnavailable
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payments: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("payments: %s %s returned status %d", method, path, resp.StatusCode)
	}
	return raw, nil
}
