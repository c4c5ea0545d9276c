package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockhaven/blockhaven/internal/ledger"
	"github.com/blockhaven/blockhaven/internal/shared"
)

type memoryOrderStore struct {
	orders map[string]*DepositOrder
}

func newMemoryOrderStore() *memoryOrderStore {
	return &memoryOrderStore{orders: make(map[string]*DepositOrder)}
}

func (m *memoryOrderStore) Create(ctx context.Context, order *DepositOrder) error {
	clone := *order
	m.orders[order.OrderID] = &clone
	return nil
}

func (m *memoryOrderStore) Get(ctx context.Context, orderID string) (*DepositOrder, error) {
	order, ok := m.orders[orderID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *order
	return &clone, nil
}

func (m *memoryOrderStore) SetStatus(ctx context.Context, orderID, status string) error {
	order, ok := m.orders[orderID]
	if !ok || order.Status != orderStatusCreated {
		return shared.ErrNotFound
	}
	order.Status = status
	return nil
}

type fakeLedger struct {
	pending map[int64]float64
	settled map[int64]bool
	balance float64
	nextID  int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{pending: make(map[int64]float64), settled: make(map[int64]bool)}
}

func (f *fakeLedger) BeginDeposit(ctx context.Context, accountID int64, amount float64, method, reason string) (*ledger.Transaction, error) {
	f.nextID++
	f.pending[f.nextID] = amount
	return &ledger.Transaction{ID: f.nextID, AccountID: accountID, Amount: amount, Status: ledger.StatusPending}, nil
}

func (f *fakeLedger) SettleDeposit(ctx context.Context, transactionID int64, succeeded bool) error {
	amount, ok := f.pending[transactionID]
	if !ok {
		return shared.ErrNotFound
	}
	delete(f.pending, transactionID)
	f.settled[transactionID] = succeeded
	if succeeded {
		f.balance += amount
	}
	return nil
}

// newProviderStub serves the token, create and capture endpoints the client
// exercises, with the capture status controlled by the caller.
func newProviderStub(t *testing.T, captureStatus string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "client-id", user)
		require.Equal(t, "client-secret", pass)
		body, _ := io.ReadAll(r.Body)
		require.Contains(t, string(body), "client_credentials")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
	})
	mux.HandleFunc("POST /v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		var payload struct {
			PurchaseUnits []struct {
				Amount struct {
					Value        string `json:"value"`
					CurrencyCode string `json:"currency_code"`
				} `json:"amount"`
			} `json:"purchase_units"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.PurchaseUnits, 1)
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprint(w, `{"id":"ORD-1","status":"CREATED","links":[
			{"href":"https://provider.example/approve/ORD-1","rel":"approve"},
			{"href":"https://provider.example/self","rel":"self"}]}`)
	})
	mux.HandleFunc("POST /v2/checkout/orders/", func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/capture"))
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"id":"ORD-1","status":%q,"purchase_units":[
			{"payments":{"captures":[{"status":%q,"amount":{"value":"25.00","currency_code":"USD"}}]}}]}`,
			captureStatus, captureStatus)
	})
	return httptest.NewServer(mux)
}

func newTestStack(t *testing.T, captureStatus string) (*Service, *fakeLedger, *memoryOrderStore, func()) {
	t.Helper()
	stub := newProviderStub(t, captureStatus)
	client := NewClient(stub.URL, "client-id", "client-secret")
	wallet := newFakeLedger()
	orders := newMemoryOrderStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(logger, client, wallet, orders, "USD")
	svc.now = func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) }
	return svc, wallet, orders, stub.Close
}

func TestDepositRoundTrip(t *testing.T) {
	svc, wallet, orders, done := newTestStack(t, "COMPLETED")
	defer done()
	ctx := context.Background()

	order, err := svc.StartDeposit(ctx, 7, 25, "https://app.example/capture", "https://app.example/wallet")
	require.NoError(t, err)
	require.Equal(t, "ORD-1", order.ID)
	require.Equal(t, "https://provider.example/approve/ORD-1", order.ApprovalURL)
	require.Len(t, wallet.pending, 1)

	resolved, err := svc.CompleteDeposit(ctx, 7, "ORD-1")
	require.NoError(t, err)
	require.Equal(t, orderStatusCaptured, resolved.Status)
	require.InDelta(t, 25, wallet.balance, 0.001)
	require.Empty(t, wallet.pending)

	// Idempotent capture endpoint: a second attempt does not double-credit.
	_, err = svc.CompleteDeposit(ctx, 7, "ORD-1")
	require.Error(t, err)
	require.InDelta(t, 25, wallet.balance, 0.001)

	stored, err := orders.Get(ctx, "ORD-1")
	require.NoError(t, err)
	require.Equal(t, orderStatusCaptured, stored.Status)
}

func TestDepositCaptureRejectedMarksFailed(t *testing.T) {
	svc, wallet, _, done := newTestStack(t, "DECLINED")
	defer done()
	ctx := context.Background()

	_, err := svc.StartDeposit(ctx, 7, 25, "https://app.example/capture", "https://app.example/wallet")
	require.NoError(t, err)

	resolved, err := svc.CompleteDeposit(ctx, 7, "ORD-1")
	require.NoError(t, err)
	require.Equal(t, orderStatusFailed, resolved.Status)
	require.Zero(t, wallet.balance)
	require.Equal(t, map[int64]bool{1: false}, wallet.settled)
}

func TestDepositRejectsForeignOrder(t *testing.T) {
	svc, _, _, done := newTestStack(t, "COMPLETED")
	defer done()
	ctx := context.Background()

	_, err := svc.StartDeposit(ctx, 7, 25, "https://app.example/capture", "https://app.example/wallet")
	require.NoError(t, err)

	_, err = svc.CompleteDeposit(ctx, 99, "ORD-1")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDepositAmountBounds(t *testing.T) {
	svc, _, _, done := newTestStack(t, "COMPLETED")
	defer done()
	ctx := context.Background()

	_, err := svc.StartDeposit(ctx, 7, 0.50, "", "")
	require.Error(t, err)
	_, err = svc.StartDeposit(ctx, 7, 5000, "", "")
	require.Error(t, err)
}

func TestUnconfiguredProvider(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(logger, NewClient("", "", ""), newFakeLedger(), newMemoryOrderStore(), "USD")

	_, err := svc.StartDeposit(context.Background(), 7, 25, "", "")
	require.ErrorIs(t, err, ErrUnavailable)
}
