package servers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockhaven/blockhaven/internal/shared"
)

type memoryServerRepo struct {
	records map[int64]*ServerRecord
}

func newMemoryServerRepo(recs ...*ServerRecord) *memoryServerRepo {
	repo := &memoryServerRepo{records: make(map[int64]*ServerRecord)}
	for _, rec := range recs {
		clone := *rec
		repo.records[rec.ID] = &clone
	}
	return repo
}

func (r *memoryServerRepo) ListByAccount(_ context.Context, accountID int64) ([]ServerRecord, error) {
	var out []ServerRecord
	for _, rec := range r.records {
		if rec.AccountID == accountID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *memoryServerRepo) Get(_ context.Context, id int64) (*ServerRecord, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (r *memoryServerRepo) MarkSuspended(_ context.Context, id int64) error {
	rec, ok := r.records[id]
	if !ok {
		return shared.ErrNotFound
	}
	rec.Status = StatusSuspended
	return nil
}

func (r *memoryServerRepo) MarkActive(_ context.Context, id int64) error {
	rec, ok := r.records[id]
	if !ok {
		return shared.ErrNotFound
	}
	rec.Status = StatusActive
	return nil
}

func (r *memoryServerRepo) UpdateExpiry(_ context.Context, id int64, expiresAt, nextBillingDate time.Time, status Status) error {
	rec, ok := r.records[id]
	if !ok {
		return shared.ErrNotFound
	}
	rec.ExpiresAt = expiresAt
	rec.NextBillingDate = nextBillingDate
	rec.Status = status
	return nil
}

func (r *memoryServerRepo) SetAutoRenew(_ context.Context, id int64, enabled bool) error {
	rec, ok := r.records[id]
	if !ok {
		return shared.ErrNotFound
	}
	rec.AutoRenew = enabled
	return nil
}

func (r *memoryServerRepo) ListOverdueUnflagged(_ context.Context, now time.Time) ([]ServerRecord, error) {
	var out []ServerRecord
	for _, rec := range r.records {
		if rec.ExpiresAt.Before(now) && rec.Status != StatusSuspended {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *memoryServerRepo) ListDueForInvoice(_ context.Context, cutoff time.Time) ([]ServerRecord, error) {
	var out []ServerRecord
	for _, rec := range r.records {
		if rec.Status == StatusActive && !rec.AutoRenew && !rec.NextBillingDate.After(cutoff) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type fakeReconcilerPanel struct {
	suspendCalls   int
	unsuspendCalls int
	suspendErr     error
	unsuspendErr   error
}

func (p *fakeReconcilerPanel) SuspendServer(context.Context, int64) error {
	p.suspendCalls++
	return p.suspendErr
}

func (p *fakeReconcilerPanel) UnsuspendServer(context.Context, int64) error {
	p.unsuspendCalls++
	return p.unsuspendErr
}

// fakeRenewalStore mirrors the production store: debit the balance and move
// the expiry in one step, or fail without touching either.
type fakeRenewalStore struct {
	repo    *memoryServerRepo
	balance float64
	charges []float64
	err     error
}

func (s *fakeRenewalStore) ChargeAndExtend(ctx context.Context, rec *ServerRecord, amount float64, expiresAt, nextBillingDate time.Time, status Status, _ string) error {
	if s.err != nil {
		return s.err
	}
	if s.balance < amount {
		return shared.ErrInsufficientBalance
	}
	s.balance -= amount
	s.charges = append(s.charges, amount)
	return s.repo.UpdateExpiry(ctx, rec.ID, expiresAt, nextBillingDate, status)
}

type fakeBilling struct {
	renewals int
}

func (b *fakeBilling) RecordRenewal(context.Context, int64, int64, float64, string) error {
	b.renewals++
	return nil
}

func testClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestService(repo *memoryServerRepo, panel *fakeReconcilerPanel, store *fakeRenewalStore, billing *fakeBilling) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, panel, store, billing)
}

func TestRenewExtendsFromCurrentExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(10 * 24 * time.Hour)
	rec := &ServerRecord{ID: 1, AccountID: 7, RemoteID: 41, Name: "skyblock", Price: 5, Status: StatusActive, ExpiresAt: expiry, NextBillingDate: expiry}

	repo := newMemoryServerRepo(rec)
	panel := &fakeReconcilerPanel{}
	store := &fakeRenewalStore{repo: repo, balance: 50}
	billing := &fakeBilling{}
	svc := newTestService(repo, panel, store, billing).WithClock(testClock(now))

	out, err := svc.Renew(context.Background(), 7, 1, 2)
	require.NoError(t, err)
	require.Equal(t, expiry.AddDate(0, 2, 0), out.ExpiresAt)
	require.Equal(t, []float64{10}, store.charges)
	require.Equal(t, 1, billing.renewals)
	require.Zero(t, panel.unsuspendCalls)

	stored, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, expiry.AddDate(0, 2, 0), stored.ExpiresAt)
}

func TestRenewLapsedServerExtendsFromNow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &ServerRecord{ID: 1, AccountID: 7, RemoteID: 41, Name: "skyblock", Price: 5, Status: StatusActive, ExpiresAt: now.Add(-5 * 24 * time.Hour)}

	repo := newMemoryServerRepo(rec)
	store := &fakeRenewalStore{repo: repo, balance: 50}
	svc := newTestService(repo, &fakeReconcilerPanel{}, store, &fakeBilling{}).WithClock(testClock(now))

	out, err := svc.Renew(context.Background(), 7, 1, 1)
	require.NoError(t, err)
	require.Equal(t, now.AddDate(0, 1, 0), out.ExpiresAt)
}

func TestRenewSuspendedServerUnsuspends(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &ServerRecord{ID: 1, AccountID: 7, RemoteID: 41, Name: "skyblock", Price: 5, Status: StatusSuspended, ExpiresAt: now.Add(-48 * time.Hour)}

	repo := newMemoryServerRepo(rec)
	panel := &fakeReconcilerPanel{}
	store := &fakeRenewalStore{repo: repo, balance: 50}
	svc := newTestService(repo, panel, store, &fakeBilling{}).WithClock(testClock(now))

	out, err := svc.Renew(context.Background(), 7, 1, 1)
	require.NoError(t, err)
	require.Equal(t, 1, panel.unsuspendCalls)
	require.Equal(t, StatusActive, out.Status)

	stored, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, StatusActive, stored.Status)
}

func TestRenewKeepsSuspendedWhenUnsuspendFails(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &ServerRecord{ID: 1, AccountID: 7, RemoteID: 41, Name: "skyblock", Price: 5, Status: StatusSuspended, ExpiresAt: now.Add(-48 * time.Hour)}

	repo := newMemoryServerRepo(rec)
	panel := &fakeReconcilerPanel{unsuspendErr: errors.New("panel down")}
	store := &fakeRenewalStore{repo: repo, balance: 50}
	svc := newTestService(repo, panel, store, &fakeBilling{}).WithClock(testClock(now))

	out, err := svc.Renew(context.Background(), 7, 1, 1)
	require.ErrorIs(t, err, ErrUnsuspendFailed)
	require.Equal(t, StatusSuspended, out.Status)
	require.Equal(t, []float64{5}, store.charges)

	stored, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, stored.Status)
}

func TestRenewInsufficientBalance(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &ServerRecord{ID: 1, AccountID: 7, RemoteID: 41, Name: "skyblock", Price: 5, Status: StatusSuspended, ExpiresAt: now.Add(-48 * time.Hour)}

	repo := newMemoryServerRepo(rec)
	panel := &fakeReconcilerPanel{}
	store := &fakeRenewalStore{repo: repo, balance: 2}
	svc := newTestService(repo, panel, store, &fakeBilling{}).WithClock(testClock(now))

	_, err := svc.Renew(context.Background(), 7, 1, 1)
	require.ErrorIs(t, err, shared.ErrInsufficientBalance)
	require.Zero(t, panel.unsuspendCalls)
	require.Empty(t, store.charges)
}

func TestRenewStoreFailureLeavesRecordUntouched(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(10 * 24 * time.Hour)
	rec := &ServerRecord{ID: 1, AccountID: 7, RemoteID: 41, Name: "skyblock", Price: 5, Status: StatusActive, ExpiresAt: expiry}

	repo := newMemoryServerRepo(rec)
	store := &fakeRenewalStore{repo: repo, balance: 50, err: errors.New("tx aborted")}
	billing := &fakeBilling{}
	svc := newTestService(repo, &fakeReconcilerPanel{}, store, billing).WithClock(testClock(now))

	_, err := svc.Renew(context.Background(), 7, 1, 1)
	require.Error(t, err)
	require.Empty(t, store.charges)
	require.Zero(t, billing.renewals)

	stored, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, expiry, stored.ExpiresAt)
	require.Equal(t, StatusActive, stored.Status)
}

func TestRenewRejectsForeignServer(t *testing.T) {
	rec := &ServerRecord{ID: 1, AccountID: 7, Name: "skyblock", Price: 5, Status: StatusActive}
	repo := newMemoryServerRepo(rec)
	svc := newTestService(repo, &fakeReconcilerPanel{}, &fakeRenewalStore{repo: repo, balance: 50}, &fakeBilling{})

	_, err := svc.Renew(context.Background(), 8, 1, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestExtendPaidCoversMonthsFromAmount(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &ServerRecord{ID: 1, AccountID: 7, RemoteID: 41, Name: "skyblock", Price: 5, Status: StatusSuspended, ExpiresAt: now.Add(-24 * time.Hour)}

	repo := newMemoryServerRepo(rec)
	panel := &fakeReconcilerPanel{}
	svc := newTestService(repo, panel, &fakeRenewalStore{repo: repo}, &fakeBilling{}).WithClock(testClock(now))

	out, err := svc.ExtendPaid(context.Background(), 7, 1, 10)
	require.NoError(t, err)
	require.Equal(t, now.AddDate(0, 2, 0), out.ExpiresAt)
	require.Equal(t, StatusActive, out.Status)
	require.Equal(t, 1, panel.unsuspendCalls)
}

func TestSuspendFlagsOnlyAfterRemoteSuccess(t *testing.T) {
	rec := &ServerRecord{ID: 1, AccountID: 7, RemoteID: 41, Status: StatusActive}
	repo := newMemoryServerRepo(rec)
	panel := &fakeReconcilerPanel{suspendErr: errors.New("panel down")}
	svc := newTestService(repo, panel, &fakeRenewalStore{repo: repo}, &fakeBilling{})

	err := svc.Suspend(context.Background(), rec)
	require.Error(t, err)

	stored, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, StatusActive, stored.Status)
}

func TestDueForInvoiceSkipsAutoRenew(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	soon := now.Add(3 * 24 * time.Hour)
	manual := &ServerRecord{ID: 1, AccountID: 7, Name: "manual", Price: 5, Status: StatusActive, NextBillingDate: soon}
	auto := &ServerRecord{ID: 2, AccountID: 7, Name: "auto", Price: 5, Status: StatusActive, AutoRenew: true, NextBillingDate: soon}
	distant := &ServerRecord{ID: 3, AccountID: 7, Name: "distant", Price: 5, Status: StatusActive, NextBillingDate: now.AddDate(0, 2, 0)}

	repo := newMemoryServerRepo(manual, auto, distant)
	svc := newTestService(repo, &fakeReconcilerPanel{}, &fakeRenewalStore{repo: repo}, &fakeBilling{}).WithClock(testClock(now))

	due, err := svc.DueForInvoice(context.Background())
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "manual", due[0].Name)
}

func TestExpiringSoonWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := ServerRecord{ExpiresAt: now.Add(3 * 24 * time.Hour)}
	require.True(t, rec.ExpiringSoon(now))

	rec.ExpiresAt = now.Add(10 * 24 * time.Hour)
	require.False(t, rec.ExpiringSoon(now))

	rec.ExpiresAt = now.Add(-time.Hour)
	require.False(t, rec.ExpiringSoon(now))
}
