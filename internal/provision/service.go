package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/blockhaven/blockhaven/internal/account"
	"github.com/blockhaven/blockhaven/internal/ledger"
	"github.com/blockhaven/blockhaven/internal/panel"
	"github.com/blockhaven/blockhaven/internal/servers"
	"github.com/blockhaven/blockhaven/internal/shared"
)

// Servers are paid for in 30-day blocks at creation time.
const initialTermDays = 30

// AccountPort resolves the buyer and their remote panel identity.
type AccountPort interface {
	Get(ctx context.Context, id int64) (*account.Account, error)
	EnsurePanelAccount(ctx context.Context, acct *account.Account) (*account.PanelLink, error)
}

// PanelPort is the slice of the panel client provisioning needs.
type PanelPort interface {
	Configured() bool
	CreateServer(ctx context.Context, input panel.CreateServerInput) (*panel.Server, error)
	GetServer(ctx context.Context, id int64) (*panel.Server, error)
	DeleteServer(ctx context.Context, id int64) error
	ListNodes(ctx context.Context) ([]panel.Node, error)
	ListAllocations(ctx context.Context, nodeID int64) ([]panel.Allocation, error)
}

// WalletPort reads the balance for the pre-charge check.
type WalletPort interface {
	Balance(ctx context.Context, accountID int64) (*ledger.Wallet, error)
}

// NetworkPort records the connection details once known.
type NetworkPort interface {
	SetNetwork(ctx context.Context, id int64, ip string, port int, location string) error
}

// IdempotencyPort guards against duplicate submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort records who provisioned what.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AllocatorPort picks the allocation for a new server.
type AllocatorPort interface {
	Select(ctx context.Context) int64
}

// Request is one provisioning order.
type Request struct {
	AccountID      int64
	Name           string
	PlanSlug       string
	AutoRenew      bool
	IdempotencyKey string
}

// Service runs the provisioning saga: charge locally, create remotely, and
// compensate the remote side when the local commit fails.
type Service struct {
	logger    *slog.Logger
	catalog   *Catalog
	accounts  AccountPort
	panel     PanelPort
	allocator AllocatorPort
	wallets   WalletPort
	store     Store
	network   NetworkPort
	idem      IdempotencyPort
	audit     AuditPort
	now       func() time.Time
}

// NewService constructs a new Service.
func NewService(logger *slog.Logger, catalog *Catalog, accounts AccountPort, panelClient PanelPort, allocator AllocatorPort, wallets WalletPort, store Store, network NetworkPort, idem IdempotencyPort, audit AuditPort) *Service {
	return &Service{
		logger:    logger,
		catalog:   catalog,
		accounts:  accounts,
		panel:     panelClient,
		allocator: allocator,
		wallets:   wallets,
		store:     store,
		network:   network,
		idem:      idem,
		audit:     audit,
		now:       time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Plans exposes the catalog.
func (s *Service) Plans() []Plan {
	return s.catalog.Plans()
}

// Provision validates the order, charges the wallet and creates the remote
// server. All local checks run before the first remote call; a remote
// server whose local record cannot be committed is deleted again.
func (s *Service) Provision(ctx context.Context, req Request) (*servers.ServerRecord, error) {
	plan, err := s.validate(&req)
	if err != nil {
		return nil, err
	}

	wallet, err := s.wallets.Balance(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if wallet.Balance < plan.Price {
		return nil, shared.ErrInsufficientBalance
	}

	if req.IdempotencyKey != "" {
		if err := s.idem.CheckAndInsert(ctx, req.IdempotencyKey, "provision"); err != nil {
			return nil, err
		}
	}
	rec, err := s.provision(ctx, req, plan)
	if err != nil && req.IdempotencyKey != "" && !errors.Is(err, shared.ErrIdempotencyConflict) {
		// A failed order must stay retryable under the same key.
		if delErr := s.idem.Delete(ctx, req.IdempotencyKey); delErr != nil {
			s.logger.Error("releasing idempotency key failed", "key", req.IdempotencyKey, "error", delErr)
		}
	}
	return rec, err
}

func (s *Service) validate(req *Request) (Plan, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return Plan{}, errors.New("server name required")
	}
	if len(req.Name) > 48 {
		return Plan{}, errors.New("server name exceeds 48 characters")
	}
	plan, ok := s.catalog.Find(req.PlanSlug)
	if !ok {
		return Plan{}, fmt.Errorf("unknown plan %q", req.PlanSlug)
	}
	if plan.RAMMB <= 0 || plan.DiskMB <= 0 || plan.CPU <= 0 {
		return Plan{}, fmt.Errorf("plan %q has invalid resource limits", plan.Slug)
	}
	if plan.Price <= 0 {
		return Plan{}, fmt.Errorf("plan %q has invalid price", plan.Slug)
	}
	return plan, nil
}

func (s *Service) provision(ctx context.Context, req Request, plan Plan) (*servers.ServerRecord, error) {
	acct, err := s.accounts.Get(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	link, err := s.accounts.EnsurePanelAccount(ctx, acct)
	if err != nil {
		return nil, err
	}

	allocationID := s.allocator.Select(ctx)
	remote, err := s.panel.CreateServer(ctx, panel.CreateServerInput{
		Name:         req.Name,
		UserID:       link.RemoteUserID,
		EggID:        plan.EggID,
		DockerImage:  plan.DockerImage,
		Startup:      plan.Startup,
		Environment:  plan.Environment,
		Limits:       panel.Limits{MemoryMB: plan.RAMMB, DiskMB: plan.DiskMB, CPU: plan.CPU},
		AllocationID: allocationID,
	})
	if err != nil {
		return nil, fmt.Errorf("panel create server: %w", err)
	}

	now := s.now()
	rec := &servers.ServerRecord{
		AccountID:       req.AccountID,
		RemoteID:        remote.ID,
		Name:            req.Name,
		Plan:            plan.Slug,
		Price:           plan.Price,
		RAMMB:           plan.RAMMB,
		DiskMB:          plan.DiskMB,
		CPU:             plan.CPU,
		Status:          servers.StatusInstalling,
		AutoRenew:       req.AutoRenew,
		CreatedAt:       now,
		ExpiresAt:       now.AddDate(0, 0, initialTermDays),
		NextBillingDate: now.AddDate(0, 0, initialTermDays),
	}
	reason := fmt.Sprintf("server creation: %s (%s)", req.Name, plan.Name)
	if err := s.store.CreatePaid(ctx, rec, reason); err != nil {
		// The charge did not land, so the remote server must not survive.
		if delErr := s.panel.DeleteServer(ctx, remote.ID); delErr != nil {
			s.logger.Error("compensating delete failed, remote server orphaned",
				"remote_id", remote.ID, "account_id", req.AccountID, "error", delErr)
		}
		return nil, err
	}

	s.fillNetwork(ctx, rec, remote, allocationID)

	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  req.AccountID,
			Action:   "server.provision",
			Entity:   "server",
			EntityID: strconv.FormatInt(rec.ID, 10),
			Meta:     map[string]any{"plan": plan.Slug, "remote_id": remote.ID, "price": plan.Price},
		}); err != nil {
			s.logger.Warn("audit record failed", "error", err)
		}
	}
	return rec, nil
}

// fillNetwork is a best-effort lookup of the connection details. The record
// is already paid and committed; failures here only leave ip/port blank.
func (s *Service) fillNetwork(ctx context.Context, rec *servers.ServerRecord, remote *panel.Server, allocationID int64) {
	// The create response may omit the node or allocation; re-read the
	// server for the authoritative placement.
	if fresh, err := s.panel.GetServer(ctx, remote.ID); err != nil {
		s.logger.Warn("remote server re-read failed", "remote_id", remote.ID, "error", err)
	} else {
		if fresh.NodeID != 0 {
			remote.NodeID = fresh.NodeID
		}
		if fresh.AllocationID != 0 {
			allocationID = fresh.AllocationID
		}
	}

	allocations, err := s.panel.ListAllocations(ctx, remote.NodeID)
	if err != nil {
		s.logger.Warn("network detail lookup failed", "node_id", remote.NodeID, "error", err)
		return
	}
	for _, alloc := range allocations {
		if alloc.ID != allocationID {
			continue
		}
		location := ""
		if nodes, err := s.panel.ListNodes(ctx); err == nil {
			for _, node := range nodes {
				if node.ID == remote.NodeID {
					location = node.Name
					break
				}
			}
		}
		if err := s.network.SetNetwork(ctx, rec.ID, alloc.IP, alloc.Port, location); err != nil {
			s.logger.Warn("storing network details failed", "server_id", rec.ID, "error", err)
			return
		}
		rec.IP = alloc.IP
		rec.Port = alloc.Port
		rec.Location = location
		return
	}
}
