package provision

import (
	"context"
	"log/slog"

	"github.com/blockhaven/blockhaven/internal/panel"
)

// DefaultAllocationID is used when the panel offers nothing better. Panels
// seed allocation 1 on install, so it is the conventional fallback.
const DefaultAllocationID int64 = 1

// AllocationLister is the slice of the panel client the allocator needs.
type AllocationLister interface {
	ListNodes(ctx context.Context) ([]panel.Node, error)
	ListAllocations(ctx context.Context, nodeID int64) ([]panel.Allocation, error)
}

// Allocator picks the allocation a new server will bind to.
type Allocator struct {
	logger *slog.Logger
	panel  AllocationLister
}

// NewAllocator constructs an Allocator.
func NewAllocator(logger *slog.Logger, lister AllocationLister) *Allocator {
	return &Allocator{logger: logger, panel: lister}
}

// Select walks nodes on the panel and returns the first unassigned
// allocation on the first node, falling back to the node's first allocation
// and finally to DefaultAllocationID. Panel errors are logged and degrade
// to the fallback; the provisioning flow never fails on allocation lookup.
func (a *Allocator) Select(ctx context.Context) int64 {
	nodes, err := a.panel.ListNodes(ctx)
	if err != nil {
		a.logger.Warn("allocation lookup: listing nodes failed", "error", err)
		return DefaultAllocationID
	}
	if len(nodes) == 0 {
		a.logger.Warn("allocation lookup: panel has no nodes")
		return DefaultAllocationID
	}

	node := nodes[0]
	allocations, err := a.panel.ListAllocations(ctx, node.ID)
	if err != nil {
		a.logger.Warn("allocation lookup: listing allocations failed", "node_id", node.ID, "error", err)
		return DefaultAllocationID
	}
	if len(allocations) == 0 {
		a.logger.Warn("allocation lookup: node has no allocations", "node_id", node.ID)
		return DefaultAllocationID
	}

	for _, alloc := range allocations {
		if !alloc.Assigned {
			return alloc.ID
		}
	}
	return allocations[0].ID
}
