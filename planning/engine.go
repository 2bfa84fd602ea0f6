package planning

import (
	"context"
	"fmt"
	"sync"
)

// =============================================================================
// ENGINE - Contract every planning back-end implements
// =============================================================================

// Engine exposes one planning back-end through the uniform tabular contract.
type Engine interface {
	ID() string
	Name() string
	Type() string

	Connect(ctx context.Context, creds Credentials) error
	Disconnect(ctx context.Context) error
	Connected() bool

	Workspaces(ctx context.Context) ([]WorkspaceInfo, error)
	Schema(ctx context.Context, workspaceID string) (Schema, error)

	// DimensionItems lists a dimension's items, optionally restricted to the
	// children of the parent filter's items.
	DimensionItems(ctx context.Context, workspaceID, dimensionID string, parent *ParentFilter) ([]DimensionItem, error)

	// LineItemValues returns the distinct text values of a line item.
	LineItemValues(ctx context.Context, workspaceID, moduleID, lineItemID, version string) ([]string, error)

	ModuleData(ctx context.Context, workspaceID, moduleID string, req ModuleDataRequest) (ModuleDataResponse, error)

	// WriteCells applies a write batch. Per-write failures are reported in the
	// result; the error return is reserved for failures of the whole call.
	WriteCells(ctx context.Context, workspaceID, moduleID, version string, writes []CellWrite) (CellWriteResult, error)
}

// ModelLister is implemented by engines whose workspaces contain models.
type ModelLister interface {
	Models(ctx context.Context, workspaceID string) ([]ModelInfo, error)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds engines by id, in registration order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	engines map[string]Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// Register adds an engine. Ids must be unique.
func (r *Registry) Register(e Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.engines[e.ID()]; ok {
		return fmt.Errorf("engine %q is already registered", e.ID())
	}
	r.engines[e.ID()] = e
	r.order = append(r.order, e.ID())
	return nil
}

// Get returns the engine with the given id.
func (r *Registry) Get(id string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[id]
	if !ok {
		return nil, UnknownEntity("get engine", "engine", id)
	}
	return e, nil
}

// List summarizes all engines.
func (r *Registry) List() []EngineInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]EngineInfo, 0, len(r.order))
	for _, id := range r.order {
		e := r.engines[id]
		infos = append(infos, EngineInfo{
			ID:        e.ID(),
			Name:      e.Name(),
			Type:      e.Type(),
			Connected: e.Connected(),
		})
	}
	return infos
}
