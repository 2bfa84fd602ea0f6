package simulator

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/planning-engine/logger"
	"github.com/warp/planning-engine/planning"
	"github.com/warp/planning-engine/planning/store"
)

const (
	EngineID   = "mock"
	EngineName = "Mock Planning Engine"
	EngineType = "mock"
)

// =============================================================================
// SIMULATOR - In-memory planning engine
// =============================================================================

// Simulator implements planning.Engine over an in-memory cell store.
//
// Reads of a (module, version) scope share its read lock; a write batch and
// its recalculation hold the write lock, so readers never see a half
// recalculated scope.
type Simulator struct {
	log  *logger.Logger
	seed int64

	mu        sync.RWMutex
	connected bool
	cells     *store.Memory
	scopes    *store.ScopeLocks

	schema  planning.Schema
	catalog planning.Catalog
}

var _ planning.Engine = (*Simulator)(nil)

// New creates a disconnected simulator. Connect seeds its data.
func New(log *logger.Logger, seed int64) *Simulator {
	if log == nil {
		log = logger.Default()
	}
	return &Simulator{
		log:     log.WithComponent("simulator"),
		seed:    seed,
		cells:   store.NewMemory(),
		scopes:  store.NewScopeLocks(),
		schema:  Schema(),
		catalog: Catalog(),
	}
}

func (s *Simulator) ID() string   { return EngineID }
func (s *Simulator) Name() string { return EngineName }
func (s *Simulator) Type() string { return EngineType }

// Connect reseeds the dataset. Credentials are ignored.
func (s *Simulator) Connect(_ context.Context, _ planning.Credentials) error {
	cells := store.NewMemory()
	Seed(cells, s.seed)

	s.mu.Lock()
	s.cells = cells
	s.scopes = store.NewScopeLocks()
	s.connected = true
	s.mu.Unlock()

	s.log.Infow("simulator connected", "cells", cells.Len(), "seed", s.seed)
	return nil
}

// Disconnect drops all cells.
func (s *Simulator) Disconnect(_ context.Context) error {
	s.mu.Lock()
	s.connected = false
	s.cells = store.NewMemory()
	s.scopes = store.NewScopeLocks()
	s.mu.Unlock()

	s.log.Infow("simulator disconnected")
	return nil
}

func (s *Simulator) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Simulator) Workspaces(_ context.Context) ([]planning.WorkspaceInfo, error) {
	return append([]planning.WorkspaceInfo(nil), workspaces...), nil
}

func (s *Simulator) Schema(_ context.Context, workspaceID string) (planning.Schema, error) {
	if err := checkWorkspace("get schema", workspaceID); err != nil {
		return planning.Schema{}, err
	}
	return s.schema, nil
}

func (s *Simulator) DimensionItems(_ context.Context, workspaceID, dimensionID string, parent *planning.ParentFilter) ([]planning.DimensionItem, error) {
	const op = "get dimension items"
	if err := checkWorkspace(op, workspaceID); err != nil {
		return nil, err
	}
	if _, ok := s.catalog.Dimension(dimensionID); !ok {
		return nil, planning.UnknownEntity(op, "dimension", dimensionID)
	}
	items := s.catalog.ItemsOf(dimensionID)
	if parent != nil {
		items = planning.ChildrenOf(items, parent.ItemIDs)
	}
	return append([]planning.DimensionItem(nil), items...), nil
}

func (s *Simulator) LineItemValues(_ context.Context, workspaceID, moduleID, lineItemID, version string) ([]string, error) {
	const op = "get line item values"
	if version == "" {
		version = planning.DefaultVersion
	}
	cells, scopes, mod, err := s.resolve(op, workspaceID, moduleID, version)
	if err != nil {
		return nil, err
	}
	if _, ok := mod.LineItem(lineItemID); !ok {
		return nil, planning.UnknownEntity(op, "line item", lineItemID)
	}

	var values []string
	scopes.Read(store.Scope{ModuleID: moduleID, VersionID: version}, func() {
		values = cells.DistinctText(moduleID, version, lineItemID)
	})
	return values, nil
}

func (s *Simulator) ModuleData(_ context.Context, workspaceID, moduleID string, req planning.ModuleDataRequest) (planning.ModuleDataResponse, error) {
	const op = "get module data"
	if err := req.Validate(); err != nil {
		return planning.ModuleDataResponse{}, err
	}
	version := req.VersionOrDefault()
	cells, scopes, mod, err := s.resolve(op, workspaceID, moduleID, version)
	if err != nil {
		return planning.ModuleDataResponse{}, err
	}

	var table planning.Table
	scopes.Read(store.Scope{ModuleID: moduleID, VersionID: version}, func() {
		table, err = planning.BuildTable(mod, s.catalog, cells, req)
	})
	if err != nil {
		return planning.ModuleDataResponse{}, err
	}
	return planning.Paginate(table, req.Page, req.PageSize), nil
}

// WriteCells stores every valid write, then recalculates the scope once,
// even when some writes failed.
func (s *Simulator) WriteCells(ctx context.Context, workspaceID, moduleID, version string, writes []planning.CellWrite) (planning.CellWriteResult, error) {
	const op = "write cells"
	if version == "" {
		version = planning.DefaultVersion
	}
	cells, scopes, mod, err := s.resolve(op, workspaceID, moduleID, version)
	if err != nil {
		return planning.CellWriteResult{}, err
	}

	log := logger.FromContext(ctx)
	var errs []string
	scopes.Write(store.Scope{ModuleID: moduleID, VersionID: version}, func() {
		errs = planning.ApplyWrites(cells, mod, s.catalog, version, writes)
		if kind, ok := KindOf(mod.ID); ok {
			if n := Recalculate(cells, mod, version, FormulasFor(kind), s.catalog); n > 0 {
				log.Warnw("derived cells out of range", "module", moduleID, "version", version, "cells", n)
				errs = append(errs, fmt.Sprintf("%d derived cells of module %s were out of range and set to 0", n, moduleID))
			}
		}
	})

	log.Debugw("cells written",
		"module", moduleID, "version", version, "writes", len(writes), "errors", len(errs))
	return planning.NewCellWriteResult(errs), nil
}

// resolve checks connection, workspace, module and version, and returns the
// current store generation.
func (s *Simulator) resolve(op, workspaceID, moduleID, version string) (*store.Memory, *store.ScopeLocks, planning.Module, error) {
	s.mu.RLock()
	connected, cells, scopes := s.connected, s.cells, s.scopes
	s.mu.RUnlock()

	if !connected {
		return nil, nil, planning.Module{}, planning.NotConnected(op, "simulator is not connected")
	}
	if err := checkWorkspace(op, workspaceID); err != nil {
		return nil, nil, planning.Module{}, err
	}
	mod, ok := s.schema.Module(moduleID)
	if !ok {
		return nil, nil, planning.Module{}, planning.UnknownEntity(op, "module", moduleID)
	}
	if !s.schema.HasVersion(version) {
		return nil, nil, planning.Module{}, planning.UnknownEntity(op, "version", version)
	}
	return cells, scopes, mod, nil
}

func checkWorkspace(op, workspaceID string) error {
	for _, ws := range workspaces {
		if ws.ID == workspaceID {
			return nil
		}
	}
	return planning.UnknownEntity(op, "workspace", workspaceID)
}
