/*
adapter.go - Anaplan engine adapter

PURPOSE:
  Serves the planning.Engine contract against the Anaplan REST API (v2).
  The platform has no cell-level read API, so module data is pulled as a
  tabular export, normalized into planning rows, then filtered and paged
  locally with the same filter engine the simulator uses.

WORKSPACE IDS:
  A planning workspace is one Anaplan model, addressed as
  "<workspaceId>:<modelId>". Anything else is a malformed identifier.

CACHING:
  Assembled schemas are cached per workspace id until the next Connect or
  Disconnect. Cells are never cached; every data request runs an export.

WRITE-BACK:
  Best effort. An import job keyed to the module is created and triggered;
  its outcome is not verified.

SEE ALSO:
  - client.go: HTTP transport, timeouts, tracing
  - export.go: CSV export normalizer
*/
package anaplan

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/warp/planning-engine/logger"
	"github.com/warp/planning-engine/planning"
)

const (
	EngineID   = "anaplan"
	EngineName = "Anaplan"
	EngineType = "anaplan"

	exportType   = "TABULAR_SINGLE_COLUMN"
	importLocale = "en_US"

	defaultDiscoveryConcurrency = 4
)

// Options configures an Adapter. Zero values fall back to the defaults.
type Options struct {
	APIBase    string
	AuthURL    string
	Timeout    time.Duration
	HTTPClient *http.Client

	// Defaults are used for any credential field Connect is not given.
	Defaults planning.Credentials

	Logger *logger.Logger

	// DiscoveryConcurrency bounds parallel line item requests during schema
	// discovery.
	DiscoveryConcurrency int
}

// Adapter implements planning.Engine and planning.ModelLister for Anaplan.
type Adapter struct {
	client      *client
	log         *logger.Logger
	defaults    planning.Credentials
	concurrency int

	mu      sync.RWMutex
	token   string
	schemas map[string]planning.Schema
}

var (
	_ planning.Engine      = (*Adapter)(nil)
	_ planning.ModelLister = (*Adapter)(nil)
)

// New creates a disconnected adapter.
func New(opts Options) *Adapter {
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	if opts.AuthURL == "" {
		opts.AuthURL = DefaultAuthURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	if opts.DiscoveryConcurrency <= 0 {
		opts.DiscoveryConcurrency = defaultDiscoveryConcurrency
	}
	return &Adapter{
		client: &client{
			http:    opts.HTTPClient,
			apiBase: strings.TrimRight(opts.APIBase, "/"),
			authURL: opts.AuthURL,
			timeout: opts.Timeout,
		},
		log:         opts.Logger.WithComponent("anaplan"),
		defaults:    opts.Defaults,
		concurrency: opts.DiscoveryConcurrency,
		schemas:     make(map[string]planning.Schema),
	}
}

func (a *Adapter) ID() string   { return EngineID }
func (a *Adapter) Name() string { return EngineName }
func (a *Adapter) Type() string { return EngineType }

// =============================================================================
// CONNECTION
// =============================================================================

// Connect establishes a token: the given token, else an email/password
// exchange, else the configured defaults in the same order.
func (a *Adapter) Connect(ctx context.Context, creds planning.Credentials) error {
	const op = "connect"
	if creds.Email == "" {
		creds.Email = a.defaults.Email
	}
	if creds.Password == "" {
		creds.Password = a.defaults.Password
	}
	if creds.Token == "" {
		creds.Token = a.defaults.Token
	}

	token := creds.Token
	switch {
	case token != "":
	case creds.Email != "" && creds.Password != "":
		t, err := a.client.authenticate(ctx, creds.Email, creds.Password)
		if err != nil {
			return err
		}
		token = t
	default:
		return planning.Invalid(op, "anaplan requires a token or an email and password")
	}

	a.mu.Lock()
	a.token = token
	a.schemas = make(map[string]planning.Schema)
	a.mu.Unlock()

	a.log.Infow("anaplan connected")
	return nil
}

func (a *Adapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	a.token = ""
	a.schemas = make(map[string]planning.Schema)
	a.mu.Unlock()

	a.log.Infow("anaplan disconnected")
	return nil
}

func (a *Adapter) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token != ""
}

func (a *Adapter) currentToken(op string) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.token == "" {
		return "", planning.NotConnected(op, "anaplan adapter is not connected")
	}
	return a.token, nil
}

// =============================================================================
// DISCOVERY
// =============================================================================

func (a *Adapter) Workspaces(ctx context.Context) ([]planning.WorkspaceInfo, error) {
	token, err := a.currentToken("list workspaces")
	if err != nil {
		return nil, err
	}
	var resp workspacesResponse
	if err := a.client.getJSON(ctx, token, "/workspaces", &resp); err != nil {
		return nil, err
	}
	out := make([]planning.WorkspaceInfo, 0, len(resp.Workspaces))
	for _, ws := range resp.Workspaces {
		out = append(out, planning.WorkspaceInfo{ID: ws.ID, Name: ws.Name})
	}
	return out, nil
}

// Models lists the models of an upstream workspace. workspaceID here is the
// bare upstream id, not the composite form.
func (a *Adapter) Models(ctx context.Context, workspaceID string) ([]planning.ModelInfo, error) {
	token, err := a.currentToken("list models")
	if err != nil {
		return nil, err
	}
	var resp modelsResponse
	if err := a.client.getJSON(ctx, token, pathf("/workspaces/%s/models", workspaceID), &resp); err != nil {
		return nil, err
	}
	out := make([]planning.ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		out = append(out, planning.ModelInfo{ID: m.ID, Name: m.Name})
	}
	return out, nil
}

// Schema assembles lists, modules with their line items, and versions into
// one schema, cached per workspace id.
func (a *Adapter) Schema(ctx context.Context, workspaceID string) (planning.Schema, error) {
	const op = "get schema"
	token, err := a.currentToken(op)
	if err != nil {
		return planning.Schema{}, err
	}
	base, err := modelPath(op, workspaceID)
	if err != nil {
		return planning.Schema{}, err
	}

	a.mu.RLock()
	cached, ok := a.schemas[workspaceID]
	a.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var lists listsResponse
	if err := a.client.getJSON(ctx, token, base+"/lists", &lists); err != nil {
		return planning.Schema{}, err
	}
	dims := make([]planning.Dimension, 0, len(lists.Lists))
	for _, l := range lists.Lists {
		dims = append(dims, planning.Dimension{ID: l.ID, Name: l.Name, ParentDimensionID: refID(l.Parent)})
	}

	var mods modulesResponse
	if err := a.client.getJSON(ctx, token, base+"/modules", &mods); err != nil {
		return planning.Schema{}, err
	}
	modules := make([]planning.Module, len(mods.Modules))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, m := range mods.Modules {
		dimIDs := make([]string, 0, len(m.Dimensions))
		for _, d := range m.Dimensions {
			dimIDs = append(dimIDs, d.ID)
		}
		modules[i] = planning.Module{ID: m.ID, Name: m.Name, DimensionIDs: dimIDs}
		g.Go(func() error {
			items, err := a.lineItems(gctx, token, base, modules[i].ID)
			if err != nil {
				return err
			}
			modules[i].LineItems = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return planning.Schema{}, err
	}

	var vers versionsResponse
	if err := a.client.getJSON(ctx, token, base+"/versions", &vers); err != nil {
		return planning.Schema{}, err
	}
	versions := make([]planning.DimensionItem, 0, len(vers.Versions))
	for _, v := range vers.Versions {
		versions = append(versions, planning.DimensionItem{ID: v.ID, Name: v.Name})
	}

	schema := planning.Schema{Dimensions: dims, Modules: modules, Versions: versions}

	a.mu.Lock()
	a.schemas[workspaceID] = schema
	a.mu.Unlock()

	a.log.Debugw("schema discovered", "workspace", workspaceID,
		"dimensions", len(dims), "modules", len(modules), "versions", len(versions))
	return schema, nil
}

func (a *Adapter) lineItems(ctx context.Context, token, base, moduleID string) ([]planning.LineItem, error) {
	var resp lineItemsResponse
	if err := a.client.getJSON(ctx, token, base+pathf("/modules/%s/lineItems", moduleID), &resp); err != nil {
		return nil, err
	}
	items := make([]planning.LineItem, 0, len(resp.Items))
	for _, li := range resp.Items {
		items = append(items, planning.LineItem{
			ID:       li.ID,
			Name:     li.Name,
			Format:   mapFormat(li.Format),
			Editable: !hasFormula(li.Formula),
		})
	}
	return items, nil
}

func (a *Adapter) DimensionItems(ctx context.Context, workspaceID, dimensionID string, parent *planning.ParentFilter) ([]planning.DimensionItem, error) {
	const op = "get dimension items"
	token, err := a.currentToken(op)
	if err != nil {
		return nil, err
	}
	base, err := modelPath(op, workspaceID)
	if err != nil {
		return nil, err
	}

	var resp listItemsResponse
	if err := a.client.getJSON(ctx, token, base+pathf("/lists/%s/items", dimensionID), &resp); err != nil {
		return nil, err
	}
	items := make([]planning.DimensionItem, 0, len(resp.ListItems))
	for _, it := range resp.ListItems {
		items = append(items, planning.DimensionItem{ID: it.ID, Name: it.Name, ParentItemID: refID(it.Parent)})
	}
	if parent != nil {
		items = planning.ChildrenOf(items, parent.ItemIDs)
	}
	return items, nil
}

// =============================================================================
// DATA
// =============================================================================

// ModuleData exports the whole module, then filters and pages it locally.
// The export always covers the module's current view; req.Version is not
// sent upstream.
func (a *Adapter) ModuleData(ctx context.Context, workspaceID, moduleID string, req planning.ModuleDataRequest) (planning.ModuleDataResponse, error) {
	if err := req.Validate(); err != nil {
		return planning.ModuleDataResponse{}, err
	}
	table, err := a.filteredTable(ctx, "get module data", workspaceID, moduleID, req)
	if err != nil {
		return planning.ModuleDataResponse{}, err
	}
	return planning.Paginate(table, req.Page, req.PageSize), nil
}

// LineItemValues scans every exported row and collects the distinct
// non-blank text values of the line item, sorted.
func (a *Adapter) LineItemValues(ctx context.Context, workspaceID, moduleID, lineItemID, version string) ([]string, error) {
	req := planning.NewModuleDataRequest()
	req.Version = version
	table, err := a.filteredTable(ctx, "get line item values", workspaceID, moduleID, req)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, row := range table.Rows {
		v, ok := row.Get(lineItemID)
		if !ok || v.Kind() != planning.ValueText || strings.TrimSpace(v.String()) == "" {
			continue
		}
		seen[v.String()] = true
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values, nil
}

func (a *Adapter) filteredTable(ctx context.Context, op, workspaceID, moduleID string, req planning.ModuleDataRequest) (planning.Table, error) {
	token, err := a.currentToken(op)
	if err != nil {
		return planning.Table{}, err
	}
	base, err := modelPath(op, workspaceID)
	if err != nil {
		return planning.Table{}, err
	}
	schema, err := a.Schema(ctx, workspaceID)
	if err != nil {
		return planning.Table{}, err
	}
	mod, ok := schema.Module(moduleID)
	if !ok {
		return planning.Table{}, planning.UnknownEntity(op, "module", moduleID)
	}

	text, err := a.export(ctx, token, base, moduleID)
	if err != nil {
		return planning.Table{}, err
	}
	table, err := normalizeExport(text, mod, schema)
	if err != nil {
		return planning.Table{}, err
	}
	table = selectLineItem(table, req.LineItemID)

	rows, err := a.applyDimensionFilters(ctx, workspaceID, schema, table.Rows, req.Filters)
	if err != nil {
		return planning.Table{}, err
	}
	rows = planning.ApplyTextFilters(rows, req.LineItemFilters)
	rows = planning.ApplyNumericFilters(rows, table.Columns, req.NumericFilters)
	table.Rows = rows
	return table, nil
}

// export runs a tabular export of the module and returns the concatenated
// chunk text.
func (a *Adapter) export(ctx context.Context, token, base, moduleID string) (string, error) {
	const op = "export module"
	var created exportResponse
	body := map[string]string{"exportType": exportType}
	if err := a.client.postJSON(ctx, token, base+pathf("/modules/%s/exports", moduleID), body, &created); err != nil {
		return "", err
	}
	exportID := created.ExportMetadata.ExportID
	if exportID == "" {
		return "", planning.Upstream(op, nil, "no export id returned for module %s", moduleID)
	}

	exportBase := base + pathf("/exports/%s", exportID)
	if err := a.client.postJSON(ctx, token, exportBase+"/tasks", struct{}{}, nil); err != nil {
		return "", err
	}

	var chunks chunksResponse
	if err := a.client.getJSON(ctx, token, exportBase+"/chunks", &chunks); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, c := range chunks.Chunks {
		raw, err := a.client.getRaw(ctx, token, exportBase+pathf("/chunks/%s", c.ID))
		if err != nil {
			return "", err
		}
		sb.WriteString(raw)
		if !strings.HasSuffix(raw, "\n") {
			sb.WriteByte('\n')
		}
	}

	a.log.Debugw("module exported", "module", moduleID, "export", exportID, "chunks", len(chunks.Chunks))
	return sb.String(), nil
}

// applyDimensionFilters keeps rows whose dimension cell text is the name of
// a selected item. Filters on dimensions outside the schema are ignored.
func (a *Adapter) applyDimensionFilters(ctx context.Context, workspaceID string, schema planning.Schema, rows []planning.DataRow, filters planning.DimensionFilters) ([]planning.DataRow, error) {
	for dimID, selected := range filters {
		if len(selected) == 0 {
			continue
		}
		if _, ok := schema.Dimension(dimID); !ok {
			continue
		}
		items, err := a.DimensionItems(ctx, workspaceID, dimID, nil)
		if err != nil {
			return nil, err
		}
		ids := make(map[string]bool, len(selected))
		for _, id := range selected {
			ids[id] = true
		}
		names := make(map[string]bool)
		for _, it := range items {
			if ids[it.ID] {
				names[it.Name] = true
			}
		}

		kept := rows[:0:0]
		for _, row := range rows {
			v, ok := row.Get(dimID)
			if ok && !v.IsNull() && v.String() != "" && names[v.String()] {
				kept = append(kept, row)
			}
		}
		rows = kept
	}
	return rows, nil
}

// =============================================================================
// WRITE-BACK
// =============================================================================

// WriteCells creates and triggers an import for the module. Only a missing
// connection or a malformed workspace id fail the call; every other failure
// becomes the single error of an unsuccessful result.
func (a *Adapter) WriteCells(ctx context.Context, workspaceID, moduleID, version string, writes []planning.CellWrite) (planning.CellWriteResult, error) {
	const op = "write cells"
	token, err := a.currentToken(op)
	if err != nil {
		return planning.CellWriteResult{}, err
	}
	base, err := modelPath(op, workspaceID)
	if err != nil {
		return planning.CellWriteResult{}, err
	}

	if err := a.runImport(ctx, token, workspaceID, base, moduleID); err != nil {
		a.log.Warnw("write-back failed", "module", moduleID, "writes", len(writes), "error", err)
		return planning.NewCellWriteResult([]string{err.Error()}), nil
	}

	logger.FromContext(ctx).Infow("write-back import triggered",
		"module", moduleID, "version", version, "writes", len(writes))
	return planning.NewCellWriteResult(nil), nil
}

func (a *Adapter) runImport(ctx context.Context, token, workspaceID, base, moduleID string) error {
	const op = "import module"
	schema, err := a.Schema(ctx, workspaceID)
	if err != nil {
		return err
	}
	if _, ok := schema.Module(moduleID); !ok {
		return planning.UnknownEntity(op, "module", moduleID)
	}

	var created importResponse
	body := map[string]string{
		"name":               "write_" + uuid.NewString(),
		"importDataSourceId": moduleID,
	}
	if err := a.client.postJSON(ctx, token, base+"/imports", body, &created); err != nil {
		return err
	}
	if len(created.Imports) == 0 || created.Imports[0].ID == "" {
		return planning.Upstream(op, nil, "no import id returned for module %s", moduleID)
	}

	task := map[string]string{"localeName": importLocale}
	return a.client.postJSON(ctx, token, base+pathf("/imports/%s/tasks", created.Imports[0].ID), task, nil)
}

// modelPath validates a "<workspaceId>:<modelId>" id and returns the API path
// of the model.
func modelPath(op, workspaceID string) (string, error) {
	ws, model, ok := strings.Cut(workspaceID, ":")
	if !ok || ws == "" || model == "" || strings.Contains(model, ":") {
		return "", planning.Malformed(op, "invalid workspace id %q, expected \"workspaceId:modelId\"", workspaceID)
	}
	return pathf("/workspaces/%s/models/%s", ws, model), nil
}
