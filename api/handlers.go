/*
handlers.go - HTTP API handlers for the planning engines

PURPOSE:
  Exposes the registered planning engines via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the engines.

ENDPOINTS:
  Engines:
    GET    /api/engines                                  List engines
    POST   /api/engines/{engineId}/connect               Connect (body: credentials)
    POST   /api/engines/{engineId}/disconnect            Disconnect
    GET    /api/engines/{engineId}/workspaces            List workspaces

  Workspace ({ws} = /api/engines/{engineId}/workspaces/{workspaceId}):
    GET    {ws}/models                                   List models (engines with models)
    GET    {ws}/schema                                   Workspace schema
    GET    {ws}/dimensions/{dimensionId}/items           Dimension items
             ?parentDimensionId=&parentItemIds=a,b
    GET    {ws}/modules/{moduleId}/data                  One page of the module table
             ?filters={json}&lineItemFilters={json}&numericFilters=[json]
             &version=&lineItemId=&page=&pageSize=
    GET    {ws}/modules/{moduleId}/lineItems/{id}/values Distinct text values
    POST   {ws}/modules/{moduleId}/cells                 Write a batch of cells

  Saved connections:
    GET    /api/connections                              List, newest first
    POST   /api/connections                              Save
    GET    /api/connections/{id}                         Get
    DELETE /api/connections/{id}                         Delete
    POST   /api/connections/{id}/connect                 Connect its engine

ERROR HANDLING:
  Engine errors carry a kind that selects the HTTP status:
  - 400: invalid request, malformed identifier
  - 404: unknown engine, workspace, module, dimension, connection
  - 409: engine not connected
  - 502: upstream platform failure
  - 500: anything else
  Per-write failures are not errors: a write batch always answers 200 with
  success=false and the collected messages.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/warp/planning-engine/logger"
	"github.com/warp/planning-engine/planning"
	"github.com/warp/planning-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engines     *planning.Registry
	Connections *sqlite.Store

	log *logger.Logger
}

// NewHandler creates a new handler.
func NewHandler(engines *planning.Registry, connections *sqlite.Store, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		Engines:     engines,
		Connections: connections,
		log:         log.WithComponent("api"),
	}
}

func (h *Handler) engine(w http.ResponseWriter, r *http.Request) (planning.Engine, bool) {
	e, err := h.Engines.Get(param(r, "engineId"))
	if err != nil {
		writeEngineError(w, r, err)
		return nil, false
	}
	return e, true
}

// =============================================================================
// ENGINE HANDLERS
// =============================================================================

// ListEngines returns every registered engine with its connection state.
func (h *Handler) ListEngines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engines.List())
}

// Connect connects an engine. An empty body uses the engine's defaults.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	var req ConnectRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := e.Connect(r.Context(), req.credentials()); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// Disconnect drops an engine's connection.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := e.Disconnect(r.Context()); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// ListWorkspaces returns the engine's workspaces.
func (h *Handler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	workspaces, err := e.Workspaces(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, workspaces)
}

// ListModels returns the models of a workspace, for engines that have them.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	lister, ok := e.(planning.ModelLister)
	if !ok {
		writeEngineError(w, r, planning.Invalid("list models", "engine %q has no models", e.ID()))
		return
	}
	models, err := lister.Models(r.Context(), param(r, "workspaceId"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models)
}

// =============================================================================
// WORKSPACE HANDLERS
// =============================================================================

// GetSchema returns the workspace schema.
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	schema, err := e.Schema(r.Context(), param(r, "workspaceId"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

// GetDimensionItems lists a dimension's items. Both parentDimensionId and
// parentItemIds must be set for the parent filter to apply.
func (h *Handler) GetDimensionItems(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var parent *planning.ParentFilter
	if dim, ids := q.Get("parentDimensionId"), q.Get("parentItemIds"); dim != "" && ids != "" {
		parent = &planning.ParentFilter{DimensionID: dim, ItemIDs: splitList(ids)}
	}

	items, err := e.DimensionItems(r.Context(), param(r, "workspaceId"), param(r, "dimensionId"), parent)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// GetModuleData returns one page of a module table.
func (h *Handler) GetModuleData(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	req, err := parseModuleDataRequest(r.URL.Query())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	resp, err := e.ModuleData(r.Context(), param(r, "workspaceId"), param(r, "moduleId"), req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetLineItemValues returns the distinct text values of a line item.
func (h *Handler) GetLineItemValues(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	values, err := e.LineItemValues(r.Context(),
		param(r, "workspaceId"), param(r, "moduleId"), param(r, "lineItemId"),
		r.URL.Query().Get("version"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if values == nil {
		values = []string{}
	}
	writeJSON(w, http.StatusOK, values)
}

// WriteCells applies a write batch. Per-write failures come back in the
// result with status 200.
func (h *Handler) WriteCells(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	var req WriteCellsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := e.WriteCells(r.Context(), param(r, "workspaceId"), param(r, "moduleId"), req.Version, req.Cells)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// SAVED CONNECTION HANDLERS
// =============================================================================

// ListConnections returns saved connections, newest first.
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.Connections.ListConnections(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

// SaveConnection stores a named credential for a registered engine.
func (h *Handler) SaveConnection(w http.ResponseWriter, r *http.Request) {
	var req SaveConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if _, err := h.Engines.Get(req.EngineID); err != nil {
		writeEngineError(w, r, err)
		return
	}

	saved, err := h.Connections.SaveConnection(r.Context(), req.toRecord())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// GetConnection returns one saved connection.
func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Connections.GetConnection(r.Context(), param(r, "id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

// DeleteConnection removes a saved connection.
func (h *Handler) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.Connections.DeleteConnection(r.Context(), param(r, "id")); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConnectSaved connects the saved connection's engine with its credential.
func (h *Handler) ConnectSaved(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Connections.GetConnection(r.Context(), param(r, "id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	e, err := h.Engines.Get(conn.EngineID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if err := e.Connect(r.Context(), conn.Credentials()); err != nil {
		writeEngineError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Infow("connected with saved connection",
		"engine", conn.EngineID, "connection", conn.ID)
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// =============================================================================
// REQUEST PARSING
// =============================================================================

// parseModuleDataRequest reads the module data query. JSON-valued parameters
// that fail to decode are invalid requests.
func parseModuleDataRequest(q url.Values) (planning.ModuleDataRequest, error) {
	const op = "parse module data request"
	req := planning.NewModuleDataRequest()

	if err := decodeQueryJSON(q, "filters", &req.Filters); err != nil {
		return req, planning.Invalid(op, "filters: %v", err)
	}
	if err := decodeQueryJSON(q, "lineItemFilters", &req.LineItemFilters); err != nil {
		return req, planning.Invalid(op, "lineItemFilters: %v", err)
	}
	if err := decodeQueryJSON(q, "numericFilters", &req.NumericFilters); err != nil {
		return req, planning.Invalid(op, "numericFilters: %v", err)
	}
	if v := q.Get("version"); v != "" {
		req.Version = v
	}
	req.LineItemID = q.Get("lineItemId")

	var err error
	if req.Page, err = queryInt(q, "page", planning.DefaultPage); err != nil {
		return req, planning.Invalid(op, "page: %v", err)
	}
	if req.PageSize, err = queryInt(q, "pageSize", planning.DefaultPageSize); err != nil {
		return req, planning.Invalid(op, "pageSize: %v", err)
	}
	return req, nil
}

func decodeQueryJSON(q url.Values, key string, out any) error {
	raw := q.Get(key)
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

func queryInt(q url.Values, key string, def int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// decodeOptionalBody decodes a JSON body, treating an empty body as zero.
func decodeOptionalBody(r *http.Request, out any) error {
	err := json.NewDecoder(r.Body).Decode(out)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// param returns a URL parameter unescaped exactly once. chi routes on RawPath
// when it is set, so only then is the parameter still escaped.
func param(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return raw
	}
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps an error kind to its HTTP status. Server-side
// failures are logged with the request's logger.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := planning.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Errorw("request failed", "kind", kind, "error", err)
	}

	message := err.Error()
	var pe *planning.Error
	if errors.As(err, &pe) {
		message = pe.Message
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: string(kind), Details: err.Error()})
}

func statusFor(kind planning.Kind) int {
	switch kind {
	case planning.KindInvalid, planning.KindMalformed, planning.KindNotEditable:
		return http.StatusBadRequest
	case planning.KindUnknown:
		return http.StatusNotFound
	case planning.KindNotConnected:
		return http.StatusConflict
	case planning.KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
