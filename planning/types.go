/*
Package planning provides the core planning-data engine.

PURPOSE:
  This package contains the engine-agnostic types and algorithms that turn a
  dimensional planning schema into a paginated, filterable table. Whether the
  data lives in the in-process simulator or in a foreign hyperplanning
  platform, callers see the same contract: columns, rows, total count.

KEY CONCEPTS IN THIS FILE (types.go):
  - Dimension / DimensionItem: categorical axes and their members
  - LineItem: a measure or attribute column, editable or formula-derived
  - Module: a table of line items pivoted across dimensions
  - Schema: the dimensions, modules and versions of a workspace
  - ColumnDef / DataRow: the tabular output shape
  - ModuleDataRequest / ModuleDataResponse: query contract

TIME AXIS:
  The "time" dimension is privileged. When a module lists it, it pivots
  numeric line items into one column per time period instead of producing
  rows.

SEE ALSO:
  - value.go: Cell values (number, text, null)
  - cellkey.go: Structured cell addressing
  - table.go: Pivot/table builder
  - filter.go: Three-tier filter engine
  - engine.go: Engine contract and registry
*/
package planning

// TimeDimensionID is the dimension that pivots into columns.
const TimeDimensionID = "time"

// DefaultVersion is used when a request does not name a version.
const DefaultVersion = "actual"

// =============================================================================
// FORMAT
// =============================================================================

// Format is the display/storage format of a line item.
type Format string

const (
	FormatNumber     Format = "number"
	FormatCurrency   Format = "currency"
	FormatPercentage Format = "percentage"
	FormatText       Format = "text"
)

// IsNumeric reports whether values of this format live in the numeric namespace.
func (f Format) IsNumeric() bool {
	return f != FormatText
}

// =============================================================================
// SCHEMA MODEL
// =============================================================================

// Dimension is a categorical axis. A dimension may be the child of exactly
// one other dimension.
type Dimension struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ParentDimensionID string `json:"parentDimensionId,omitempty"`
}

// DimensionItem is a member of a dimension. Versions share this shape.
type DimensionItem struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ParentItemID string `json:"parentItemId,omitempty"`
}

// LineItem is a single measure or attribute within a module.
// Non-editable line items are formula-derived and never accept direct writes.
type LineItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Format   Format `json:"format"`
	Editable bool   `json:"editable"`
}

// Module is a named table of line items pivoted across dimensions.
type Module struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	DimensionIDs []string   `json:"dimensionIds"`
	LineItems    []LineItem `json:"lineItems"`
}

// RowAxes returns the module's dimensions minus the time axis, in declaration order.
func (m Module) RowAxes() []string {
	axes := make([]string, 0, len(m.DimensionIDs))
	for _, id := range m.DimensionIDs {
		if id != TimeDimensionID {
			axes = append(axes, id)
		}
	}
	return axes
}

// HasTimeAxis reports whether the module pivots over time.
func (m Module) HasTimeAxis() bool {
	for _, id := range m.DimensionIDs {
		if id == TimeDimensionID {
			return true
		}
	}
	return false
}

// LineItem looks up a line item by id.
func (m Module) LineItem(id string) (LineItem, bool) {
	for _, li := range m.LineItems {
		if li.ID == id {
			return li, true
		}
	}
	return LineItem{}, false
}

// Schema describes a workspace.
type Schema struct {
	Dimensions []Dimension     `json:"dimensions"`
	Modules    []Module        `json:"modules"`
	Versions   []DimensionItem `json:"versions"`
}

// Module looks up a module by id.
func (s Schema) Module(id string) (Module, bool) {
	for _, m := range s.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}

// Dimension looks up a dimension by id.
func (s Schema) Dimension(id string) (Dimension, bool) {
	for _, d := range s.Dimensions {
		if d.ID == id {
			return d, true
		}
	}
	return Dimension{}, false
}

// HasVersion reports whether the schema declares the version.
func (s Schema) HasVersion(id string) bool {
	for _, v := range s.Versions {
		if v.ID == id {
			return true
		}
	}
	return false
}

// =============================================================================
// TABULAR OUTPUT
// =============================================================================

// ColumnType distinguishes dimension columns from value columns.
type ColumnType string

const (
	ColumnDimension ColumnType = "dimension"
	ColumnValue     ColumnType = "value"
)

// ColumnDef describes one output column.
//
// A dimension column's Key is the dimension id. A value column's Key is the
// line item id, or lineItemId + "__" + timePeriodId for numeric line items
// under a time axis.
type ColumnDef struct {
	Key          string     `json:"key"`
	Label        string     `json:"label"`
	Type         ColumnType `json:"type"`
	Format       Format     `json:"format,omitempty"`
	Editable     *bool      `json:"editable,omitempty"`
	LineItemID   string     `json:"lineItemId,omitempty"`
	TimePeriodID string     `json:"timePeriodId,omitempty"`
}

// IsNumericValue reports whether the column holds numeric line item values.
func (c ColumnDef) IsNumericValue() bool {
	return c.Type == ColumnValue && c.Format.IsNumeric()
}

// ModuleDataResponse is one page of a module table.
type ModuleDataResponse struct {
	Columns   []ColumnDef `json:"columns"`
	Rows      []DataRow   `json:"rows"`
	Page      int         `json:"page"`
	PageSize  int         `json:"pageSize"`
	TotalRows int         `json:"totalRows"`
}

// =============================================================================
// WRITES
// =============================================================================

// CellWrite targets one cell by row id and column key.
type CellWrite struct {
	RowID     string `json:"rowId"`
	ColumnKey string `json:"columnKey"`
	Value     Value  `json:"value"`
}

// CellWriteResult reports a write batch. Success is true only when Errors is empty.
type CellWriteResult struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}

// NewCellWriteResult builds a result from collected per-write errors.
func NewCellWriteResult(errs []string) CellWriteResult {
	if len(errs) == 0 {
		return CellWriteResult{Success: true}
	}
	return CellWriteResult{Success: false, Errors: errs}
}

// =============================================================================
// ENGINE / WORKSPACE
// =============================================================================

// EngineInfo summarizes a registered engine.
type EngineInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
}

// WorkspaceInfo identifies a workspace within an engine.
type WorkspaceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ModelInfo identifies a model inside a workspace, for engines that have them.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ParentFilter restricts dimension items to children of the given parent items.
type ParentFilter struct {
	DimensionID string   `json:"dimensionId"`
	ItemIDs     []string `json:"itemIds"`
}

// Credentials are supplied on connect. Token wins over Email/Password.
type Credentials struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}
