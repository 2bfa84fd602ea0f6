package planning

// =============================================================================
// MODULE DATA REQUEST
// =============================================================================

const (
	DefaultPage     = 1
	DefaultPageSize = 50
)

// DimensionFilters maps a dimension id to the selected item ids.
type DimensionFilters map[string][]string

// Selected returns the selection for a dimension (nil when unfiltered).
func (f DimensionFilters) Selected(dimensionID string) []string {
	if f == nil {
		return nil
	}
	return f[dimensionID]
}

// Operator is a numeric filter comparison.
type Operator string

const (
	OpGTE     Operator = "gte"
	OpGT      Operator = "gt"
	OpLTE     Operator = "lte"
	OpLT      Operator = "lt"
	OpZero    Operator = "zero"
	OpNonZero Operator = "non_zero"
	OpBetween Operator = "between"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpGTE, OpGT, OpLTE, OpLT, OpZero, OpNonZero, OpBetween:
		return true
	}
	return false
}

// NumericFilter keeps rows whose line item value satisfies the operator.
// ValueHigh only matters for between and defaults to Value.
type NumericFilter struct {
	LineItemID string   `json:"lineItemId"`
	Operator   Operator `json:"operator"`
	Value      *float64 `json:"value,omitempty"`
	ValueHigh  *float64 `json:"valueHigh,omitempty"`
}

// ModuleDataRequest selects, filters and paginates module rows.
type ModuleDataRequest struct {
	Filters         DimensionFilters    `json:"filters,omitempty"`
	LineItemFilters map[string][]string `json:"lineItemFilters,omitempty"`
	NumericFilters  []NumericFilter     `json:"numericFilters,omitempty"`
	Version         string              `json:"version,omitempty"`
	LineItemID      string              `json:"lineItemId,omitempty"`
	Page            int                 `json:"page"`
	PageSize        int                 `json:"pageSize"`
}

// NewModuleDataRequest returns a request with default version and paging.
func NewModuleDataRequest() ModuleDataRequest {
	return ModuleDataRequest{
		Version:  DefaultVersion,
		Page:     DefaultPage,
		PageSize: DefaultPageSize,
	}
}

// VersionOrDefault returns the requested version, or DefaultVersion.
func (r ModuleDataRequest) VersionOrDefault() string {
	if r.Version == "" {
		return DefaultVersion
	}
	return r.Version
}

// Validate rejects pagination that cannot address a page and unknown operators.
func (r ModuleDataRequest) Validate() error {
	const op = "validate request"
	if r.Page < 1 {
		return Invalid(op, "page must be >= 1, got %d", r.Page)
	}
	if r.PageSize < 1 {
		return Invalid(op, "pageSize must be >= 1, got %d", r.PageSize)
	}
	for _, nf := range r.NumericFilters {
		if !nf.Operator.Valid() {
			return Invalid(op, "unknown numeric operator %q", nf.Operator)
		}
		if nf.LineItemID == "" {
			return Invalid(op, "numeric filter requires a lineItemId")
		}
	}
	return nil
}
