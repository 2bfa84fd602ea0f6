package simulator

import (
	"math"

	"github.com/warp/planning-engine/planning"
)

// =============================================================================
// FORMULA SETS - Recalculation engine, one explicit type per module kind
// =============================================================================

// ModuleKind enumerates the modules with a formula catalog.
type ModuleKind int

const (
	KindRevenue ModuleKind = iota + 1
	KindExpense
	KindPnL
)

// KindOf maps a module id to its kind.
func KindOf(moduleID string) (ModuleKind, bool) {
	switch moduleID {
	case ModuleRevenue:
		return KindRevenue, true
	case ModuleExpense:
		return KindExpense, true
	case ModulePnL:
		return KindPnL, true
	}
	return 0, false
}

// Inputs holds the numeric inputs of one (row, time period). Absent inputs read as 0.
type Inputs map[string]float64

func (in Inputs) Get(lineItemID string) float64 { return in[lineItemID] }

// Derived is one computed line item value.
type Derived struct {
	LineItemID string
	Value      float64
}

// FormulaSet is the pure formula catalog of one module.
type FormulaSet interface {
	// Inputs lists the line items Compute reads.
	Inputs() []string
	// Outputs lists the line items Compute derives, in computation order.
	Outputs() []string
	Compute(in Inputs) []Derived
}

// FormulasFor returns the formula set of a module kind.
func FormulasFor(kind ModuleKind) FormulaSet {
	switch kind {
	case KindRevenue:
		return RevenueFormulas{}
	case KindExpense:
		return ExpenseFormulas{}
	case KindPnL:
		return PnLFormulas{NetMargin: NetIncomeMargin}
	}
	return nil
}

// RevenueFormulas: gross = units x price, net = gross - discounts.
type RevenueFormulas struct{}

func (RevenueFormulas) Inputs() []string  { return []string{"units", "price", "discounts"} }
func (RevenueFormulas) Outputs() []string { return []string{"gross_rev", "net_rev"} }

func (RevenueFormulas) Compute(in Inputs) []Derived {
	gross := in.Get("units") * in.Get("price")
	return []Derived{
		{LineItemID: "gross_rev", Value: gross},
		{LineItemID: "net_rev", Value: gross - in.Get("discounts")},
	}
}

// ExpenseFormulas: variance = budget - actual, variance % = variance / budget x 100
// (0 when budget is 0).
type ExpenseFormulas struct{}

func (ExpenseFormulas) Inputs() []string  { return []string{"budget_amt", "actual_amt"} }
func (ExpenseFormulas) Outputs() []string { return []string{"variance", "var_pct"} }

func (ExpenseFormulas) Compute(in Inputs) []Derived {
	budget := in.Get("budget_amt")
	variance := budget - in.Get("actual_amt")
	pct := 0.0
	if budget != 0 {
		pct = variance / budget * 100
	}
	return []Derived{
		{LineItemID: "variance", Value: variance},
		{LineItemID: "var_pct", Value: pct},
	}
}

// NetIncomeMargin is the share of EBITDA kept as net income.
const NetIncomeMargin = 0.75

// PnLFormulas: gross profit = revenue - cogs, EBITDA = gross profit - opex,
// net income = EBITDA x NetMargin.
type PnLFormulas struct {
	NetMargin float64
}

func (PnLFormulas) Inputs() []string  { return []string{"revenue", "cogs", "opex"} }
func (PnLFormulas) Outputs() []string { return []string{"gross_profit", "ebitda", "net_income"} }

func (f PnLFormulas) Compute(in Inputs) []Derived {
	grossProfit := in.Get("revenue") - in.Get("cogs")
	ebitda := grossProfit - in.Get("opex")
	return []Derived{
		{LineItemID: "gross_profit", Value: grossProfit},
		{LineItemID: "ebitda", Value: ebitda},
		{LineItemID: "net_income", Value: ebitda * f.NetMargin},
	}
}

// =============================================================================
// RECALCULATION
// =============================================================================

// Recalculate overwrites every derived cell of (module, version) for every
// row combination and time period. Results are rounded to 2 decimals. Each
// (row, period) is computed from inputs only, so the pass is idempotent and
// independent of row order.
//
// A derived value that is not finite or exceeds planning.MaxCellMagnitude is
// stored as 0; the number of such cells is returned.
func Recalculate(cells planning.CellStore, mod planning.Module, versionID string, fs FormulaSet, cat planning.Catalog) int {
	rows, periods := scopeAxes(mod, cat)
	inputs := fs.Inputs()
	clamped := 0
	for _, combo := range rows {
		ids := planning.ItemIDs(combo)
		for _, tp := range periods {
			in := make(Inputs, len(inputs))
			for _, li := range inputs {
				if v, ok := cells.Number(planning.NewCellKey(mod.ID, versionID, ids, li, tp)); ok {
					in[li] = v
				}
			}
			for _, d := range fs.Compute(in) {
				v := d.Value
				if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > planning.MaxCellMagnitude {
					v = 0
					clamped++
				}
				cells.PutNumber(planning.NewCellKey(mod.ID, versionID, ids, d.LineItemID, tp), planning.Round2(v))
			}
		}
	}
	return clamped
}

// scopeAxes returns every row combination and time period id of a module,
// unfiltered.
func scopeAxes(mod planning.Module, cat planning.Catalog) ([][]planning.DimensionItem, []string) {
	axes := mod.RowAxes()
	lists := make([][]planning.DimensionItem, len(axes))
	for i, axis := range axes {
		lists[i] = cat.ItemsOf(axis)
	}
	periods := []string{planning.NoTimePeriod}
	if mod.HasTimeAxis() {
		periods = planning.ItemIDs(cat.ItemsOf(planning.TimeDimensionID))
	}
	return planning.Combinations(lists), periods
}
