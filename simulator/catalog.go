/*
Package simulator provides the in-process planning engine.

PURPOSE:
  A fully functional planning back-end held in memory. Its reference data
  (dimensions, items, modules, versions) is static; its cells are seeded
  deterministically on connect and recalculated after every write batch.

FILES:
  catalog.go:  Static reference data (this file)
  rand.go:     Explicit Park-Miller generator for seeding
  formulas.go: One formula set per module kind (recalculation engine)
  seed.go:     Synthetic dataset generation
  engine.go:   planning.Engine implementation

SEE ALSO:
  - planning/table.go: Table builder used for reads
  - planning/write.go: Write resolution used for writes
*/
package simulator

import "github.com/warp/planning-engine/planning"

// =============================================================================
// VERSIONS
// =============================================================================

const (
	VersionActual   = "actual"
	VersionBudget   = "budget"
	VersionForecast = "forecast"
)

var versions = []planning.DimensionItem{
	{ID: VersionActual, Name: "Actual"},
	{ID: VersionBudget, Name: "Budget 2024"},
	{ID: VersionForecast, Name: "Forecast Q2"},
}

// versionMultiplier scales seeded inputs per version.
func versionMultiplier(versionID string) float64 {
	switch versionID {
	case VersionBudget:
		return 1.1
	case VersionForecast:
		return 1.05
	default:
		return 1.0
	}
}

// =============================================================================
// DIMENSIONS
// =============================================================================

var dimensions = []planning.Dimension{
	{ID: planning.TimeDimensionID, Name: "Time Period"},
	{ID: "product", Name: "Product Line"},
	{ID: "region", Name: "Region"},
	{ID: "subregion", Name: "Sub-Region", ParentDimensionID: "region"},
	{ID: "department", Name: "Department"},
	{ID: "cost_center", Name: "Cost Center"},
	{ID: "account_code", Name: "Account Code"},
}

var dimensionItems = map[string][]planning.DimensionItem{
	planning.TimeDimensionID: {
		{ID: "q1_24", Name: "Q1 2024"},
		{ID: "q2_24", Name: "Q2 2024"},
		{ID: "q3_24", Name: "Q3 2024"},
		{ID: "q4_24", Name: "Q4 2024"},
		{ID: "q1_25", Name: "Q1 2025"},
		{ID: "q2_25", Name: "Q2 2025"},
	},
	"product": {
		{ID: "electronics", Name: "Electronics"},
		{ID: "apparel", Name: "Apparel"},
		{ID: "home", Name: "Home & Garden"},
	},
	"region": {
		{ID: "na", Name: "North America"},
		{ID: "eu", Name: "Europe"},
		{ID: "apac", Name: "Asia Pacific"},
	},
	"subregion": {
		{ID: "us", Name: "United States", ParentItemID: "na"},
		{ID: "ca", Name: "Canada", ParentItemID: "na"},
		{ID: "uk", Name: "United Kingdom", ParentItemID: "eu"},
		{ID: "de", Name: "Germany", ParentItemID: "eu"},
		{ID: "fr", Name: "France", ParentItemID: "eu"},
		{ID: "jp", Name: "Japan", ParentItemID: "apac"},
		{ID: "au", Name: "Australia", ParentItemID: "apac"},
	},
	"department": {
		{ID: "sales", Name: "Sales"},
		{ID: "marketing", Name: "Marketing"},
		{ID: "operations", Name: "Operations"},
		{ID: "rnd", Name: "R&D"},
	},
	"cost_center": {
		{ID: "cc100", Name: "CC-100 Corporate"},
		{ID: "cc200", Name: "CC-200 Engineering"},
		{ID: "cc300", Name: "CC-300 Marketing"},
		{ID: "cc400", Name: "CC-400 Sales"},
	},
	"account_code": {
		{ID: "ac5001", Name: "5001 - Salaries"},
		{ID: "ac5002", Name: "5002 - Benefits"},
		{ID: "ac6001", Name: "6001 - Travel"},
		{ID: "ac6002", Name: "6002 - Software"},
		{ID: "ac7001", Name: "7001 - Facilities"},
	},
}

// =============================================================================
// TEXT VALUE POOLS
// =============================================================================

var (
	routeValues    = []string{"Direct", "Channel", "Online", "Retail"}
	managerValues  = []string{"Alice Chen", "Bob Davis", "Carol White", "David Kim", "Eva Martinez"}
	costTypeValues = []string{"Fixed", "Variable", "Semi-Variable"}
	regionLabels   = []string{"North", "South", "East", "West"}
)

// =============================================================================
// MODULES
// =============================================================================

const (
	ModuleRevenue = "revenue"
	ModuleExpense = "expense"
	ModulePnL     = "pnl"
)

var modules = []planning.Module{
	{
		ID:           ModuleRevenue,
		Name:         "Revenue Planning",
		DimensionIDs: []string{planning.TimeDimensionID, "product", "subregion"},
		LineItems: []planning.LineItem{
			{ID: "route", Name: "Route", Format: planning.FormatText, Editable: true},
			{ID: "manager", Name: "Manager", Format: planning.FormatText, Editable: true},
			{ID: "units", Name: "Units Sold", Format: planning.FormatNumber, Editable: true},
			{ID: "price", Name: "Avg Price", Format: planning.FormatCurrency, Editable: true},
			{ID: "gross_rev", Name: "Gross Revenue", Format: planning.FormatCurrency},
			{ID: "discounts", Name: "Discounts", Format: planning.FormatCurrency, Editable: true},
			{ID: "net_rev", Name: "Net Revenue", Format: planning.FormatCurrency},
		},
	},
	{
		ID:           ModuleExpense,
		Name:         "Expense Planning",
		DimensionIDs: []string{planning.TimeDimensionID, "department", "cost_center", "account_code"},
		LineItems: []planning.LineItem{
			{ID: "cost_type", Name: "Cost Type", Format: planning.FormatText, Editable: true},
			{ID: "manager_exp", Name: "Manager", Format: planning.FormatText, Editable: true},
			{ID: "budget_amt", Name: "Budget Amount", Format: planning.FormatCurrency, Editable: true},
			{ID: "actual_amt", Name: "Actual Amount", Format: planning.FormatCurrency, Editable: true},
			{ID: "variance", Name: "Variance", Format: planning.FormatCurrency},
			{ID: "var_pct", Name: "Variance %", Format: planning.FormatPercentage},
		},
	},
	{
		ID:           ModulePnL,
		Name:         "P&L Summary",
		DimensionIDs: []string{planning.TimeDimensionID, "product"},
		LineItems: []planning.LineItem{
			{ID: "region_label", Name: "Region", Format: planning.FormatText, Editable: true},
			{ID: "revenue", Name: "Revenue", Format: planning.FormatCurrency},
			{ID: "cogs", Name: "COGS", Format: planning.FormatCurrency, Editable: true},
			{ID: "gross_profit", Name: "Gross Profit", Format: planning.FormatCurrency},
			{ID: "opex", Name: "OpEx", Format: planning.FormatCurrency, Editable: true},
			{ID: "ebitda", Name: "EBITDA", Format: planning.FormatCurrency},
			{ID: "net_income", Name: "Net Income", Format: planning.FormatCurrency},
		},
	},
}

var workspaces = []planning.WorkspaceInfo{
	{ID: "demo", Name: "Demo Workspace"},
	{ID: "sandbox", Name: "Sandbox"},
}

// Schema returns a copy of the simulator schema.
func Schema() planning.Schema {
	return planning.Schema{
		Dimensions: append([]planning.Dimension(nil), dimensions...),
		Modules:    append([]planning.Module(nil), modules...),
		Versions:   append([]planning.DimensionItem(nil), versions...),
	}
}

// Catalog returns the dimension catalog.
func Catalog() planning.Catalog {
	return planning.Catalog{Dimensions: dimensions, Items: dimensionItems}
}
