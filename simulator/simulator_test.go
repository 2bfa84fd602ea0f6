package simulator_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/planning-engine/logger"
	"github.com/warp/planning-engine/planning"
	"github.com/warp/planning-engine/planning/store"
	"github.com/warp/planning-engine/simulator"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const ws = "demo"

func newSimulator(t *testing.T) *simulator.Simulator {
	t.Helper()
	sim := simulator.New(logger.Nop(), simulator.DefaultSeed)
	require.NoError(t, sim.Connect(context.Background(), planning.Credentials{}))
	return sim
}

func request(filters planning.DimensionFilters) planning.ModuleDataRequest {
	req := planning.NewModuleDataRequest()
	req.Filters = filters
	req.PageSize = 1000
	return req
}

func cell(t *testing.T, row planning.DataRow, key string) planning.Value {
	t.Helper()
	v, ok := row.Get(key)
	require.True(t, ok, "column %s missing", key)
	return v
}

func number(t *testing.T, row planning.DataRow, key string) float64 {
	t.Helper()
	f, ok := cell(t, row, key).Float()
	require.True(t, ok, "column %s is not numeric", key)
	return f
}

func singleRow(t *testing.T, sim *simulator.Simulator, module, version string, filters planning.DimensionFilters) planning.DataRow {
	t.Helper()
	req := request(filters)
	req.Version = version
	resp, err := sim.ModuleData(context.Background(), ws, module, req)
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	return resp.Rows[0]
}

var usElectronics = planning.DimensionFilters{"product": {"electronics"}, "subregion": {"us"}}

// =============================================================================
// CONNECTION / DISCOVERY
// =============================================================================

func TestSimulator_NotConnected(t *testing.T) {
	sim := simulator.New(logger.Nop(), simulator.DefaultSeed)
	assert.False(t, sim.Connected())

	_, err := sim.ModuleData(context.Background(), ws, simulator.ModuleRevenue, planning.NewModuleDataRequest())
	assert.ErrorIs(t, err, planning.ErrNotConnected)

	_, err = sim.WriteCells(context.Background(), ws, simulator.ModuleRevenue, "", nil)
	assert.ErrorIs(t, err, planning.ErrNotConnected)
}

func TestSimulator_Schema(t *testing.T) {
	sim := newSimulator(t)

	schema, err := sim.Schema(context.Background(), ws)
	require.NoError(t, err)
	assert.Len(t, schema.Modules, 3)
	assert.Len(t, schema.Versions, 3)
	sub, ok := schema.Dimension("subregion")
	require.True(t, ok)
	assert.Equal(t, "region", sub.ParentDimensionID)

	_, err = sim.Schema(context.Background(), "nope")
	assert.ErrorIs(t, err, planning.ErrUnknownEntity)
}

func TestSimulator_DimensionItems(t *testing.T) {
	sim := newSimulator(t)
	ctx := context.Background()

	items, err := sim.DimensionItems(ctx, ws, "subregion", &planning.ParentFilter{DimensionID: "region", ItemIDs: []string{"eu"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"uk", "de", "fr"}, planning.ItemIDs(items))

	items, err = sim.DimensionItems(ctx, ws, "time", nil)
	require.NoError(t, err)
	assert.Len(t, items, 6)

	_, err = sim.DimensionItems(ctx, ws, "colour", nil)
	assert.ErrorIs(t, err, planning.ErrUnknownEntity)
}

// =============================================================================
// MODULE DATA
// =============================================================================

func TestSimulator_RevenueShape(t *testing.T) {
	sim := newSimulator(t)

	resp, err := sim.ModuleData(context.Background(), ws, simulator.ModuleRevenue, request(nil))
	require.NoError(t, err)

	// 3 products x 7 subregions, 2 dims + 2 text + 5 numeric x 6 periods
	assert.Equal(t, 21, resp.TotalRows)
	assert.Len(t, resp.Columns, 2+2+5*6)
	assert.Equal(t, "row/0/electronics/us", resp.Rows[0].ID)
	assert.Equal(t, "row/20/home/au", resp.Rows[20].ID)

	for _, row := range resp.Rows {
		_, ids, err := planning.DecodeRowID(row.ID)
		require.NoError(t, err)
		assert.Len(t, ids, 2)
		assert.Equal(t, planning.ValueText, cell(t, row, "route").Kind())
	}
}

func TestSimulator_DerivedValuesConsistent(t *testing.T) {
	// GIVEN: Freshly seeded data
	// THEN: Every derived cell equals its formula over the stored inputs
	sim := newSimulator(t)

	rev, err := sim.ModuleData(context.Background(), ws, simulator.ModuleRevenue, request(nil))
	require.NoError(t, err)
	for _, row := range rev.Rows {
		for _, tp := range []string{"q1_24", "q2_25"} {
			units := number(t, row, "units__"+tp)
			price := number(t, row, "price__"+tp)
			gross := number(t, row, "gross_rev__"+tp)
			assert.Equal(t, planning.Round2(units*price), gross)
			assert.Equal(t, planning.Round2(gross-number(t, row, "discounts__"+tp)), number(t, row, "net_rev__"+tp))
		}
	}

	pnl, err := sim.ModuleData(context.Background(), ws, simulator.ModulePnL, request(nil))
	require.NoError(t, err)
	require.Equal(t, 3, pnl.TotalRows)
	for _, row := range pnl.Rows {
		gp := number(t, row, "gross_profit__q1_24")
		assert.Equal(t, planning.Round2(number(t, row, "revenue__q1_24")-number(t, row, "cogs__q1_24")), gp)
		ebitda := number(t, row, "ebitda__q1_24")
		assert.Equal(t, planning.Round2(gp-number(t, row, "opex__q1_24")), ebitda)
		assert.Equal(t, planning.Round2(ebitda*simulator.NetIncomeMargin), number(t, row, "net_income__q1_24"))
	}
}

func TestSimulator_SeedIsDeterministic(t *testing.T) {
	a := singleRow(t, newSimulator(t), simulator.ModuleRevenue, "", usElectronics)
	b := singleRow(t, newSimulator(t), simulator.ModuleRevenue, "", usElectronics)
	assert.Equal(t, a, b)

	other := simulator.New(logger.Nop(), 7)
	require.NoError(t, other.Connect(context.Background(), planning.Credentials{}))
	c := singleRow(t, other, simulator.ModuleRevenue, "", usElectronics)
	assert.NotEqual(t, number(t, a, "units__q1_24"), number(t, c, "units__q1_24"))
}

func TestSimulator_ParentFilterMembership(t *testing.T) {
	sim := newSimulator(t)

	resp, err := sim.ModuleData(context.Background(), ws, simulator.ModuleRevenue,
		request(planning.DimensionFilters{"region": {"apac"}}))
	require.NoError(t, err)

	assert.Equal(t, 6, resp.TotalRows)
	for _, row := range resp.Rows {
		assert.Contains(t, []planning.Value{planning.Text("Japan"), planning.Text("Australia")}, cell(t, row, "subregion"))
	}
}

func TestSimulator_TotalIndependentOfPaging(t *testing.T) {
	sim := newSimulator(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for page := 1; page <= 5; page++ {
		req := planning.NewModuleDataRequest()
		req.Page, req.PageSize = page, 5
		resp, err := sim.ModuleData(ctx, ws, simulator.ModuleRevenue, req)
		require.NoError(t, err)
		assert.Equal(t, 21, resp.TotalRows)
		for _, row := range resp.Rows {
			seen[row.ID] = true
		}
	}
	assert.Len(t, seen, 21)
}

func TestSimulator_LineItemValues(t *testing.T) {
	sim := newSimulator(t)

	values, err := sim.LineItemValues(context.Background(), ws, simulator.ModuleExpense, "cost_type", "")
	require.NoError(t, err)
	assert.Subset(t, []string{"Fixed", "Semi-Variable", "Variable"}, values)
	assert.IsIncreasing(t, values)

	_, err = sim.LineItemValues(context.Background(), ws, simulator.ModuleExpense, "nope", "")
	assert.ErrorIs(t, err, planning.ErrUnknownEntity)
}

func TestSimulator_UnknownEntities(t *testing.T) {
	sim := newSimulator(t)
	ctx := context.Background()

	_, err := sim.ModuleData(ctx, ws, "nope", planning.NewModuleDataRequest())
	assert.ErrorIs(t, err, planning.ErrUnknownEntity)

	req := planning.NewModuleDataRequest()
	req.Version = "draft"
	_, err = sim.ModuleData(ctx, ws, simulator.ModuleRevenue, req)
	assert.ErrorIs(t, err, planning.ErrUnknownEntity)

	req = planning.NewModuleDataRequest()
	req.PageSize = 0
	_, err = sim.ModuleData(ctx, ws, simulator.ModuleRevenue, req)
	assert.ErrorIs(t, err, planning.ErrInvalidRequest)
}

// =============================================================================
// WRITE + RECALCULATION
// =============================================================================

func TestSimulator_RevenueWriteScenario(t *testing.T) {
	// GIVEN: The electronics / US revenue row
	// WHEN: Writing units=1000, price=25, discounts=50 for Q1 2024
	// THEN: Gross revenue is 25000 and net revenue is 24950
	sim := newSimulator(t)
	ctx := context.Background()
	row := planning.EncodeRowID(0, []string{"electronics", "us"})

	result, err := sim.WriteCells(ctx, ws, simulator.ModuleRevenue, simulator.VersionActual, []planning.CellWrite{
		{RowID: row, ColumnKey: "units__q1_24", Value: planning.Number(1000)},
		{RowID: row, ColumnKey: "price__q1_24", Value: planning.Number(25)},
		{RowID: row, ColumnKey: "discounts__q1_24", Value: planning.Number(50)},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	got := singleRow(t, sim, simulator.ModuleRevenue, simulator.VersionActual, usElectronics)
	assert.Equal(t, 25000.0, number(t, got, "gross_rev__q1_24"))
	assert.Equal(t, 24950.0, number(t, got, "net_rev__q1_24"))

	// Other versions are untouched
	budget := singleRow(t, sim, simulator.ModuleRevenue, simulator.VersionBudget, usElectronics)
	assert.NotEqual(t, 25000.0, number(t, budget, "gross_rev__q1_24"))
}

func TestSimulator_ExpenseWriteScenario(t *testing.T) {
	sim := newSimulator(t)
	filters := planning.DimensionFilters{"department": {"sales"}, "cost_center": {"cc100"}, "account_code": {"ac5001"}}
	row := planning.EncodeRowID(0, []string{"sales", "cc100", "ac5001"})

	result, err := sim.WriteCells(context.Background(), ws, simulator.ModuleExpense, "", []planning.CellWrite{
		{RowID: row, ColumnKey: "budget_amt__q3_24", Value: planning.Number(1000)},
		{RowID: row, ColumnKey: "actual_amt__q3_24", Value: planning.Number(900)},
		{RowID: row, ColumnKey: "budget_amt__q4_24", Value: planning.Number(0)},
		{RowID: row, ColumnKey: "cost_type", Value: planning.Text("Custom")},
	})
	require.NoError(t, err)
	require.True(t, result.Success, result.Errors)

	got := singleRow(t, sim, simulator.ModuleExpense, "", filters)
	assert.Equal(t, 100.0, number(t, got, "variance__q3_24"))
	assert.Equal(t, 10.0, number(t, got, "var_pct__q3_24"))
	assert.Equal(t, 0.0, number(t, got, "var_pct__q4_24"))
	assert.Equal(t, planning.Text("Custom"), cell(t, got, "cost_type"))
}

func TestSimulator_NonEditableWriteRejected(t *testing.T) {
	sim := newSimulator(t)
	ctx := context.Background()
	row := planning.EncodeRowID(0, []string{"electronics", "us"})
	before := singleRow(t, sim, simulator.ModuleRevenue, "", usElectronics)

	result, err := sim.WriteCells(ctx, ws, simulator.ModuleRevenue, "", []planning.CellWrite{
		{RowID: row, ColumnKey: "net_rev__q1_24", Value: planning.Number(1)},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Net Revenue")

	after := singleRow(t, sim, simulator.ModuleRevenue, "", usElectronics)
	assert.Equal(t, before, after)
}

func TestSimulator_NonFiniteWritesRejected(t *testing.T) {
	// GIVEN: The electronics / US revenue row
	// WHEN: Writing non-finite or out of range units
	// THEN: Each write fails on its own and the module stays readable
	sim := newSimulator(t)
	ctx := context.Background()
	row := planning.EncodeRowID(0, []string{"electronics", "us"})
	before := singleRow(t, sim, simulator.ModuleRevenue, "", usElectronics)

	result, err := sim.WriteCells(ctx, ws, simulator.ModuleRevenue, "", []planning.CellWrite{
		{RowID: row, ColumnKey: "units__q1_24", Value: planning.Text("NaN")},
		{RowID: row, ColumnKey: "units__q1_24", Value: planning.Text("Inf")},
		{RowID: row, ColumnKey: "units__q1_24", Value: planning.Text("-Infinity")},
		{RowID: row, ColumnKey: "units__q1_24", Value: planning.Number(1e308)},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Len(t, result.Errors, 4)

	after := singleRow(t, sim, simulator.ModuleRevenue, "", usElectronics)
	assert.Equal(t, before, after)

	// A later valid write still recalculates
	result, err = sim.WriteCells(ctx, ws, simulator.ModuleRevenue, "", []planning.CellWrite{
		{RowID: row, ColumnKey: "units__q1_24", Value: planning.Number(1000)},
		{RowID: row, ColumnKey: "price__q1_24", Value: planning.Number(25)},
	})
	require.NoError(t, err)
	require.True(t, result.Success, result.Errors)

	resp, err := sim.ModuleData(ctx, ws, simulator.ModuleRevenue, request(nil))
	require.NoError(t, err)
	_, err = json.Marshal(resp)
	assert.NoError(t, err)
}

func TestSimulator_UnknownRowItemRejected(t *testing.T) {
	sim := newSimulator(t)
	result, err := sim.WriteCells(context.Background(), ws, simulator.ModuleRevenue, "", []planning.CellWrite{
		{RowID: planning.EncodeRowID(0, []string{"bogus", "us"}), ColumnKey: "units__q1_24", Value: planning.Number(1)},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `unknown product item "bogus"`)
}

func TestSimulator_WriteIsIdempotent(t *testing.T) {
	sim := newSimulator(t)
	ctx := context.Background()
	row := planning.EncodeRowID(0, []string{"electronics", "us"})
	writes := []planning.CellWrite{{RowID: row, ColumnKey: "units__q2_24", Value: planning.Number(321)}}

	_, err := sim.WriteCells(ctx, ws, simulator.ModuleRevenue, "", writes)
	require.NoError(t, err)
	first := singleRow(t, sim, simulator.ModuleRevenue, "", usElectronics)

	_, err = sim.WriteCells(ctx, ws, simulator.ModuleRevenue, "", writes)
	require.NoError(t, err)
	second := singleRow(t, sim, simulator.ModuleRevenue, "", usElectronics)

	assert.Equal(t, first, second)
}

func TestSimulator_ReconnectReseeds(t *testing.T) {
	sim := newSimulator(t)
	ctx := context.Background()
	before := singleRow(t, sim, simulator.ModuleRevenue, "", usElectronics)

	_, err := sim.WriteCells(ctx, ws, simulator.ModuleRevenue, "", []planning.CellWrite{
		{RowID: planning.EncodeRowID(0, []string{"electronics", "us"}), ColumnKey: "units__q1_24", Value: planning.Number(1)},
	})
	require.NoError(t, err)

	require.NoError(t, sim.Disconnect(ctx))
	require.NoError(t, sim.Connect(ctx, planning.Credentials{}))
	assert.Equal(t, before, singleRow(t, sim, simulator.ModuleRevenue, "", usElectronics))
}

func TestSimulator_ConcurrentReadsAndWrites(t *testing.T) {
	// GIVEN: Writers updating units and price together
	// WHEN: Readers build tables at the same time
	// THEN: No reader ever sees gross revenue that disagrees with its inputs
	sim := newSimulator(t)
	ctx := context.Background()
	row := planning.EncodeRowID(0, []string{"electronics", "us"})

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := sim.WriteCells(ctx, ws, simulator.ModuleRevenue, "", []planning.CellWrite{
					{RowID: row, ColumnKey: "units__q1_24", Value: planning.Number(float64(w*100 + i))},
					{RowID: row, ColumnKey: "price__q1_24", Value: planning.Number(float64(i + 1))},
				})
				assert.NoError(t, err)
			}
		}(w)
	}

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				req := request(usElectronics)
				resp, err := sim.ModuleData(ctx, ws, simulator.ModuleRevenue, req)
				if !assert.NoError(t, err) || !assert.Len(t, resp.Rows, 1) {
					return
				}
				got := resp.Rows[0]
				units, _ := cellFloat(got, "units__q1_24")
				price, _ := cellFloat(got, "price__q1_24")
				gross, _ := cellFloat(got, "gross_rev__q1_24")
				assert.Equal(t, planning.Round2(units*price), gross)
			}
		}()
	}
	wg.Wait()
}

func cellFloat(row planning.DataRow, key string) (float64, bool) {
	v, ok := row.Get(key)
	if !ok {
		return 0, false
	}
	return v.Float()
}

// =============================================================================
// RAND
// =============================================================================

func TestRand_Deterministic(t *testing.T) {
	a, b := simulator.NewRand(42), simulator.NewRand(42)
	for i := 0; i < 100; i++ {
		x := a.Next()
		assert.Equal(t, x, b.Next())
		assert.GreaterOrEqual(t, x, 0.0)
		assert.Less(t, x, 1.0)
	}
}

func TestRand_DegenerateSeeds(t *testing.T) {
	// A zero state would stick at zero forever.
	zero := simulator.NewRand(0)
	assert.NotEqual(t, zero.Next(), zero.Next())

	assert.Equal(t, simulator.NewRand(2147483647).Next(), simulator.NewRand(0).Next())
	assert.Equal(t, simulator.NewRand(-1).Next(), simulator.NewRand(2147483646).Next())
}

func TestFormulas(t *testing.T) {
	derived := func(fs simulator.FormulaSet, in simulator.Inputs) map[string]float64 {
		out := map[string]float64{}
		for _, d := range fs.Compute(in) {
			out[d.LineItemID] = d.Value
		}
		return out
	}

	assert.Equal(t, map[string]float64{"gross_rev": 500, "net_rev": 480},
		derived(simulator.RevenueFormulas{}, simulator.Inputs{"units": 20, "price": 25, "discounts": 20}))
	assert.Equal(t, map[string]float64{"variance": 0, "var_pct": 0},
		derived(simulator.ExpenseFormulas{}, simulator.Inputs{}))
	assert.Equal(t, map[string]float64{"gross_profit": 60, "ebitda": 40, "net_income": 30},
		derived(simulator.PnLFormulas{NetMargin: simulator.NetIncomeMargin}, simulator.Inputs{"revenue": 100, "cogs": 40, "opex": 20}))
}

func TestRecalculate_ClampsOutOfRange(t *testing.T) {
	// GIVEN: Inputs whose product overflows the stored range
	// WHEN: Recalculating the revenue module
	// THEN: The derived cells are stored as 0 and counted
	schema := simulator.Schema()
	mod, ok := schema.Module(simulator.ModuleRevenue)
	require.True(t, ok)
	cells := store.NewMemory()
	ids := []string{"electronics", "us"}
	cells.PutNumber(planning.NewCellKey(mod.ID, "actual", ids, "units", "q1_24"), 1e300)
	cells.PutNumber(planning.NewCellKey(mod.ID, "actual", ids, "price", "q1_24"), 1e300)

	n := simulator.Recalculate(cells, mod, "actual", simulator.RevenueFormulas{}, simulator.Catalog())

	assert.Equal(t, 2, n)
	gross, ok := cells.Number(planning.NewCellKey(mod.ID, "actual", ids, "gross_rev", "q1_24"))
	require.True(t, ok)
	assert.Equal(t, 0.0, gross)
	net, _ := cells.Number(planning.NewCellKey(mod.ID, "actual", ids, "net_rev", "q1_24"))
	assert.Equal(t, 0.0, net)
}
