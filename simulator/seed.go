package simulator

import (
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/warp/planning-engine/planning"
)

// DefaultSeed makes the synthetic dataset reproducible across restarts.
const DefaultSeed = 42

// productWeight scales revenue inputs by product line.
var productWeight = map[string]float64{
	"electronics": 1.5,
	"apparel":     0.8,
	"home":        1.0,
}

// seedNumber draws the raw (pre-version) value of a numeric input.
// ok=false means the line item is not seeded.
func seedNumber(kind ModuleKind, rowIDs []string, lineItemID string, r *Rand) (float64, bool) {
	switch kind {
	case KindRevenue:
		w := 1.0
		if len(rowIDs) > 0 {
			if pw, ok := productWeight[rowIDs[0]]; ok {
				w = pw
			}
		}
		switch lineItemID {
		case "units":
			return math.Round(500 + r.Next()*2000*w), true
		case "price":
			return math.Round((20+r.Next()*80*w)*100) / 100, true
		case "discounts":
			return 0, true
		}
	case KindExpense:
		switch lineItemID {
		case "budget_amt":
			return math.Round(10000 + r.Next()*90000), true
		case "actual_amt":
			return math.Round(8000 + r.Next()*85000), true
		}
	case KindPnL:
		switch lineItemID {
		case "revenue":
			return math.Round(100000 + r.Next()*500000), true
		case "cogs":
			return math.Round(40000 + r.Next()*200000), true
		case "opex":
			return math.Round(20000 + r.Next()*100000), true
		}
	}
	return 0, false
}

// seedText picks a text value from the line item's pool by a stable hash of
// the row tuple.
func seedText(kind ModuleKind, rowIDs []string, lineItemID string) (string, bool) {
	var pool []string
	switch {
	case kind == KindRevenue && lineItemID == "route":
		pool = routeValues
	case kind == KindRevenue && lineItemID == "manager":
		pool = managerValues
	case kind == KindExpense && lineItemID == "cost_type":
		pool = costTypeValues
	case kind == KindExpense && lineItemID == "manager_exp":
		pool = managerValues
	case kind == KindPnL && lineItemID == "region_label":
		pool = regionLabels
	default:
		return "", false
	}
	idx := xxhash.Sum64String(string(planning.NewRowKey(rowIDs))) % 100
	return pool[idx%uint64(len(pool))], true
}

// seedModule fills the inputs and text attributes of one (module, version),
// then recalculates its derived cells.
func seedModule(cells planning.CellStore, mod planning.Module, versionID string, cat planning.Catalog, r *Rand) {
	kind, ok := KindOf(mod.ID)
	if !ok {
		return
	}
	fs := FormulasFor(kind)
	derived := make(map[string]bool)
	for _, id := range fs.Outputs() {
		derived[id] = true
	}
	mult := versionMultiplier(versionID)
	rows, periods := scopeAxes(mod, cat)

	for _, combo := range rows {
		ids := planning.ItemIDs(combo)
		for _, tp := range periods {
			for _, li := range mod.LineItems {
				if !li.Format.IsNumeric() || derived[li.ID] {
					continue
				}
				v, ok := seedNumber(kind, ids, li.ID, r)
				if !ok {
					continue
				}
				cells.PutNumber(planning.NewCellKey(mod.ID, versionID, ids, li.ID, tp), planning.Round2(v*mult))
			}
		}
	}

	for _, combo := range rows {
		ids := planning.ItemIDs(combo)
		for _, li := range mod.LineItems {
			if li.Format.IsNumeric() {
				continue
			}
			if v, ok := seedText(kind, ids, li.ID); ok {
				cells.PutText(planning.NewCellKey(mod.ID, versionID, ids, li.ID, planning.NoTimePeriod), v)
			}
		}
	}

	Recalculate(cells, mod, versionID, fs, cat)
}

// Seed populates every module and version of the simulator schema.
func Seed(cells planning.CellStore, seed int64) {
	r := NewRand(seed)
	cat := Catalog()
	for _, v := range versions {
		for _, mod := range modules {
			seedModule(cells, mod, v.ID, cat, r)
		}
	}
}
