package planning

// =============================================================================
// FILTER ENGINE
// =============================================================================
// Three independent passes. Each is a no-op for dimensions or line items it
// does not mention.
//   1. Hierarchical dimension filter  (candidate generation, CandidateItems)
//   2. Line-item text filter          (post assembly, ApplyTextFilters)
//   3. Numeric-operator filter        (post assembly, ApplyNumericFilters)
// =============================================================================

// CandidateItems restricts a dimension's items by the request filters.
//
// An explicit selection for the dimension wins. Otherwise, when the dimension
// has a parent with a non-empty selection, only items whose parent item is
// selected survive. Hierarchies are resolved one level up only.
func CandidateItems(dim Dimension, items []DimensionItem, filters DimensionFilters) []DimensionItem {
	if selected := filters.Selected(dim.ID); len(selected) > 0 {
		set := toSet(selected)
		out := make([]DimensionItem, 0, len(selected))
		for _, item := range items {
			if set[item.ID] {
				out = append(out, item)
			}
		}
		return out
	}
	if dim.ParentDimensionID != "" {
		if parents := filters.Selected(dim.ParentDimensionID); len(parents) > 0 {
			return ChildrenOf(items, parents)
		}
	}
	return items
}

// ChildrenOf keeps items whose parent item id is in parentIDs. An empty
// parentIDs keeps everything.
func ChildrenOf(items []DimensionItem, parentIDs []string) []DimensionItem {
	if len(parentIDs) == 0 {
		return items
	}
	set := toSet(parentIDs)
	out := make([]DimensionItem, 0, len(items))
	for _, item := range items {
		if item.ParentItemID != "" && set[item.ParentItemID] {
			out = append(out, item)
		}
	}
	return out
}

// ApplyTextFilters drops rows whose line item cell is absent, null, or whose
// stringified value is not selected. Empty selections are ignored.
func ApplyTextFilters(rows []DataRow, filters map[string][]string) []DataRow {
	for lineItemID, values := range filters {
		if len(values) == 0 {
			continue
		}
		set := toSet(values)
		kept := rows[:0:0]
		for _, row := range rows {
			v, ok := row.Get(lineItemID)
			if ok && !v.IsNull() && set[v.String()] {
				kept = append(kept, row)
			}
		}
		rows = kept
	}
	return rows
}

// ApplyNumericFilters keeps rows where, for every filter, at least one
// numeric value column of the filter's line item satisfies the operator.
// Filters naming a line item with no numeric column are skipped.
func ApplyNumericFilters(rows []DataRow, columns []ColumnDef, filters []NumericFilter) []DataRow {
	for _, nf := range filters {
		var keys []string
		for _, c := range columns {
			if c.LineItemID == nf.LineItemID && c.IsNumericValue() {
				keys = append(keys, c.Key)
			}
		}
		if len(keys) == 0 {
			continue
		}
		kept := rows[:0:0]
		for _, row := range rows {
			for _, k := range keys {
				v, _ := row.Get(k)
				if nf.Match(v) {
					kept = append(kept, row)
					break
				}
			}
		}
		rows = kept
	}
	return rows
}

// Match evaluates the filter against a value coerced to a number.
// Non-numeric or null values never match. A threshold operator with no
// threshold matches every numeric value; zero and non_zero ignore Value.
func (nf NumericFilter) Match(v Value) bool {
	x, ok := v.Float()
	if !ok {
		return false
	}
	switch nf.Operator {
	case OpZero:
		return x == 0
	case OpNonZero:
		return x != 0
	}
	if nf.Value == nil {
		return true
	}
	low := *nf.Value
	switch nf.Operator {
	case OpGTE:
		return x >= low
	case OpGT:
		return x > low
	case OpLTE:
		return x <= low
	case OpLT:
		return x < low
	case OpBetween:
		high := low
		if nf.ValueHigh != nil {
			high = *nf.ValueHigh
		}
		return low <= x && x <= high
	}
	return true
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
