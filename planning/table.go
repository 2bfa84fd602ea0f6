/*
table.go - Pivot/table builder

PURPOSE:
  Turns a module, its dimension catalog and a cell store into the uniform
  columns + rows contract.

ALGORITHM:
  1. Row axes = module dimensions minus "time"
  2. Candidate items per axis = hierarchical dimension filter
  3. Rows = cartesian product of candidates, first axis outermost
     (zero row axes => exactly one empty row)
  4. Columns = one dimension column per row axis, then text line items
     (never time-pivoted), then numeric line items x time periods
  5. Cells = item display names for dimension columns, cell-store reads for
     value columns (absence => null)
  6. Text and numeric filters run on the assembled rows
  7. Paginate; total = filtered count

SEE ALSO:
  - filter.go: Filter passes
  - rowid.go: Row id encoding
  - write.go: Inverse routing of (rowId, columnKey)
*/
package planning

import "fmt"

// ColumnKeySeparator joins a line item id and a time period id in a value column key.
const ColumnKeySeparator = "__"

// =============================================================================
// CATALOG - Dimensions and their items
// =============================================================================

// Catalog is the immutable dimension reference data of a workspace.
type Catalog struct {
	Dimensions []Dimension
	Items      map[string][]DimensionItem
}

// Dimension looks up a dimension by id.
func (c Catalog) Dimension(id string) (Dimension, bool) {
	for _, d := range c.Dimensions {
		if d.ID == id {
			return d, true
		}
	}
	return Dimension{}, false
}

// ItemsOf returns every item of a dimension.
func (c Catalog) ItemsOf(dimensionID string) []DimensionItem {
	return c.Items[dimensionID]
}

// Candidates returns the filtered items of a dimension.
func (c Catalog) Candidates(dimensionID string, filters DimensionFilters) ([]DimensionItem, error) {
	dim, ok := c.Dimension(dimensionID)
	if !ok {
		return nil, UnknownEntity("resolve axis", "dimension", dimensionID)
	}
	return CandidateItems(dim, c.ItemsOf(dimensionID), filters), nil
}

// =============================================================================
// TABLE
// =============================================================================

// Table is the fully assembled, filtered, unpaginated result.
type Table struct {
	Columns []ColumnDef
	Rows    []DataRow
}

// ValueColumnKey returns the column key of a value column.
func ValueColumnKey(lineItemID, timePeriodID string) string {
	if timePeriodID == NoTimePeriod {
		return lineItemID
	}
	return lineItemID + ColumnKeySeparator + timePeriodID
}

// Combinations returns the cartesian product of the lists, first list
// outermost. No lists yields a single empty combination; any empty list
// yields none.
func Combinations(lists [][]DimensionItem) [][]DimensionItem {
	out := [][]DimensionItem{{}}
	for _, list := range lists {
		next := make([][]DimensionItem, 0, len(out)*len(list))
		for _, prefix := range out {
			for _, item := range list {
				combo := make([]DimensionItem, len(prefix), len(prefix)+1)
				copy(combo, prefix)
				next = append(next, append(combo, item))
			}
		}
		out = next
	}
	return out
}

// ItemIDs returns the ids of items, in order.
func ItemIDs(items []DimensionItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

// BuildTable assembles and filters the module table. Pagination is left to Paginate.
func BuildTable(mod Module, cat Catalog, cells CellReader, req ModuleDataRequest) (Table, error) {
	version := req.VersionOrDefault()
	axes := mod.RowAxes()
	hasTime := mod.HasTimeAxis()

	timeItems := []DimensionItem{{ID: NoTimePeriod}}
	if hasTime {
		items, err := cat.Candidates(TimeDimensionID, req.Filters)
		if err != nil {
			return Table{}, err
		}
		timeItems = items
	}

	var textItems, numericItems []LineItem
	for _, li := range mod.LineItems {
		switch {
		case !li.Format.IsNumeric():
			textItems = append(textItems, li)
		case req.LineItemID == "" || li.ID == req.LineItemID:
			numericItems = append(numericItems, li)
		}
	}

	axisDims := make([]Dimension, len(axes))
	axisItems := make([][]DimensionItem, len(axes))
	for i, axis := range axes {
		dim, ok := cat.Dimension(axis)
		if !ok {
			return Table{}, UnknownEntity("build table", "dimension", axis)
		}
		axisDims[i] = dim
		axisItems[i] = CandidateItems(dim, cat.ItemsOf(axis), req.Filters)
	}

	columns := buildColumns(axisDims, textItems, numericItems, timeItems, hasTime)

	combos := Combinations(axisItems)
	rows := make([]DataRow, 0, len(combos))
	for idx, combo := range combos {
		ids := ItemIDs(combo)
		row := DataRow{
			ID:    EncodeRowID(idx, ids),
			Cells: make([]Cell, 0, len(columns)),
		}
		for i, item := range combo {
			row.Cells = append(row.Cells, Cell{Key: axes[i], Value: Text(item.Name)})
		}
		for _, li := range textItems {
			key := NewCellKey(mod.ID, version, ids, li.ID, NoTimePeriod)
			row.Cells = append(row.Cells, Cell{Key: li.ID, Value: ReadCell(cells, key, li.Format)})
		}
		for _, li := range numericItems {
			for _, tp := range timeItems {
				key := NewCellKey(mod.ID, version, ids, li.ID, tp.ID)
				row.Cells = append(row.Cells, Cell{
					Key:   ValueColumnKey(li.ID, tp.ID),
					Value: ReadCell(cells, key, li.Format),
				})
			}
		}
		rows = append(rows, row)
	}

	rows = ApplyTextFilters(rows, req.LineItemFilters)
	rows = ApplyNumericFilters(rows, columns, req.NumericFilters)
	return Table{Columns: columns, Rows: rows}, nil
}

func buildColumns(axes []Dimension, textItems, numericItems []LineItem, timeItems []DimensionItem, hasTime bool) []ColumnDef {
	columns := make([]ColumnDef, 0, len(axes)+len(textItems)+len(numericItems)*len(timeItems))
	for _, dim := range axes {
		columns = append(columns, ColumnDef{Key: dim.ID, Label: dim.Name, Type: ColumnDimension})
	}
	for _, li := range textItems {
		columns = append(columns, ColumnDef{
			Key:        li.ID,
			Label:      li.Name,
			Type:       ColumnValue,
			Format:     FormatText,
			Editable:   boolPtr(li.Editable),
			LineItemID: li.ID,
		})
	}
	for _, li := range numericItems {
		for _, tp := range timeItems {
			col := ColumnDef{
				Key:        ValueColumnKey(li.ID, tp.ID),
				Label:      li.Name,
				Type:       ColumnValue,
				Format:     li.Format,
				Editable:   boolPtr(li.Editable),
				LineItemID: li.ID,
			}
			if hasTime {
				col.Label = fmt.Sprintf("%s - %s", li.Name, tp.Name)
				col.TimePeriodID = tp.ID
			}
			columns = append(columns, col)
		}
	}
	return columns
}

// Paginate slices a table into one response page. A page past the end is
// empty but still reports the true total.
func Paginate(t Table, page, pageSize int) ModuleDataResponse {
	total := len(t.Rows)
	start := total
	if page-1 <= total/pageSize {
		start = (page - 1) * pageSize
	}
	end := total
	if pageSize < total-start {
		end = start + pageSize
	}
	rows := make([]DataRow, end-start)
	copy(rows, t.Rows[start:end])
	return ModuleDataResponse{
		Columns:   t.Columns,
		Rows:      rows,
		Page:      page,
		PageSize:  pageSize,
		TotalRows: total,
	}
}

func boolPtr(b bool) *bool { return &b }
