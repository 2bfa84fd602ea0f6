package anaplan

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/warp/planning-engine/planning"
)

// =============================================================================
// EXPORT NORMALIZER - Tabular CSV export -> planning.Table
// =============================================================================

// normalizeExport parses concatenated export chunks. The first record is the
// header. Each header maps, by exact name, to a line item of the module (value
// column) or a schema dimension (dimension column); anything else becomes a
// synthetic dimension column "col_<i>".
//
// Numeric value cells that fail to parse keep their raw text.
func normalizeExport(text string, mod planning.Module, schema planning.Schema) (planning.Table, error) {
	records, err := readRecords(text)
	if err != nil {
		return planning.Table{}, planning.Upstream("normalize export", err, "malformed export for module %s", mod.ID)
	}
	if len(records) == 0 {
		return planning.Table{Columns: []planning.ColumnDef{}, Rows: []planning.DataRow{}}, nil
	}

	columns := mapHeaders(records[0], mod, schema)
	rows := make([]planning.DataRow, 0, len(records)-1)
	for idx, rec := range records[1:] {
		row := planning.DataRow{Cells: make([]planning.Cell, 0, len(columns))}
		var dimValues []string
		for i, col := range columns {
			if i >= len(rec) {
				row.Cells = append(row.Cells, planning.Cell{Key: col.Key, Value: planning.Null()})
				continue
			}
			raw := strings.TrimSpace(rec[i])
			value := planning.Text(raw)
			if col.IsNumericValue() {
				if f, err := strconv.ParseFloat(raw, 64); err == nil {
					value = planning.Number(f)
				}
			}
			if col.Type == planning.ColumnDimension {
				dimValues = append(dimValues, raw)
			}
			row.Cells = append(row.Cells, planning.Cell{Key: col.Key, Value: value})
		}
		row.ID = planning.EncodeRowID(idx, dimValues)
		rows = append(rows, row)
	}
	return planning.Table{Columns: columns, Rows: rows}, nil
}

// selectLineItem keeps the dimension and text columns plus the numeric value
// columns of one line item. An empty id keeps every column.
func selectLineItem(table planning.Table, lineItemID string) planning.Table {
	if lineItemID == "" {
		return table
	}
	keep := make([]bool, len(table.Columns))
	columns := make([]planning.ColumnDef, 0, len(table.Columns))
	for i, col := range table.Columns {
		if !col.IsNumericValue() || col.LineItemID == lineItemID {
			keep[i] = true
			columns = append(columns, col)
		}
	}

	rows := make([]planning.DataRow, len(table.Rows))
	for r, row := range table.Rows {
		cells := make([]planning.Cell, 0, len(columns))
		for i, c := range row.Cells {
			if i < len(keep) && keep[i] {
				cells = append(cells, c)
			}
		}
		rows[r] = planning.DataRow{ID: row.ID, Cells: cells}
	}
	return planning.Table{Columns: columns, Rows: rows}
}

func mapHeaders(header []string, mod planning.Module, schema planning.Schema) []planning.ColumnDef {
	byLineItem := make(map[string]planning.LineItem, len(mod.LineItems))
	for _, li := range mod.LineItems {
		if _, ok := byLineItem[li.Name]; !ok {
			byLineItem[li.Name] = li
		}
	}
	byDimension := make(map[string]planning.Dimension, len(schema.Dimensions))
	for _, d := range schema.Dimensions {
		if _, ok := byDimension[d.Name]; !ok {
			byDimension[d.Name] = d
		}
	}

	columns := make([]planning.ColumnDef, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if li, ok := byLineItem[name]; ok {
			editable := li.Editable
			columns[i] = planning.ColumnDef{
				Key:        li.ID,
				Label:      li.Name,
				Type:       planning.ColumnValue,
				Format:     li.Format,
				Editable:   &editable,
				LineItemID: li.ID,
			}
			continue
		}
		key := "col_" + strconv.Itoa(i)
		if d, ok := byDimension[name]; ok {
			key = d.ID
		}
		columns[i] = planning.ColumnDef{Key: key, Label: name, Type: planning.ColumnDimension}
	}
	return columns
}

// readRecords reads CSV records, skipping blank lines and ragged rows.
func readRecords(text string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		if isBlank(rec) {
			continue
		}
		records = append(records, rec)
	}
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
