package planning

import (
	"math"
	"strings"
)

// =============================================================================
// WRITE PATH - Route (rowId, columnKey) back to a cell key
// =============================================================================

// ResolvedWrite is a validated write ready to be stored.
type ResolvedWrite struct {
	Key      CellKey
	LineItem LineItem
	Value    Value
}

// SplitColumnKey splits a value column key into line item id and time period id.
func SplitColumnKey(columnKey string) (lineItemID, timePeriodID string) {
	lineItemID, timePeriodID, _ = strings.Cut(columnKey, ColumnKeySeparator)
	return lineItemID, timePeriodID
}

// MaxCellMagnitude bounds stored numbers so derived line items stay finite.
const MaxCellMagnitude = 1e15

// ResolveWrite validates a write against the module schema and the catalog
// items of its axes.
//
// Numeric values are coerced to float64; a failed coercion, a non-finite
// number or one beyond MaxCellMagnitude is an error.
func ResolveWrite(mod Module, cat Catalog, versionID string, w CellWrite) (ResolvedWrite, error) {
	const op = "write cell"
	lineItemID, timePeriodID := SplitColumnKey(w.ColumnKey)

	li, ok := mod.LineItem(lineItemID)
	if !ok {
		return ResolvedWrite{}, UnknownEntity(op, "line item", lineItemID)
	}
	if !li.Editable {
		return ResolvedWrite{}, &Error{
			Kind:    KindNotEditable,
			Op:      op,
			Message: "line item " + li.Name + " (" + li.ID + ") is not editable",
		}
	}

	_, ids, err := DecodeRowID(w.RowID)
	if err != nil {
		return ResolvedWrite{}, err
	}
	axes := mod.RowAxes()
	if len(ids) != len(axes) {
		return ResolvedWrite{}, Malformed(op, "row id %q has %d items, module %s has %d row axes",
			w.RowID, len(ids), mod.ID, len(axes))
	}
	for i, axis := range axes {
		if !containsItem(cat.ItemsOf(axis), ids[i]) {
			return ResolvedWrite{}, Malformed(op, "row id %q: unknown %s item %q", w.RowID, axis, ids[i])
		}
	}

	switch {
	case !li.Format.IsNumeric() || !mod.HasTimeAxis():
		if timePeriodID != NoTimePeriod {
			return ResolvedWrite{}, Malformed(op, "column %q: line item %s is not time-pivoted", w.ColumnKey, li.ID)
		}
	default:
		if !containsItem(cat.ItemsOf(TimeDimensionID), timePeriodID) {
			return ResolvedWrite{}, Malformed(op, "column %q: unknown time period %q", w.ColumnKey, timePeriodID)
		}
	}

	value := Text(w.Value.String())
	if li.Format.IsNumeric() {
		f, ok := w.Value.Float()
		if !ok {
			return ResolvedWrite{}, Invalid(op, "value %q for line item %s is not a number", w.Value.String(), li.ID)
		}
		if math.Abs(f) > MaxCellMagnitude {
			return ResolvedWrite{}, Invalid(op, "value %q for line item %s is out of range", w.Value.String(), li.ID)
		}
		value = Number(f)
	}

	return ResolvedWrite{
		Key:      NewCellKey(mod.ID, versionID, ids, li.ID, timePeriodID),
		LineItem: li,
		Value:    value,
	}, nil
}

// ApplyWrites stores every valid write and returns one message per failed
// write. It never stops early.
func ApplyWrites(cells CellStore, mod Module, cat Catalog, versionID string, writes []CellWrite) []string {
	var errs []string
	for _, w := range writes {
		rw, err := ResolveWrite(mod, cat, versionID, w)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if f, ok := rw.Value.Float(); ok && rw.LineItem.Format.IsNumeric() {
			cells.PutNumber(rw.Key, f)
		} else {
			cells.PutText(rw.Key, rw.Value.String())
		}
	}
	return errs
}

func containsItem(items []DimensionItem, id string) bool {
	for _, item := range items {
		if item.ID == id {
			return true
		}
	}
	return false
}
