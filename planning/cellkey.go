package planning

import (
	"strconv"
	"strings"
)

// =============================================================================
// CELL KEY - Structured 5-tuple cell address
// =============================================================================

// NoTimePeriod is the time-period slot used by text line items and by
// modules without a time axis.
const NoTimePeriod = ""

// CellKey addresses one cell. It is comparable and used directly as a map key.
type CellKey struct {
	ModuleID     string
	VersionID    string
	Row          RowKey
	LineItemID   string
	TimePeriodID string
}

// RowKey is the length-prefixed serialization of a row's dimension-item ids,
// in the module's row-axis order. Length prefixes make it injective for any
// item id content.
type RowKey string

// NewRowKey encodes an ordered dimension-item tuple.
func NewRowKey(itemIDs []string) RowKey {
	var b strings.Builder
	for _, id := range itemIDs {
		b.WriteString(strconv.Itoa(len(id)))
		b.WriteByte(':')
		b.WriteString(id)
	}
	return RowKey(b.String())
}

// IDs decodes the tuple. A key not produced by NewRowKey yields ok=false.
func (k RowKey) IDs() ([]string, bool) {
	s := string(k)
	ids := []string{}
	for len(s) > 0 {
		colon := strings.IndexByte(s, ':')
		if colon <= 0 {
			return nil, false
		}
		n, err := strconv.Atoi(s[:colon])
		if err != nil || n < 0 || colon+1+n > len(s) {
			return nil, false
		}
		ids = append(ids, s[colon+1:colon+1+n])
		s = s[colon+1+n:]
	}
	return ids, true
}

// NewCellKey builds a key from its parts.
func NewCellKey(moduleID, versionID string, rowItemIDs []string, lineItemID, timePeriodID string) CellKey {
	return CellKey{
		ModuleID:     moduleID,
		VersionID:    versionID,
		Row:          NewRowKey(rowItemIDs),
		LineItemID:   lineItemID,
		TimePeriodID: timePeriodID,
	}
}

// =============================================================================
// CELL STORE - Keyed storage with separate numeric and text namespaces
// =============================================================================

// CellReader reads cells. A lookup always knows which namespace to consult;
// values are never coerced between namespaces.
type CellReader interface {
	Number(key CellKey) (float64, bool)
	Text(key CellKey) (string, bool)
}

// CellStore adds writes and a distinct-text scan to CellReader.
type CellStore interface {
	CellReader
	PutNumber(key CellKey, v float64)
	PutText(key CellKey, v string)

	// DistinctText returns the sorted distinct non-blank text values of a
	// line item within a module/version.
	DistinctText(moduleID, versionID, lineItemID string) []string
}

// ReadCell resolves a cell in the namespace matching the line item format.
// Absence yields a null Value.
func ReadCell(cells CellReader, key CellKey, format Format) Value {
	if format.IsNumeric() {
		if v, ok := cells.Number(key); ok {
			return Number(v)
		}
		return Null()
	}
	if v, ok := cells.Text(key); ok {
		return Text(v)
	}
	return Null()
}
