package planning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// =============================================================================
// VALUE - Scalar cell value (null, number or text)
// =============================================================================

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueNumber
	ValueText
)

// Value is a cell value. The zero Value is null.
type Value struct {
	kind ValueKind
	num  float64
	text string
}

func Null() Value               { return Value{} }
func Number(f float64) Value    { return Value{kind: ValueNumber, num: f} }
func Text(s string) Value       { return Value{kind: ValueText, text: s} }
func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == ValueNull }

// String stringifies the value for text filters. Null stringifies to "".
func (v Value) String() string {
	switch v.kind {
	case ValueNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case ValueText:
		return v.text
	default:
		return ""
	}
}

// Float coerces the value to a finite number. Text is parsed; null, NaN and
// infinities never coerce.
func (v Value) Float() (float64, bool) {
	var f float64
	switch v.kind {
	case ValueNumber:
		f = v.num
	case ValueText:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// MarshalJSON encodes null, a JSON number or a JSON string.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.num)
	case ValueText:
		return json.Marshal(v.text)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, a number or a string.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = Null()
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("cell value must be a number, string or null: %w", err)
		}
		*v = Number(f)
	}
	return nil
}

// =============================================================================
// DATA ROW - Ordered cells keyed by column key
// =============================================================================

// Cell is one (column key, value) pair of a row.
type Cell struct {
	Key   string
	Value Value
}

// DataRow is one table row. Cells keep column order; JSON encodes them as an
// object whose keys appear in that order.
type DataRow struct {
	ID    string
	Cells []Cell
}

// Get returns the value for a column key.
func (r DataRow) Get(key string) (Value, bool) {
	for _, c := range r.Cells {
		if c.Key == key {
			return c.Value, true
		}
	}
	return Value{}, false
}

// Set replaces or appends a cell.
func (r *DataRow) Set(key string, v Value) {
	for i := range r.Cells {
		if r.Cells[i].Key == key {
			r.Cells[i].Value = v
			return
		}
	}
	r.Cells = append(r.Cells, Cell{Key: key, Value: v})
}

func (r DataRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"id":`)
	id, err := json.Marshal(r.ID)
	if err != nil {
		return nil, err
	}
	buf.Write(id)
	buf.WriteString(`,"cells":{`)
	for i, c := range r.Cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		val, err := c.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}
