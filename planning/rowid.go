package planning

import (
	"net/url"
	"strconv"
	"strings"
)

// Row ids have the form "row/<index>/<id>/<id>...", each dimension-item id
// path-escaped so that '/' inside an id cannot split it.
const rowIDPrefix = "row"

// EncodeRowID builds a row id from the row index and its dimension-item ids
// in axis order.
func EncodeRowID(index int, itemIDs []string) string {
	var b strings.Builder
	b.WriteString(rowIDPrefix)
	b.WriteByte('/')
	b.WriteString(strconv.Itoa(index))
	for _, id := range itemIDs {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(id))
	}
	return b.String()
}

// DecodeRowID recovers the index and dimension-item ids of a row id.
func DecodeRowID(rowID string) (int, []string, error) {
	parts := strings.Split(rowID, "/")
	if len(parts) < 2 || parts[0] != rowIDPrefix {
		return 0, nil, Malformed("decode row id", "row id %q is not of the form row/<index>/<items>", rowID)
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil || index < 0 {
		return 0, nil, Malformed("decode row id", "row id %q has an invalid index", rowID)
	}
	ids := make([]string, 0, len(parts)-2)
	for _, p := range parts[2:] {
		id, err := url.PathUnescape(p)
		if err != nil {
			return 0, nil, Malformed("decode row id", "row id %q has an invalid item segment", rowID)
		}
		ids = append(ids, id)
	}
	return index, ids, nil
}
