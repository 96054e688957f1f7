package processing

import (
	"strings"

	"github.com/jjckrbbt/labcatalog/internal/normalize"
)

// HeaderIndex records the resolved column per logical field.
// A field that matched no header is absent and maps to -1.
type HeaderIndex map[Field]int

// Column returns the column index of f, or -1 when absent.
func (h HeaderIndex) Column(f Field) int {
	if idx, ok := h[f]; ok {
		return idx
	}
	return -1
}

// ResolveHeaders maps each logical field to a physical column. Aliases are
// tried in declared priority order and the first alias present in the header
// wins; the match is trimmed and case-insensitive. Two fields may resolve to
// the same column.
func ResolveHeaders(header []any, columns map[Field][]string) HeaderIndex {
	keys := headerKeys(header)
	index := make(HeaderIndex, len(Fields))
	for _, field := range Fields {
		index[field] = -1
		for _, alias := range columns[field] {
			if col := findColumn(keys, alias); col >= 0 {
				index[field] = col
				break
			}
		}
	}
	return index
}

// ResolveColumn finds a single header by exact trimmed, case-insensitive
// match. It returns -1 when name is empty or not present.
func ResolveColumn(header []any, name string) int {
	return findColumn(headerKeys(header), name)
}

func headerKeys(header []any) []string {
	keys := make([]string, len(header))
	for i, cell := range header {
		if s := normalize.StringOrNull(cell); s != nil {
			keys[i] = strings.ToLower(*s)
		}
	}
	return keys
}

func findColumn(keys []string, name string) int {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return -1
	}
	for i, k := range keys {
		if k == want {
			return i
		}
	}
	return -1
}
