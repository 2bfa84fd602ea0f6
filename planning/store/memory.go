// Package store provides CellStore implementations and scope locking.
package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/warp/planning-engine/planning"
)

// =============================================================================
// MEMORY STORE - In-memory cell store
// =============================================================================

// Memory keeps numeric and text cells in separate maps keyed by the
// structured cell key. The mutex keeps the maps themselves safe; scope
// consistency across a recalculation pass is the job of ScopeLocks.
type Memory struct {
	mu      sync.RWMutex
	numbers map[planning.CellKey]float64
	texts   map[planning.CellKey]string
}

var _ planning.CellStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		numbers: make(map[planning.CellKey]float64),
		texts:   make(map[planning.CellKey]string),
	}
}

func (m *Memory) Number(key planning.CellKey) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.numbers[key]
	return v, ok
}

func (m *Memory) Text(key planning.CellKey) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.texts[key]
	return v, ok
}

func (m *Memory) PutNumber(key planning.CellKey, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.numbers[key] = v
}

func (m *Memory) PutText(key planning.CellKey, v string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts[key] = v
}

// DistinctText scans the text namespace. O(text cells).
func (m *Memory) DistinctText(moduleID, versionID, lineItemID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	for k, v := range m.texts {
		if k.ModuleID != moduleID || k.VersionID != versionID || k.LineItemID != lineItemID {
			continue
		}
		if strings.TrimSpace(v) != "" {
			seen[v] = true
		}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// Len returns the number of stored cells in both namespaces.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.numbers) + len(m.texts)
}
