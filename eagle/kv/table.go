package kv

import "sync"

// Table is a flat per-request pool-index-to-slot mapping, generalizing
// a per-request block table (tracking request -> []block) down to a
// per-position slot id, which is what DraftCacheLayout's page-aware
// regimes need to resolve last_loc.
type Table struct {
	mu   sync.Mutex
	rows map[int][]int64 // poolIndex -> slot id per position
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{rows: make(map[int][]int64)}
}

// SlotAt implements eagle.ReqToTokenTable.
func (t *Table) SlotAt(poolIndex int, position int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	row := t.rows[poolIndex]
	if position < 0 || int(position) >= len(row) {
		return -1
	}
	return row[position]
}

// Append records that poolIndex's next position was assigned slot.
func (t *Table) Append(poolIndex int, slot int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[poolIndex] = append(t.rows[poolIndex], slot)
}

// SetRow overwrites poolIndex's full slot history, used after a draft
// step commits a new set of accepted positions in bulk.
func (t *Table) SetRow(poolIndex int, slots []int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[poolIndex] = append([]int64(nil), slots...)
}
