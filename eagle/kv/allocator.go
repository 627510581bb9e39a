// Package kv provides the concrete PagedKvAllocator implementation: a
// flat slot free-list with a backup/restore undo log, generalizing a
// block-level free-list prefix-caching allocator down to individual
// cache-slot ids with no content hashing, since a draft tree's
// candidate slots are never reused across requests the way a prefix
// block is.
package kv

import (
	"fmt"
	"sync"

	"github.com/specdecode/eagleworker/eagle"
)

// Allocator is a flat [0, capacity) slot pool. Free slots are kept on a
// stack (LIFO return discipline — the most recently freed slot is
// handed out first, which keeps hot slots cache-resident). Every
// allocation is appended to an undo log; BackupState/RestoreState slice
// that log to bulk-release everything allocated since a checkpoint.
type Allocator struct {
	mu         sync.Mutex
	capacity   int64
	free       []int64
	used       map[int64]bool
	allocLog   []int64
	generation int64
}

// NewAllocator creates an Allocator over capacity slots, all initially free.
func NewAllocator(capacity int64) *Allocator {
	free := make([]int64, capacity)
	for i := int64(0); i < capacity; i++ {
		// Reverse order so slot 0 pops first, matching the natural
		// expectation that low slot ids are allocated before high ones
		// on a cold start.
		free[i] = capacity - 1 - i
	}
	return &Allocator{
		capacity: capacity,
		free:     free,
		used:     make(map[int64]bool, capacity),
	}
}

// AllocTokenSlots implements eagle.PagedKvAllocator.
func (a *Allocator) AllocTokenSlots(n int64, backup bool) ([]int64, eagle.AllocatorState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var state eagle.AllocatorState
	if backup {
		state = a.backupLocked()
	}

	if n > int64(len(a.free)) {
		return nil, state, fmt.Errorf("kv allocator exhausted: need %d slots, have %d free", n, len(a.free))
	}

	slots := make([]int64, n)
	for i := int64(0); i < n; i++ {
		slot := a.popFreeLocked()
		slots[i] = slot
		a.allocLog = append(a.allocLog, slot)
	}
	return slots, state, nil
}

// AllocPagedTokenSlotsExtend implements eagle.PagedKvAllocator. The
// page-aware layout math (prefix/extend lengths, last_loc) is already
// computed by DraftCacheLayout; the allocator's own job is narrower:
// hand out n fresh slots from the free pool. lastLoc is accepted for
// interface symmetry with the original worker's allocator call but is
// not otherwise consulted here — any last-page continuation bookkeeping
// belongs to the request-to-token table, not the slot pool.
func (a *Allocator) AllocPagedTokenSlotsExtend(prefixLens, seqLens, lastLoc []int64, n int64, backup bool) ([]int64, eagle.AllocatorState, error) {
	if len(prefixLens) != len(seqLens) {
		return nil, eagle.AllocatorState{}, fmt.Errorf("%w: prefixLens/seqLens length mismatch (%d vs %d)", eagle.ErrInvariant, len(prefixLens), len(seqLens))
	}
	return a.AllocTokenSlots(n, backup)
}

// RestoreState implements eagle.PagedKvAllocator: releases everything
// allocated since the matching BackupState call, in reverse order.
func (a *Allocator) RestoreState(state eagle.AllocatorState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	mark := state.Mark()
	if mark < 0 || mark > int64(len(a.allocLog)) {
		return
	}
	for i := int64(len(a.allocLog)) - 1; i >= mark; i-- {
		a.freeLocked(a.allocLog[i])
	}
	a.allocLog = a.allocLog[:mark]
}

// Free implements eagle.PagedKvAllocator: releases slots independent of
// any backup/restore bookkeeping (used for the verifier's per-step
// bulk reclaim of rejected branches).
func (a *Allocator) Free(slots []int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range slots {
		a.freeLocked(s)
	}
}

// BackupState implements eagle.PagedKvAllocator.
func (a *Allocator) BackupState() eagle.AllocatorState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.backupLocked()
}

func (a *Allocator) backupLocked() eagle.AllocatorState {
	a.generation++
	return eagle.NewAllocatorState(a.generation, int64(len(a.allocLog)))
}

// TotalCapacity implements eagle.PagedKvAllocator.
func (a *Allocator) TotalCapacity() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capacity
}

// UsedSlots implements eagle.PagedKvAllocator.
func (a *Allocator) UsedSlots() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int64(len(a.used))
}

func (a *Allocator) popFreeLocked() int64 {
	n := len(a.free)
	slot := a.free[n-1]
	a.free = a.free[:n-1]
	a.used[slot] = true
	return slot
}

func (a *Allocator) freeLocked(slot int64) {
	if !a.used[slot] {
		return
	}
	delete(a.used, slot)
	a.free = append(a.free, slot)
}
