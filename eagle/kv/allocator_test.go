package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAllocator_StartsWithFullCapacityFree(t *testing.T) {
	a := NewAllocator(8)
	assert.Equal(t, int64(8), a.TotalCapacity())
	assert.Equal(t, int64(0), a.UsedSlots())
}

func TestAllocTokenSlots_AllocatesDistinctSlots(t *testing.T) {
	a := NewAllocator(4)
	slots, _, err := a.AllocTokenSlots(3, false)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, int64(3), a.UsedSlots())

	seen := make(map[int64]bool)
	for _, s := range slots {
		assert.False(t, seen[s], "slot %d allocated twice", s)
		seen[s] = true
	}
}

func TestAllocTokenSlots_ExhaustionReturnsError(t *testing.T) {
	a := NewAllocator(2)
	_, _, err := a.AllocTokenSlots(3, false)
	assert.Error(t, err)
}

func TestAllocTokenSlots_BackupThenRestoreReleasesSlots(t *testing.T) {
	a := NewAllocator(4)
	_, _, err := a.AllocTokenSlots(1, false)
	require.NoError(t, err)

	_, backup, err := a.AllocTokenSlots(0, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.UsedSlots())

	_, _, err = a.AllocTokenSlots(2, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), a.UsedSlots())

	a.RestoreState(backup)
	assert.Equal(t, int64(1), a.UsedSlots(), "restoring releases the 2 slots allocated after the backup")
}

func TestFree_ReleasesSlotsIndependentOfBackup(t *testing.T) {
	a := NewAllocator(4)
	slots, _, err := a.AllocTokenSlots(2, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.UsedSlots())

	a.Free(slots)
	assert.Equal(t, int64(0), a.UsedSlots())
}

func TestFree_DoubleFreeIsNoOp(t *testing.T) {
	a := NewAllocator(4)
	slots, _, err := a.AllocTokenSlots(1, false)
	require.NoError(t, err)
	a.Free(slots)
	a.Free(slots)
	assert.Equal(t, int64(0), a.UsedSlots())
}

func TestAllocPagedTokenSlotsExtend_RejectsLengthMismatch(t *testing.T) {
	a := NewAllocator(4)
	_, _, err := a.AllocPagedTokenSlotsExtend([]int64{0, 0}, []int64{1}, []int64{-1, -1}, 2, false)
	assert.Error(t, err)
}

func TestAllocPagedTokenSlotsExtend_AllocatesRequestedCount(t *testing.T) {
	a := NewAllocator(4)
	slots, _, err := a.AllocPagedTokenSlotsExtend([]int64{0, 0}, []int64{1, 1}, []int64{-1, -1}, 2, false)
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}
