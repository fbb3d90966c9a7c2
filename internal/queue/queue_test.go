package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueParallel_FIFO(t *testing.T) {
	m := New()
	m.EnqueueParallel(Entry{User: "alice"})
	m.EnqueueParallel(Entry{User: "bob"})

	first, ok := m.DequeueParallel()
	require.True(t, ok)
	assert.Equal(t, "alice", first.User)

	second, ok := m.DequeueParallel()
	require.True(t, ok)
	assert.Equal(t, "bob", second.User)

	_, ok = m.DequeueParallel()
	assert.False(t, ok)
}

func TestDequeueParallel_DiscardsStaleEntries(t *testing.T) {
	m := New()
	m.parallelQueue = []Entry{
		{User: "stale", EnqueuedAt: time.Now().Add(-200 * time.Second)},
		{User: "fresh", EnqueuedAt: time.Now()},
	}

	entry, ok := m.DequeueParallel()
	require.True(t, ok)
	assert.Equal(t, "fresh", entry.User)
}

func TestDequeueSlot_UsesShorterTTL(t *testing.T) {
	m := New()
	m.slotQueue = []Entry{
		{User: "stale", EnqueuedAt: time.Now().Add(-90 * time.Second)},
		{User: "fresh", EnqueuedAt: time.Now()},
	}

	entry, ok := m.DequeueSlot()
	require.True(t, ok)
	assert.Equal(t, "fresh", entry.User)
}

func TestPeekSlot_DoesNotRemoveEntry(t *testing.T) {
	m := New()
	m.EnqueueSlot(Entry{User: "alice"})

	_, ok := m.PeekSlot()
	require.True(t, ok)
	assert.Equal(t, 1, m.SlotLen())
}

func TestPeekSlot_DiscardsStaleHeadThenReturnsNext(t *testing.T) {
	m := New()
	m.slotQueue = []Entry{
		{User: "stale", EnqueuedAt: time.Now().Add(-90 * time.Second)},
		{User: "fresh", EnqueuedAt: time.Now()},
	}

	head, ok := m.PeekSlot()
	require.True(t, ok)
	assert.Equal(t, "fresh", head.User)
	assert.Equal(t, 1, m.SlotLen())
}

func TestPopSlotHead_RemovesEntry(t *testing.T) {
	m := New()
	m.EnqueueSlot(Entry{User: "alice"})
	m.EnqueueSlot(Entry{User: "bob"})

	head, ok := m.PopSlotHead()
	require.True(t, ok)
	assert.Equal(t, "alice", head.User)
	assert.Equal(t, 1, m.SlotLen())
}

func TestRemoveUser_ScrubsBothQueues(t *testing.T) {
	m := New()
	m.EnqueueParallel(Entry{User: "alice"})
	m.EnqueueParallel(Entry{User: "bob"})
	m.EnqueueSlot(Entry{User: "alice"})
	m.EnqueueSlot(Entry{User: "carol"})

	m.RemoveUser("alice")

	assert.Equal(t, 1, m.ParallelLen())
	assert.Equal(t, 1, m.SlotLen())
}

func TestEmptyQueue_DequeueReturnsFalse(t *testing.T) {
	m := New()
	_, ok := m.DequeueParallel()
	assert.False(t, ok)
	_, ok = m.DequeueSlot()
	assert.False(t, ok)
}
