package avatar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSlots() []Slot {
	return []Slot{
		{SlotID: "a", BoundVoiceID: "voice-1"},
		{SlotID: "b", BoundVoiceID: ""},
		{SlotID: "c", BoundVoiceID: "voice-stale"},
	}
}

func TestReserve_ExactVoiceMatchPreferred(t *testing.T) {
	m := NewManager()
	m.ReplaceSlots(testSlots())

	enabled := map[string]struct{}{"voice-1": {}}
	slotID, ok := m.Reserve("voice-1", enabled, "alice", "/audio/x.mp3", time.Second)
	require.True(t, ok)
	assert.Equal(t, "a", slotID)
}

func TestReserve_FallsBackToUnboundWhenNoExactMatch(t *testing.T) {
	m := NewManager()
	m.ReplaceSlots(testSlots())

	enabled := map[string]struct{}{"voice-2": {}}
	slotID, ok := m.Reserve("voice-2", enabled, "alice", "/audio/x.mp3", time.Second)
	require.True(t, ok)
	assert.Equal(t, "b", slotID)
}

func TestReserve_StaleVoiceSlotTreatedAsRandom(t *testing.T) {
	m := NewManager()
	m.ReplaceSlots([]Slot{{SlotID: "c", BoundVoiceID: "voice-stale"}})

	enabled := map[string]struct{}{"voice-2": {}}
	slotID, ok := m.Reserve("voice-2", enabled, "alice", "/audio/x.mp3", time.Second)
	require.True(t, ok)
	assert.Equal(t, "c", slotID)
}

func TestReserve_NoFreeSlotReturnsFalse(t *testing.T) {
	m := NewManager()
	m.ReplaceSlots([]Slot{{SlotID: "a", BoundVoiceID: "voice-1"}})

	enabled := map[string]struct{}{"voice-1": {}}
	_, ok := m.Reserve("voice-1", enabled, "alice", "/audio/x.mp3", time.Second)
	require.True(t, ok)

	_, ok = m.Reserve("voice-1", enabled, "bob", "/audio/y.mp3", time.Second)
	assert.False(t, ok)
}

func TestRelease_FreesSlotForReReservation(t *testing.T) {
	m := NewManager()
	m.ReplaceSlots([]Slot{{SlotID: "a", BoundVoiceID: "voice-1"}})

	enabled := map[string]struct{}{"voice-1": {}}
	slotID, _ := m.Reserve("voice-1", enabled, "alice", "/audio/x.mp3", time.Second)

	m.Release(slotID)
	_, ok := m.Reserve("voice-1", enabled, "bob", "/audio/y.mp3", time.Second)
	assert.True(t, ok)
}

func TestRelease_InvokesDrainHandlerOnlyWhenReservationExisted(t *testing.T) {
	m := NewManager()
	m.ReplaceSlots([]Slot{{SlotID: "a"}})

	drained := 0
	m.SetDrainHandler(func() { drained++ })

	m.Release("a") // no reservation existed yet
	assert.Equal(t, 0, drained)

	enabled := map[string]struct{}{}
	slotID, _ := m.Reserve("", enabled, "alice", "/audio/x.mp3", time.Second)
	m.Release(slotID)
	assert.Equal(t, 1, drained)
}

func TestReleaseAllForUser_ReleasesOnlyThatUsersSlots(t *testing.T) {
	m := NewManager()
	m.ReplaceSlots([]Slot{{SlotID: "a"}, {SlotID: "b"}})

	enabled := map[string]struct{}{}
	m.Reserve("", enabled, "alice", "/a.mp3", time.Second)
	m.Reserve("", enabled, "bob", "/b.mp3", time.Second)

	released := m.ReleaseAllForUser("alice")
	assert.Len(t, released, 1)
	assert.Len(t, m.Reservations(), 1)
}

func TestReplaceSlots_IncrementsGenerationAndClearsReservations(t *testing.T) {
	m := NewManager()
	m.ReplaceSlots([]Slot{{SlotID: "a"}})
	firstGen := m.GenerationID()

	enabled := map[string]struct{}{}
	m.Reserve("", enabled, "alice", "/a.mp3", time.Second)

	m.ReplaceSlots([]Slot{{SlotID: "a"}, {SlotID: "b"}})
	assert.Equal(t, firstGen+1, m.GenerationID())
	assert.Len(t, m.Reservations(), 0)
}

func TestReserve_ZeroDurationUsesDefault(t *testing.T) {
	m := NewManager()
	m.ReplaceSlots([]Slot{{SlotID: "a"}})

	enabled := map[string]struct{}{}
	slotID, ok := m.Reserve("", enabled, "alice", "/a.mp3", 0)
	require.True(t, ok)

	res := m.Reservations()[slotID]
	assert.Equal(t, defaultAudioDuration, res.AudioDuration)
}

func TestRearm_ReplacesProvisionalDurationAndTimer(t *testing.T) {
	m := NewManager()
	m.ReplaceSlots([]Slot{{SlotID: "a"}})

	enabled := map[string]struct{}{}
	slotID, ok := m.Reserve("", enabled, "alice", "/a.mp3", 0)
	require.True(t, ok)
	require.Equal(t, defaultAudioDuration, m.Reservations()[slotID].AudioDuration)

	m.Rearm(slotID, 2*time.Second)
	assert.Equal(t, 2*time.Second, m.Reservations()[slotID].AudioDuration)
}

func TestRearm_NoopWhenReservationGone(t *testing.T) {
	m := NewManager()
	m.ReplaceSlots([]Slot{{SlotID: "a"}})

	// Never reserved; Rearm must not panic or fabricate a reservation.
	m.Rearm("a", time.Second)
	assert.Len(t, m.Reservations(), 0)
}

func TestRearm_FiresAtNewDurationNotOldOne(t *testing.T) {
	m := NewManager()
	m.ReplaceSlots([]Slot{{SlotID: "a"}})

	drained := make(chan struct{}, 1)
	m.SetDrainHandler(func() { drained <- struct{}{} })

	enabled := map[string]struct{}{}
	slotID, ok := m.Reserve("", enabled, "alice", "/a.mp3", time.Hour)
	require.True(t, ok)

	m.Rearm(slotID, 10*time.Millisecond)

	select {
	case <-drained:
		// released at the rearmed duration plus the safety buffer, not the
		// original hour.
	case <-time.After(10*time.Millisecond + releaseSafetyBuffer + time.Second):
		t.Fatal("expected slot to release on the rearmed duration")
	}
}
