package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSpam_UnderThreshold(t *testing.T) {
	l := New(0)
	for i := 0; i < 4; i++ {
		l.Add("Alice")
	}
	assert.False(t, l.IsSpam("alice", 5, 10))
}

func TestIsSpam_AtThreshold(t *testing.T) {
	l := New(0)
	for i := 0; i < 5; i++ {
		l.Add("spam")
	}
	assert.True(t, l.IsSpam("spam", 5, 10))
}

func TestIsSpam_CaseInsensitiveUser(t *testing.T) {
	l := New(0)
	for i := 0; i < 5; i++ {
		l.Add("Bob")
	}
	assert.True(t, l.IsSpam("BOB", 5, 10))
	assert.True(t, l.IsSpam("bob", 5, 10))
}

func TestIsSpam_UnknownUser(t *testing.T) {
	l := New(0)
	assert.False(t, l.IsSpam("nobody", 1, 10))
}

func TestIsSpam_WindowExpires(t *testing.T) {
	l := New(time.Hour)
	base := time.Now()
	l.now = func() time.Time { return base }
	for i := 0; i < 5; i++ {
		l.Add("carl")
	}
	l.now = func() time.Time { return base.Add(20 * time.Second) }
	assert.False(t, l.IsSpam("carl", 5, 10), "entries outside the window should not count")
}

func TestTrim_DropsEntriesOlderThanMaxAge(t *testing.T) {
	l := New(5 * time.Second)
	base := time.Now()
	l.now = func() time.Time { return base }
	l.Add("dana")
	l.now = func() time.Time { return base.Add(10 * time.Second) }
	l.Add("dana")

	stats := l.GetStats()
	require.Equal(t, 1, stats.TrackedUsers)
	assert.Equal(t, 1, stats.TotalTimestamps)
}

func TestClear(t *testing.T) {
	l := New(0)
	l.Add("eve")
	l.Clear()
	assert.Equal(t, 0, l.GetStats().TrackedUsers)
}
