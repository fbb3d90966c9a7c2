package voice

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/chatvoice/internal/chatvoiceerr"
)

func TestPick_NoVoicesEnabled(t *testing.T) {
	r := NewRegistry()
	_, err := r.Pick("chat", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, chatvoiceerr.ErrNoVoiceEnabled))
}

func TestPick_OverrideWinsWhenEnabled(t *testing.T) {
	r := NewRegistry()
	r.ReplaceVoices([]Voice{
		{ID: "v1", DisplayName: "One", ProviderTag: "edge", Enabled: true},
		{ID: "v2", DisplayName: "Two", ProviderTag: "edge", Enabled: true},
	})
	r.SetOverrides(map[string]string{"vip": "v2"})

	v, err := r.Pick("vip", nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", v.ID)
}

func TestPick_OverrideIgnoredWhenNotEnabled(t *testing.T) {
	r := NewRegistry()
	r.ReplaceVoices([]Voice{{ID: "v1", DisplayName: "One", Enabled: true}})
	r.SetOverrides(map[string]string{"vip": "missing"})

	v, err := r.Pick("vip", nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", v.ID)
}

func TestPick_UniformAmongEnabled(t *testing.T) {
	r := NewRegistry()
	r.ReplaceVoices([]Voice{
		{ID: "v1", Enabled: true},
		{ID: "v2", Enabled: true},
	})
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		v, err := r.Pick("chat", nil)
		require.NoError(t, err)
		seen[v.ID] = true
	}
	assert.Len(t, seen, 2)
}

func TestPick_SummaryLoggedEveryTenSelections(t *testing.T) {
	r := NewRegistry()
	r.ReplaceVoices([]Voice{{ID: "v1", DisplayName: "One", ProviderTag: "edge", Enabled: true}})

	calls := 0
	for i := 0; i < 20; i++ {
		_, err := r.Pick("chat", func(map[string]int) { calls++ })
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
}

func TestIsEnabled(t *testing.T) {
	r := NewRegistry()
	r.ReplaceVoices([]Voice{{ID: "v1", Enabled: true}})
	assert.True(t, r.IsEnabled("v1"))
	assert.False(t, r.IsEnabled("v2"))
}
