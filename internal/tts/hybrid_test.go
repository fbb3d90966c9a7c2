package tts

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHybrid_NoProvidersConfiguredReturnsUnavailable(t *testing.T) {
	h := NewHybrid(nil, nil, nil, nil, zerolog.Nop())
	// Edge isn't wired here; simulate via providerFor override isn't exposed,
	// so instead verify the ultimate-fallback error path when nothing is configured.
	_, err := h.Synthesize(context.Background(), Job{Text: "hi"}, VoiceOption{ProviderTag: "edge"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestHybrid_PickFallbackAndRecordFallbackBookkeeping(t *testing.T) {
	// Route "edge" tag through a fake google provider injected as the
	// fallback candidate by using providerFor's google slot indirectly is
	// not possible without a real *GoogleProvider, so this test exercises
	// the pickFallback/recordFallback bookkeeping directly instead.
	h := NewHybrid(nil, nil, nil, nil, zerolog.Nop())
	h.randFloat = func() float64 { return 0 }

	pool := []VoiceOption{{DisplayName: "A", ProviderTag: "edge"}, {DisplayName: "B", ProviderTag: "edge"}}
	chosen := h.pickFallback(pool)
	assert.Equal(t, "A", chosen.DisplayName)

	h.recordFallback(chosen)
	assert.Equal(t, 1, h.fallbackSelected)
}

func TestHybrid_LogsDistributionEveryFiveFallbacks(t *testing.T) {
	h := NewHybrid(nil, nil, nil, nil, zerolog.Nop())
	for i := 0; i < 5; i++ {
		h.recordFallback(VoiceOption{DisplayName: "A", ProviderTag: "edge"})
	}
	assert.Equal(t, 5, h.fallbackSelected)
	assert.Equal(t, 5, h.fallbackStats["A (edge)"])
}

func TestHybrid_ResetFallbackStats(t *testing.T) {
	h := NewHybrid(nil, nil, nil, nil, zerolog.Nop())
	h.recordFallback(VoiceOption{DisplayName: "A", ProviderTag: "edge"})
	h.ResetFallbackStats()
	assert.Equal(t, 0, h.fallbackSelected)
	assert.Len(t, h.fallbackStats, 0)
}
