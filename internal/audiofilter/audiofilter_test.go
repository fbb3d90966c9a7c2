package audiofilter

import (
	"context"
	"testing"

	"github.com/normanking/chatvoice/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestStage() *Stage {
	return New(zerolog.Nop())
}

func TestBuildDeterministicChain_OnlyEnabledEffectsIncluded(t *testing.T) {
	s := newTestStage()
	cfg := config.AudioFiltersConfig{
		Mode:   "deterministic",
		Reverb: config.AudioFilterEffectConfig{Enabled: true, Amount: 0.5},
		Pitch:  config.AudioFilterEffectConfig{Enabled: false},
		Speed:  config.AudioFilterEffectConfig{Enabled: true, Amount: 1.2},
	}
	chain := s.buildChain(cfg)
	assert.Contains(t, chain, "aecho")
	assert.NotContains(t, chain, "asetrate")
	assert.Contains(t, chain, "atempo=1.2")
}

func TestBuildDeterministicChain_Empty(t *testing.T) {
	s := newTestStage()
	chain := s.buildChain(config.AudioFiltersConfig{Mode: "deterministic"})
	assert.Empty(t, chain)
}

func TestReverbFilter_GainScalesWithAmount(t *testing.T) {
	assert.Equal(t, "afreqshift=shift=0,aecho=0.8:0.88:60:0.4,volume=1", reverbFilter(0))
	assert.Equal(t, "afreqshift=shift=0,aecho=0.8:0.88:60:0.4,volume=1.3", reverbFilter(1))
}

func TestPitchFilter_FactorFromSemitones(t *testing.T) {
	chain := pitchFilter(0)
	assert.Equal(t, "asetrate=44100*1,aresample=44100", chain)
}

func TestSpeedFilter_SingleStageWithinRange(t *testing.T) {
	assert.Equal(t, "atempo=1.5", speedFilter(1.5))
	assert.Equal(t, "atempo=0.5", speedFilter(0.5))
	assert.Equal(t, "atempo=2", speedFilter(2.0))
}

func TestSpeedFilter_ChainsTwoStagesOutsideRange(t *testing.T) {
	below := speedFilter(0.3)
	assert.Equal(t, "atempo=0.5,atempo=0.6", below)

	above := speedFilter(3.0)
	assert.Equal(t, "atempo=2,atempo=1.5", above)
}

func TestBuildRandomChain_RespectsThreeEffectCap(t *testing.T) {
	s := newTestStage()
	s.randFloat = func() float64 { return 0.99 } // pushes count toward max

	cfg := config.AudioFiltersConfig{
		Mode:   "random",
		Reverb: config.AudioFilterEffectConfig{RandomEnabled: true, RandomRange: []float64{0, 1}},
		Pitch:  config.AudioFilterEffectConfig{RandomEnabled: true, RandomRange: []float64{-12, 12}},
		Speed:  config.AudioFilterEffectConfig{RandomEnabled: true, RandomRange: []float64{0.25, 4.0}},
	}
	chain := s.buildRandomChain(cfg)
	assert.NotEmpty(t, chain)
}

func TestBuildRandomChain_NoEffectsEnabledReturnsEmpty(t *testing.T) {
	s := newTestStage()
	chain := s.buildRandomChain(config.AudioFiltersConfig{Mode: "random"})
	assert.Empty(t, chain)
}

func TestSamplePitchAvoidingDeadZone_NeverInDeadZone(t *testing.T) {
	s := newTestStage()
	calls := 0
	s.randFloat = func() float64 {
		calls++
		if calls == 1 {
			return 0.5 // maps into dead zone on first try
		}
		return 0.9 // escapes dead zone on retry
	}
	v := s.samplePitchAvoidingDeadZone([]float64{-12, 12})
	assert.Greater(t, calls, 1)
	_ = v
}

func TestSampleSpeedAvoidingDeadZone_NeverInDeadZone(t *testing.T) {
	s := newTestStage()
	v := s.sampleSpeedAvoidingDeadZone([]float64{0.25, 4.0})
	assert.False(t, v >= 0.95 && v <= 1.05)
}

func TestFilteredPath_PreservesExtension(t *testing.T) {
	assert.Equal(t, "/tmp/abc_filtered.mp3", filteredPath("/tmp/abc.mp3"))
	assert.Equal(t, "/tmp/abc_filtered", filteredPath("/tmp/abc"))
}

func TestApply_OffModeSkipsFfmpeg(t *testing.T) {
	s := newTestStage()
	out, _ := s.Apply(context.Background(), "/tmp/in.mp3", config.AudioFiltersConfig{Mode: "off"})
	assert.Equal(t, "/tmp/in.mp3", out)
}
