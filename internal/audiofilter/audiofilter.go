// Package audiofilter applies optional reverb/pitch/speed post-processing to
// synthesized audio by invoking an external media-transform tool (ffmpeg),
// per spec.md §4.5. No ecosystem library in the example corpus wraps
// ffmpeg, so this package shells out via os/exec — see DESIGN.md for the
// justification.
package audiofilter

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/normanking/chatvoice/internal/config"
	"github.com/rs/zerolog"
)

const toolInvokeTimeout = 30 * time.Second

// Effect names in the fixed deterministic order spec.md §4.5 prescribes.
const (
	EffectReverb = "reverb"
	EffectPitch  = "pitch"
	EffectSpeed  = "speed"
)

// Stage builds and invokes ffmpeg filter chains.
type Stage struct {
	logger    zerolog.Logger
	ffmpeg    string
	ffprobe   string
	randFloat func() float64
}

// New constructs a Stage using the ffmpeg/ffprobe binaries on PATH.
func New(logger zerolog.Logger) *Stage {
	return &Stage{
		logger:    logger.With().Str("component", "audiofilter").Logger(),
		ffmpeg:    "ffmpeg",
		ffprobe:   "ffprobe",
		randFloat: rand.Float64,
	}
}

// Available reports whether the ffmpeg tool can be invoked at all
// (spec.md §4.5: "Invoke an external media-transform tool (assumed
// present)... On tool absence or failure: return (originalPath, null) —
// not fatal.").
func (s *Stage) Available(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, s.ffmpeg, "-version")
	return cmd.Run() == nil
}

// Apply runs the configured filter chain against inputPath. On success it
// returns the new "<name>_filtered" path and the probed duration; on
// unavailability or failure it returns the original path with a nil
// duration, which is not an error condition per spec.
func (s *Stage) Apply(ctx context.Context, inputPath string, cfg config.AudioFiltersConfig) (string, *time.Duration) {
	if cfg.Mode == "off" || cfg.Mode == "" {
		return inputPath, s.probeDuration(ctx, inputPath)
	}

	chain := s.buildChain(cfg)
	if chain == "" {
		return inputPath, s.probeDuration(ctx, inputPath)
	}

	if !s.Available(ctx) {
		s.logger.Warn().Msg("ffmpeg unavailable, skipping audio filter stage")
		return inputPath, nil
	}

	outputPath := filteredPath(inputPath)
	runCtx, cancel := context.WithTimeout(ctx, toolInvokeTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.ffmpeg, "-y", "-i", inputPath, "-af", chain, outputPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		s.logger.Warn().Err(err).Str("stderr", stderr.String()).Msg("audio filter invocation failed")
		return inputPath, nil
	}

	_ = os.Remove(inputPath)
	return outputPath, s.probeDuration(ctx, outputPath)
}

// buildChain dispatches to deterministic or random chain construction.
func (s *Stage) buildChain(cfg config.AudioFiltersConfig) string {
	if cfg.Mode == "random" {
		return s.buildRandomChain(cfg)
	}
	return s.buildDeterministicChain(cfg)
}

// buildDeterministicChain concatenates enabled effects in the fixed order
// {reverb, pitch, speed}.
func (s *Stage) buildDeterministicChain(cfg config.AudioFiltersConfig) string {
	var parts []string
	if cfg.Reverb.Enabled {
		parts = append(parts, reverbFilter(cfg.Reverb.Amount))
	}
	if cfg.Pitch.Enabled {
		parts = append(parts, pitchFilter(cfg.Pitch.Amount))
	}
	if cfg.Speed.Enabled {
		parts = append(parts, speedFilter(valueOrDefault(cfg.Speed.Amount, 1.0)))
	}
	return strings.Join(parts, ",")
}

// buildRandomChain picks 1..min(3, #randomEnabled) effects without
// replacement and samples each parameter from its configured range,
// avoiding a small dead zone around the identity transform.
func (s *Stage) buildRandomChain(cfg config.AudioFiltersConfig) string {
	type candidate struct {
		name  string
		build func() string
	}
	var pool []candidate
	if cfg.Reverb.RandomEnabled {
		pool = append(pool, candidate{EffectReverb, func() string {
			return reverbFilter(s.sampleRange(cfg.Reverb.RandomRange, 0, 1))
		}})
	}
	if cfg.Pitch.RandomEnabled {
		pool = append(pool, candidate{EffectPitch, func() string {
			return pitchFilter(s.samplePitchAvoidingDeadZone(cfg.Pitch.RandomRange))
		}})
	}
	if cfg.Speed.RandomEnabled {
		pool = append(pool, candidate{EffectSpeed, func() string {
			return speedFilter(s.sampleSpeedAvoidingDeadZone(cfg.Speed.RandomRange))
		}})
	}
	if len(pool) == 0 {
		return ""
	}

	maxCount := len(pool)
	if maxCount > 3 {
		maxCount = 3
	}
	count := 1 + int(s.randFloat()*float64(maxCount))
	if count > maxCount {
		count = maxCount
	}

	for i := len(pool) - 1; i > 0; i-- {
		j := int(s.randFloat() * float64(i+1))
		if j > i {
			j = i
		}
		pool[i], pool[j] = pool[j], pool[i]
	}
	pool = pool[:count]

	var parts []string
	for _, c := range pool {
		parts = append(parts, c.build())
	}
	return strings.Join(parts, ",")
}

func (s *Stage) sampleRange(r []float64, lo, hi float64) float64 {
	if len(r) != 2 {
		r = []float64{lo, hi}
	}
	return r[0] + s.randFloat()*(r[1]-r[0])
}

// samplePitchAvoidingDeadZone excludes |semitones| <= 1 (near-identity).
func (s *Stage) samplePitchAvoidingDeadZone(r []float64) float64 {
	for i := 0; i < 10; i++ {
		v := s.sampleRange(r, -12, 12)
		if math.Abs(v) > 1 {
			return v
		}
	}
	return s.sampleRange(r, -12, 12)
}

// sampleSpeedAvoidingDeadZone excludes [0.95, 1.05] (near-identity).
func (s *Stage) sampleSpeedAvoidingDeadZone(r []float64) float64 {
	for i := 0; i < 10; i++ {
		v := s.sampleRange(r, 0.25, 4.0)
		if v < 0.95 || v > 1.05 {
			return v
		}
	}
	return s.sampleRange(r, 0.25, 4.0)
}

// reverbFilter builds the echo-based reverb chain: gain boost = 1 + 0.3*amount.
func reverbFilter(amount float64) string {
	gain := 1 + 0.3*amount
	return fmt.Sprintf("afreqshift=shift=0,aecho=0.8:0.88:60:0.4,volume=%s", formatFloat(gain))
}

// pitchFilter scales the sample rate by 2^(semitones/12) then resamples back.
func pitchFilter(semitones float64) string {
	factor := math.Pow(2, semitones/12)
	return fmt.Sprintf("asetrate=44100*%s,aresample=44100", formatFloat(factor))
}

// speedFilter emits one atempo stage within [0.5, 2.0], or chains two stages
// to cover the full [0.25, 4.0] range.
func speedFilter(multiplier float64) string {
	if multiplier >= 0.5 && multiplier <= 2.0 {
		return fmt.Sprintf("atempo=%s", formatFloat(multiplier))
	}
	if multiplier < 0.5 {
		return fmt.Sprintf("atempo=0.5,atempo=%s", formatFloat(multiplier/0.5))
	}
	return fmt.Sprintf("atempo=2,atempo=%s", formatFloat(multiplier/2.0))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func valueOrDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func filteredPath(path string) string {
	ext := ""
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		ext = path[idx:]
		path = path[:idx]
	}
	return path + "_filtered" + ext
}

// probeDuration shells out to ffprobe; a failed probe is not fatal, the
// caller falls back to a 30s default per spec.md §4.5/§3.
func (s *Stage) probeDuration(ctx context.Context, path string) *time.Duration {
	runCtx, cancel := context.WithTimeout(ctx, toolInvokeTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.ffprobe,
		"-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return nil
	}
	d := time.Duration(seconds * float64(time.Second))
	return &d
}
