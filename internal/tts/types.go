// Package tts provides Text-to-Speech synthesis services for chatvoice,
// wrapping each provider behind a common Provider interface and routing
// through a Hybrid coordinator with fallback (spec.md §4.4).
package tts

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("TTS provider unavailable")
	ErrVoiceNotFound       = errors.New("voice not found")
	ErrTextTooLong         = errors.New("text exceeds maximum length")
	ErrTimeout             = errors.New("synthesis timeout")
	ErrRateLimited         = errors.New("provider rate limited")
	ErrInvalidVoice        = errors.New("invalid voice for provider")
)

// Job is one (user, text, voice) synthesis attempt (spec.md §3 TTSJob).
type Job struct {
	JobID       string
	User        string
	Text        string
	VoiceRef    string // provider-specific voice reference
	AudioFormat string // "mp3" | "wav"
}

// Result is a completed synthesis: the audio file path on disk and its
// duration. The providers in this package leave Duration at zero; the
// orchestrator takes the duration from the audio filter stage's probe.
type Result struct {
	AudioPath      string
	Duration       time.Duration
	Provider       string
	ProcessingTime time.Duration
}

// Voice represents an available TTS voice as reported by a provider.
type Voice struct {
	ID       string
	Name     string
	Language string
	Gender   string
}

// Provider is the interface every concrete TTS backend implements
// (spec.md §4.4: "duck-typed provider objects become a sum type").
type Provider interface {
	// Name returns the provider identifier ("monster", "edge", "google", "polly").
	Name() string

	// Synthesize converts text to audio and returns the path of the
	// resulting file.
	Synthesize(ctx context.Context, job Job) (*Result, error)

	// ListVoices returns the provider's voice catalog. When useCache is
	// true and the cache's credentials hash still matches, the cached
	// list is returned (spec.md §4.4 voice-list cache contract / I5).
	ListVoices(ctx context.Context, useCache bool) ([]Voice, error)
}

// Config holds shared TTS dispatch configuration.
type Config struct {
	DefaultFormat string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{DefaultFormat: "mp3"}
}
