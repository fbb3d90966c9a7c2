package tts

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// VoiceOption is the subset of voice.Voice the Hybrid router needs to pick a
// concrete provider. Defined locally to avoid an import cycle with the
// voice package, which depends on nothing from tts.
type VoiceOption struct {
	ID          string
	DisplayName string
	ProviderTag string // "monster" | "edge" | "google" | "polly"
	VoiceRef    string
}

// Hybrid is the real C4 entry point: it routes a job to the provider named
// by the chosen voice's ProviderTag, and on failure or rate limiting retries
// with a uniform-random voice from the enabled set, tracking fallback usage
// statistics (spec.md §4.4, supplemented by tts.py's fallback distribution
// summary logging).
type Hybrid struct {
	monster *MonsterProvider
	edge    *EdgeProvider
	google  *GoogleProvider
	polly   *PollyProvider
	logger  zerolog.Logger

	mu               sync.Mutex
	fallbackStats    map[string]int
	fallbackSelected int

	randFloat func() float64
}

// NewHybrid constructs the router. Any provider may be nil if its
// credentials are not configured; the router simply skips it.
func NewHybrid(monster *MonsterProvider, edge *EdgeProvider, google *GoogleProvider, polly *PollyProvider, logger zerolog.Logger) *Hybrid {
	return &Hybrid{
		monster:       monster,
		edge:          edge,
		google:        google,
		polly:         polly,
		logger:        logger.With().Str("component", "tts-hybrid").Logger(),
		fallbackStats: make(map[string]int),
		randFloat:     rand.Float64,
	}
}

func (h *Hybrid) Name() string { return "hybrid" }

func (h *Hybrid) providerFor(tag string) Provider {
	switch tag {
	case "monster":
		if h.monster != nil {
			return h.monster
		}
	case "edge":
		if h.edge != nil {
			return h.edge
		}
	case "google":
		if h.google != nil {
			return h.google
		}
	case "polly":
		if h.polly != nil {
			return h.polly
		}
	}
	return nil
}

// Synthesize attempts chosen first, falling back to a uniform-random
// candidate from fallbackPool on failure or provider rate limiting, and
// finally to Edge with its own default voice (spec.md §4.4: "Ultimate
// fallback: Edge with a hardcoded default voice").
func (h *Hybrid) Synthesize(ctx context.Context, job Job, chosen VoiceOption, fallbackPool []VoiceOption) (*Result, error) {
	if chosen.ProviderTag == "monster" && h.monster != nil {
		if h.monster.CanProcessNow() {
			primaryJob := job
			primaryJob.VoiceRef = chosen.VoiceRef
			if res, err := h.monster.Synthesize(ctx, primaryJob); err == nil {
				return res, nil
			} else {
				h.logger.Info().Err(err).Msg("monster primary voice failed, trying fallback")
			}
		} else {
			h.logger.Info().Msg("monster rate limited, trying fallback")
		}
	} else if provider := h.providerFor(chosen.ProviderTag); provider != nil {
		primaryJob := job
		primaryJob.VoiceRef = chosen.VoiceRef
		if res, err := provider.Synthesize(ctx, primaryJob); err == nil {
			return res, nil
		} else {
			h.logger.Info().Err(err).Str("provider", chosen.ProviderTag).Msg("primary voice failed, trying fallback")
		}
	}

	if len(fallbackPool) > 0 {
		candidate := h.pickFallback(fallbackPool)
		h.recordFallback(candidate)

		if provider := h.providerFor(candidate.ProviderTag); provider != nil {
			fallbackJob := job
			fallbackJob.VoiceRef = candidate.VoiceRef
			if candidate.ProviderTag == "monster" {
				// Random fallback skips the CanProcessNow pre-check;
				// MonsterProvider.Synthesize still returns ErrRateLimited
				// inside its minimum interval.
				if res, err := provider.Synthesize(ctx, fallbackJob); err == nil {
					return res, nil
				} else {
					h.logger.Info().Err(err).Msg("monster random fallback failed")
				}
			} else if res, err := provider.Synthesize(ctx, fallbackJob); err == nil {
				return res, nil
			} else {
				h.logger.Info().Err(err).Str("provider", candidate.ProviderTag).Msg("random fallback failed")
			}
		}
	}

	if h.edge == nil {
		return nil, fmt.Errorf("%w: no providers available", ErrProviderUnavailable)
	}
	finalJob := job
	finalJob.VoiceRef = ""
	return h.edge.Synthesize(ctx, finalJob)
}

func (h *Hybrid) pickFallback(pool []VoiceOption) VoiceOption {
	idx := int(h.randFloat() * float64(len(pool)))
	if idx >= len(pool) {
		idx = len(pool) - 1
	}
	return pool[idx]
}

func (h *Hybrid) recordFallback(v VoiceOption) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := fmt.Sprintf("%s (%s)", v.DisplayName, v.ProviderTag)
	h.fallbackStats[key]++
	h.fallbackSelected++

	if h.fallbackSelected%5 == 0 {
		h.logFallbackDistribution()
	}
}

func (h *Hybrid) logFallbackDistribution() {
	type entry struct {
		key   string
		count int
	}
	entries := make([]entry, 0, len(h.fallbackStats))
	total := 0
	for k, c := range h.fallbackStats {
		entries = append(entries, entry{k, c})
		total += c
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].count > entries[j].count })

	ev := h.logger.Info().Int("totalFallbacks", total)
	for _, e := range entries {
		pct := float64(e.count) / float64(total) * 100
		ev = ev.Str(e.key, fmt.Sprintf("%.1f%%", pct))
	}
	ev.Msg("fallback voice distribution summary")
}

// ResetFallbackStats clears fallback usage statistics. Useful for tests.
func (h *Hybrid) ResetFallbackStats() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fallbackStats = make(map[string]int)
	h.fallbackSelected = 0
}

// FallbackSelections reports how many times Synthesize has fallen through to
// a random candidate from fallbackPool, confirming the branch was actually
// exercised rather than left unreachable by a nil pool.
func (h *Hybrid) FallbackSelections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fallbackSelected
}
