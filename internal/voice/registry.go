// Package voice provides the enabled-voice registry for chatvoice.
package voice

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/normanking/chatvoice/internal/chatvoiceerr"
)

// Voice identifies a selectable TTS voice (spec.md §3 Voice).
type Voice struct {
	ID              string
	DisplayName     string
	ProviderTag     string // "monster" | "edge" | "google" | "polly"
	ProviderVoiceRef string
	Enabled         bool
	AvatarRefs      []string
}

// usageKey is the (voiceName, provider) pair usage stats are tracked under.
type usageKey struct {
	voiceName string
	provider  string
}

// Registry holds the enabled voice set and special-event override map, and
// tracks per-(voice,provider) selection counters (spec.md §4.3).
type Registry struct {
	mu        sync.RWMutex
	voices    map[string]Voice
	overrides map[string]string // eventType -> voiceID

	selectionCount int
	usage          map[usageKey]int

	rand func() float64
}

// NewRegistry constructs an empty Registry. Call ReplaceVoices to populate it.
func NewRegistry() *Registry {
	return &Registry{
		voices:    make(map[string]Voice),
		overrides: make(map[string]string),
		usage:     make(map[usageKey]int),
		rand:      rand.Float64,
	}
}

// ReplaceVoices atomically swaps in a new enabled-voice set, discarding
// voices no longer present. Usage counters persist across replacement.
func (r *Registry) ReplaceVoices(voices []Voice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := make(map[string]Voice, len(voices))
	for _, v := range voices {
		if v.Enabled {
			m[v.ID] = v
		}
	}
	r.voices = m
}

// SetOverrides replaces the eventType -> voiceID override map
// (config key specialVoices.<eventType>).
func (r *Registry) SetOverrides(overrides map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := make(map[string]string, len(overrides))
	for k, v := range overrides {
		m[k] = v
	}
	r.overrides = m
}

// IsEnabled reports whether voiceID names a currently-enabled voice.
func (r *Registry) IsEnabled(voiceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.voices[voiceID]
	return ok
}

// Pick selects a voice for eventType per spec.md §4.3: an override wins if it
// resolves to an enabled voice, otherwise a uniform-random enabled voice is
// returned. Every 10th selection logs a summary via the supplied logFn.
func (r *Registry) Pick(eventType string, logFn func(summary map[string]int)) (Voice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.voices) == 0 {
		return Voice{}, fmt.Errorf("%w: %s", chatvoiceerr.ErrNoVoiceEnabled, "no enabled voices")
	}

	var chosen Voice
	if overrideID, ok := r.overrides[eventType]; ok {
		if v, ok := r.voices[overrideID]; ok {
			chosen = v
		}
	}

	if chosen.ID == "" {
		ids := make([]string, 0, len(r.voices))
		for id := range r.voices {
			ids = append(ids, id)
		}
		idx := int(r.rand() * float64(len(ids)))
		if idx >= len(ids) {
			idx = len(ids) - 1
		}
		chosen = r.voices[ids[idx]]
	}

	key := usageKey{voiceName: chosen.DisplayName, provider: chosen.ProviderTag}
	r.usage[key]++
	r.selectionCount++

	if logFn != nil && r.selectionCount%10 == 0 {
		snapshot := make(map[string]int, len(r.usage))
		for k, v := range r.usage {
			snapshot[fmt.Sprintf("%s (%s)", k.voiceName, k.provider)] = v
		}
		logFn(snapshot)
	}

	return chosen, nil
}

// EnabledIDs returns the set of currently-enabled voice ids.
func (r *Registry) EnabledIDs() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]struct{}, len(r.voices))
	for id := range r.voices {
		out[id] = struct{}{}
	}
	return out
}

// EnabledVoices returns a snapshot of every currently-enabled Voice, used to
// build a fallback pool for Hybrid.Synthesize (spec.md §4.4). Resolving a
// single voiceID to its full identity is ByID's job.
func (r *Registry) EnabledVoices() []Voice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Voice, 0, len(r.voices))
	for _, v := range r.voices {
		out = append(out, v)
	}
	return out
}

// ByID returns the full Voice for voiceID, if currently enabled.
func (r *Registry) ByID(voiceID string) (Voice, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.voices[voiceID]
	return v, ok
}
