package tts

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// voiceCache implements the "(provider, credentialsHash) -> timestamped
// list" contract from spec.md §4.4 / invariant I5: a cached list is served
// only when the current credentials hash to the same value the cache was
// built with.
type voiceCache struct {
	mu       sync.RWMutex
	hash     string
	voices   []Voice
	warm     bool
}

func credentialsHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// get returns the cached list if it is warm and was built from the same
// credentials hash.
func (c *voiceCache) get(hash string) ([]Voice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.warm || c.hash != hash {
		return nil, false
	}
	return c.voices, true
}

// set stores a freshly fetched voice list under hash.
func (c *voiceCache) set(hash string, voices []Voice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hash = hash
	c.voices = voices
	c.warm = true
}
