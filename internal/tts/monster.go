package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	monsterGenerateEndpoint = "https://api.console.tts.monster/generate"
	monsterVoicesEndpoint   = "https://api.console.tts.monster/voices"

	// MonsterDefaultVoiceRef is the fallback voice reference used when no
	// MonsterTTS voice is configured, carried over from the original
	// implementation's hardcoded default.
	MonsterDefaultVoiceRef = "9aad4a1b-f04e-43a1-8ff5-4830115a10a8"

	monsterMinInterval  = 2 * time.Second
	monsterMinAudioSize = 100 // bytes
	audioFileLifetime   = 30 * time.Second
)

// MonsterProvider talks to the MonsterTTS HTTP API (spec.md §6).
type MonsterProvider struct {
	apiKey   string
	audioDir string
	logger   zerolog.Logger
	client   *http.Client

	mu              sync.Mutex
	lastRequestTime time.Time

	cache voiceCache
}

// NewMonsterProvider constructs a MonsterTTS client. audioDir is where
// synthesized files are written.
func NewMonsterProvider(apiKey, audioDir string, logger zerolog.Logger) *MonsterProvider {
	return &MonsterProvider{
		apiKey:   apiKey,
		audioDir: audioDir,
		logger:   logger.With().Str("provider", "monster").Logger(),
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *MonsterProvider) Name() string { return "monster" }

// CanProcessNow reports whether the per-provider rate limit currently allows
// a new request (spec.md §4.4: "enforces lastRequestWallTime + minInterval
// <= now before sending").
func (p *MonsterProvider) CanProcessNow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.lastRequestTime) >= monsterMinInterval
}

type monsterGenerateRequest struct {
	VoiceID string `json:"voice_id"`
	Message string `json:"message"`
}

type monsterGenerateResponse struct {
	URL string `json:"url"`
}

func (p *MonsterProvider) Synthesize(ctx context.Context, job Job) (*Result, error) {
	p.mu.Lock()
	if time.Since(p.lastRequestTime) < monsterMinInterval {
		wait := monsterMinInterval - time.Since(p.lastRequestTime)
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: wait %.1fs", ErrRateLimited, wait.Seconds())
	}
	p.lastRequestTime = time.Now()
	p.mu.Unlock()

	start := time.Now()

	voiceRef := job.VoiceRef
	if voiceRef == "" {
		voiceRef = MonsterDefaultVoiceRef
	}

	payload, err := json.Marshal(monsterGenerateRequest{VoiceID: voiceRef, Message: job.Text})
	if err != nil {
		return nil, fmt.Errorf("marshal monster request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, monsterGenerateEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build monster request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("monster generate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("monster generate error %d: %s", resp.StatusCode, string(body))
	}

	var gen monsterGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, fmt.Errorf("decode monster response: %w", err)
	}
	if gen.URL == "" {
		return nil, fmt.Errorf("monster response missing url")
	}

	audioResp, err := http.Get(gen.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch monster audio: %w", err)
	}
	defer audioResp.Body.Close()

	audioBytes, err := io.ReadAll(audioResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read monster audio: %w", err)
	}
	if len(audioBytes) < monsterMinAudioSize {
		return nil, fmt.Errorf("monster audio too small (%d bytes)", len(audioBytes))
	}

	ext := job.AudioFormat
	if ext == "" {
		ext = "mp3"
	}
	if err := os.MkdirAll(p.audioDir, 0755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	path := filepath.Join(p.audioDir, fmt.Sprintf("%s.%s", uuid.NewString(), ext))
	if err := os.WriteFile(path, audioBytes, 0644); err != nil {
		return nil, fmt.Errorf("write monster audio: %w", err)
	}

	scheduleCleanup(path, audioFileLifetime)

	p.logger.Info().Str("voice", voiceRef).Int("bytes", len(audioBytes)).Msg("monster synthesis complete")

	return &Result{
		AudioPath:      path,
		Provider:       p.Name(),
		ProcessingTime: time.Since(start),
	}, nil
}

func (p *MonsterProvider) ListVoices(ctx context.Context, useCache bool) ([]Voice, error) {
	hash := credentialsHash(p.apiKey)
	if useCache {
		if cached, ok := p.cache.get(hash); ok {
			return cached, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, monsterVoicesEndpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("monster voices request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Voices []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Locale string `json:"locale"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode monster voices: %w", err)
	}

	voices := make([]Voice, 0, len(parsed.Voices))
	for _, v := range parsed.Voices {
		voices = append(voices, Voice{ID: v.ID, Name: v.Name, Language: v.Locale})
	}

	p.cache.set(hash, voices)
	return voices, nil
}

// scheduleCleanup deletes path after lifetime, matching spec.md §5 resource
// hygiene: "audio files are scheduled for deletion 30s after creation."
func scheduleCleanup(path string, lifetime time.Duration) {
	time.AfterFunc(lifetime, func() {
		_ = os.Remove(path)
	})
}
