package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	googleSynthesizeEndpoint = "https://texttospeech.googleapis.com/v1/text:synthesize"
	googleVoicesEndpoint     = "https://texttospeech.googleapis.com/v1/voices"
)

// GoogleProvider talks to Google Cloud Text-to-Speech (spec.md §6),
// grounded on the teacher's HTTP-provider template in elevenlabs_tts.go.
type GoogleProvider struct {
	apiKey   string
	audioDir string
	logger   zerolog.Logger
	client   *http.Client
	cache    voiceCache
}

// NewGoogleProvider constructs a Google Cloud TTS client.
func NewGoogleProvider(apiKey, audioDir string, logger zerolog.Logger) *GoogleProvider {
	return &GoogleProvider{
		apiKey:   apiKey,
		audioDir: audioDir,
		logger:   logger.With().Str("provider", "google").Logger(),
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *GoogleProvider) Name() string { return "google" }

type googleSynthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string `json:"audioEncoding"`
	} `json:"audioConfig"`
}

type googleSynthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

func (p *GoogleProvider) Synthesize(ctx context.Context, job Job) (*Result, error) {
	start := time.Now()

	voiceName := job.VoiceRef
	langCode := languageCodeFromVoiceName(voiceName)

	var payload googleSynthesizeRequest
	payload.Input.Text = job.Text
	payload.Voice.LanguageCode = langCode
	payload.Voice.Name = voiceName
	payload.AudioConfig.AudioEncoding = "MP3"

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal google request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleSynthesizeEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build google request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google synthesize request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("google synthesize error %d: %s", resp.StatusCode, string(raw))
	}

	var parsed googleSynthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode google response: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(parsed.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode google audio: %w", err)
	}

	ext := job.AudioFormat
	if ext == "" {
		ext = "mp3"
	}
	if err := os.MkdirAll(p.audioDir, 0755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	path := filepath.Join(p.audioDir, fmt.Sprintf("%s.%s", uuid.NewString(), ext))
	if err := os.WriteFile(path, audio, 0644); err != nil {
		return nil, fmt.Errorf("write google audio: %w", err)
	}
	scheduleCleanup(path, audioFileLifetime)

	return &Result{
		AudioPath:      path,
		Provider:       p.Name(),
		ProcessingTime: time.Since(start),
	}, nil
}

func (p *GoogleProvider) ListVoices(ctx context.Context, useCache bool) ([]Voice, error) {
	hash := credentialsHash(p.apiKey)
	if useCache {
		if cached, ok := p.cache.get(hash); ok {
			return cached, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleVoicesEndpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Goog-Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google voices request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Voices []struct {
			Name         string   `json:"name"`
			LanguageCodes []string `json:"languageCodes"`
			SsmlGender   string   `json:"ssmlGender"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode google voices: %w", err)
	}

	voices := make([]Voice, 0, len(parsed.Voices))
	for _, v := range parsed.Voices {
		if !strings.HasPrefix(v.Name, "en-") {
			continue
		}
		if strings.Contains(strings.ToLower(v.Name), "preview") {
			continue
		}
		lang := ""
		if len(v.LanguageCodes) > 0 {
			lang = v.LanguageCodes[0]
		}
		voices = append(voices, Voice{
			ID:       v.Name,
			Name:     v.Name,
			Language: lang,
			Gender:   strings.ToLower(v.SsmlGender),
		})
	}

	p.cache.set(hash, voices)
	return voices, nil
}

func languageCodeFromVoiceName(name string) string {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return "en-US"
}
