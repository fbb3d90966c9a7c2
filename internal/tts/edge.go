package tts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	edgeWSEndpoint   = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"
	edgeDefaultVoice = "en-US-AriaNeural"
)

// EdgeProvider synthesizes via Microsoft Edge's neural TTS endpoint, a
// free WebSocket-framed service requiring no API key. Grounded on the
// teacher's gorilla/websocket client usage in internal/vision/ws_client.go,
// adapted here from a vision-frame protocol to Edge's SSML-over-WS protocol.
type EdgeProvider struct {
	audioDir     string
	defaultVoice string
	logger       zerolog.Logger
	cache        voiceCache
}

// NewEdgeProvider constructs an Edge TTS client.
func NewEdgeProvider(audioDir string, logger zerolog.Logger) *EdgeProvider {
	return &EdgeProvider{
		audioDir:     audioDir,
		defaultVoice: edgeDefaultVoice,
		logger:       logger.With().Str("provider", "edge").Logger(),
	}
}

func (p *EdgeProvider) Name() string { return "edge" }

func (p *EdgeProvider) Synthesize(ctx context.Context, job Job) (*Result, error) {
	start := time.Now()

	voice := job.VoiceRef
	if voice == "" {
		voice = p.defaultVoice
	}

	audio, err := p.synthOnce(ctx, job.Text, voice)
	if err != nil {
		// Only retry with the known-good default when the failing voice
		// wasn't already the default — retrying on the default would just
		// double the failure log for no benefit.
		if voice != p.defaultVoice {
			p.logger.Warn().Err(err).Str("voice", voice).Msg("edge synth failed, retrying with default voice")
			audio, err = p.synthOnce(ctx, job.Text, p.defaultVoice)
			if err != nil {
				return nil, fmt.Errorf("%w: edge failed with both %q and fallback %q", ErrInvalidVoice, voice, p.defaultVoice)
			}
			voice = p.defaultVoice
		} else {
			return nil, fmt.Errorf("%w: %v", ErrInvalidVoice, err)
		}
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
		return nil, fmt.Errorf("write edge audio: %w", err)
	}
	scheduleCleanup(path, audioFileLifetime)

	return &Result{
		AudioPath:      path,
		Provider:       p.Name(),
		ProcessingTime: time.Since(start),
	}, nil
}

// synthOnce opens a single WS connection, sends the SSML synth request, and
// collects binary audio frames until the "Path:turn.end" terminator frame.
func (p *EdgeProvider) synthOnce(ctx context.Context, text, voice string) ([]byte, error) {
	connID := randomHex(16)

	u, err := url.Parse(edgeWSEndpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("TrustedClientToken", "6A5AA1D4EAFF4E9FB37E23D68491D6F4")
	q.Set("ConnectionId", connID)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("edge ws dial: %w", err)
	}
	defer conn.Close()

	cfgMsg := fmt.Sprintf(
		"X-Timestamp:%s\r\nContent-Type:application/json; charset=utf-8\r\nPath:speech.config\r\n\r\n"+
			`{"context":{"synthesis":{"audio":{"metadataoptions":{"sentenceBoundaryEnabled":"false"},"outputFormat":"audio-24khz-48kbitrate-mono-mp3"}}}}`,
		time.Now().UTC().Format(time.RFC3339))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(cfgMsg)); err != nil {
		return nil, fmt.Errorf("edge ws config: %w", err)
	}

	ssml := fmt.Sprintf(
		`<speak version='1.0' xml:lang='en-US'><voice name='%s'>%s</voice></speak>`,
		voice, escapeSSML(text))
	synthMsg := fmt.Sprintf(
		"X-RequestId:%s\r\nContent-Type:application/ssml+xml\r\nX-Timestamp:%s\r\nPath:ssml\r\n\r\n%s",
		connID, time.Now().UTC().Format(time.RFC3339), ssml)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(synthMsg)); err != nil {
		return nil, fmt.Errorf("edge ws ssml: %w", err)
	}

	var audio []byte
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("edge ws read: %w", err)
		}
		switch msgType {
		case websocket.BinaryMessage:
			if idx := strings.Index(string(data), "Path:audio\r\n"); idx >= 0 {
				audio = append(audio, data[idx+len("Path:audio\r\n"):]...)
			}
		case websocket.TextMessage:
			if strings.Contains(string(data), "Path:turn.end") {
				if len(audio) == 0 {
					return nil, fmt.Errorf("no audio received")
				}
				return audio, nil
			}
		}
	}
}

func (p *EdgeProvider) ListVoices(ctx context.Context, useCache bool) ([]Voice, error) {
	hash := credentialsHash("edge")
	if useCache {
		if cached, ok := p.cache.get(hash); ok {
			return cached, nil
		}
	}
	voices := []Voice{
		{ID: "en-US-AriaNeural", Name: "Aria", Language: "en-US", Gender: "female"},
		{ID: "en-US-GuyNeural", Name: "Guy", Language: "en-US", Gender: "male"},
		{ID: "en-GB-SoniaNeural", Name: "Sonia", Language: "en-GB", Gender: "female"},
	}
	p.cache.set(hash, voices)
	return voices, nil
}

func randomHex(n int) string {
	b := make([]byte, n/2)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func escapeSSML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
