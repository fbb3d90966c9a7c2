package tts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// neuralCapableVoices is the known subset of Polly voices with a neural
// engine, per spec.md §4.4 ("engine='neural' for a known neural-capable
// subset, else 'standard'").
var neuralCapableVoices = map[string]bool{
	"Joanna": true, "Matthew": true, "Ivy": true, "Kendra": true,
	"Kimberly": true, "Salli": true, "Joey": true, "Justin": true,
	"Kevin": true, "Ruth": true, "Stephen": true,
}

// PollyProvider synthesizes via Amazon Polly, grounded on the real AWS SDK
// (github.com/aws/aws-sdk-go-v2), the ecosystem's own answer to spec.md's
// "Amazon Polly SDK-style synthesizeSpeech."
type PollyProvider struct {
	client   *polly.Client
	audioDir string
	logger   zerolog.Logger
	cache    voiceCache
	cacheKey string
}

// NewPollyProvider builds a Polly client from a static access/secret key
// pair and region (spec.md §6: "Polly: AWS SDK with access/secret/region").
func NewPollyProvider(ctx context.Context, accessKey, secretKey, region, audioDir string, logger zerolog.Logger) (*PollyProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &PollyProvider{
		client:   polly.NewFromConfig(cfg),
		audioDir: audioDir,
		logger:   logger.With().Str("provider", "polly").Logger(),
		cacheKey: credentialsHash(accessKey, secretKey),
	}, nil
}

func (p *PollyProvider) Name() string { return "polly" }

func (p *PollyProvider) Synthesize(ctx context.Context, job Job) (*Result, error) {
	start := time.Now()

	engine := types.EngineStandard
	if neuralCapableVoices[job.VoiceRef] {
		engine = types.EngineNeural
	}

	out, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(job.Text),
		VoiceId:      types.VoiceId(job.VoiceRef),
		OutputFormat: types.OutputFormatMp3,
		Engine:       engine,
	})
	if err != nil {
		return nil, fmt.Errorf("polly synthesize speech: %w", err)
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("read polly audio stream: %w", err)
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
		return nil, fmt.Errorf("write polly audio: %w", err)
	}
	scheduleCleanup(path, audioFileLifetime)

	return &Result{
		AudioPath:      path,
		Provider:       p.Name(),
		ProcessingTime: time.Since(start),
	}, nil
}

func (p *PollyProvider) ListVoices(ctx context.Context, useCache bool) ([]Voice, error) {
	if useCache {
		if cached, ok := p.cache.get(p.cacheKey); ok {
			return cached, nil
		}
	}

	out, err := p.client.DescribeVoices(ctx, &polly.DescribeVoicesInput{})
	if err != nil {
		return nil, fmt.Errorf("polly describe voices: %w", err)
	}

	voices := make([]Voice, 0, len(out.Voices))
	for _, v := range out.Voices {
		voices = append(voices, Voice{
			ID:       string(v.Id),
			Name:     aws.ToString(v.Name),
			Language: string(v.LanguageCode),
			Gender:   string(v.Gender),
		})
	}

	p.cache.set(p.cacheKey, voices)
	return voices, nil
}
