// Package config provides configuration management for chatvoice.
package config

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Dispatch         DispatchConfig         `mapstructure:"dispatch"`
	MessageFiltering MessageFilteringConfig `mapstructure:"messageFiltering"`
	SpecialVoices    map[string]string      `mapstructure:"specialVoices"`
	AudioFilters     AudioFiltersConfig     `mapstructure:"audioFilters"`
	TTS              TTSConfig              `mapstructure:"tts"`
	Twitch           TwitchConfig           `mapstructure:"twitch"`
	YouTube          YouTubeConfig          `mapstructure:"youtube"`
	AvatarRows       int                    `mapstructure:"avatarRows"`
	AvatarRowConfig  []int                  `mapstructure:"avatarRowConfig"`
}

// DispatchConfig governs the orchestrator's admission policy.
type DispatchConfig struct {
	AudioFormat           string `mapstructure:"audioFormat"`           // "mp3" | "wav"
	ParallelMessageLimit  int    `mapstructure:"parallelMessageLimit"`  // 0/negative = unlimited
	QueueOverflowMessages bool   `mapstructure:"queueOverflowMessages"` // queue vs drop on overflow
	IgnoreIfUserSpeaking  bool   `mapstructure:"ignoreIfUserSpeaking"`
}

// MessageFilteringConfig governs the ingress filter (C2).
type MessageFilteringConfig struct {
	EnableCommandFilter bool         `mapstructure:"enableCommandFilter"`
	CommandPrefix       string       `mapstructure:"commandPrefix"`
	StripEmotes         bool         `mapstructure:"stripEmotes"`
	MinMessageLength    int          `mapstructure:"minMessageLength"`
	MaxMessageLength    int          `mapstructure:"maxMessageLength"`
	UserFilters         []UserFilter `mapstructure:"userFilters"`
	Blocklist           []string     `mapstructure:"blocklist"`
	RateMaxMessages     int          `mapstructure:"rateMaxMessages"`
	RateWindowSeconds   int          `mapstructure:"rateWindowSeconds"`
}

// UserFilter is a case-insensitive allow/block rule keyed by username.
type UserFilter struct {
	User   string `mapstructure:"user"`
	Action string `mapstructure:"action"` // "block" | "allow"
}

// AudioFilterEffectConfig configures one post-processing effect.
type AudioFilterEffectConfig struct {
	Enabled       bool      `mapstructure:"enabled"`
	RandomEnabled bool      `mapstructure:"randomEnabled"`
	Amount        float64   `mapstructure:"amount"`     // deterministic param value
	RandomRange   []float64 `mapstructure:"randomRange"` // [min, max] for random mode
}

// AudioFiltersConfig configures the audio filter stage (C5).
type AudioFiltersConfig struct {
	Mode   string                  `mapstructure:"mode"` // "off" | "deterministic" | "random"
	Reverb AudioFilterEffectConfig `mapstructure:"reverb"`
	Pitch  AudioFilterEffectConfig `mapstructure:"pitch"`
	Speed  AudioFilterEffectConfig `mapstructure:"speed"`
}

// ProviderCredentials holds the per-provider config block under tts.<provider>.
type ProviderCredentials struct {
	APIKey       string `mapstructure:"apiKey"`
	SecretKey    string `mapstructure:"secretKey"` // polly
	Region       string `mapstructure:"region"`    // polly
	VoiceID      string `mapstructure:"voiceId"`
}

// TTSConfig configures the hybrid provider router (C4).
type TTSConfig struct {
	Monster ProviderCredentials `mapstructure:"monster"`
	Edge    ProviderCredentials `mapstructure:"edge"`
	Google  ProviderCredentials `mapstructure:"google"`
	Polly   ProviderCredentials `mapstructure:"polly"`
}

// TwitchConfig configures the Twitch chat source adapter.
type TwitchConfig struct {
	OAuthToken string `mapstructure:"oauthToken"`
	Nickname   string `mapstructure:"nickname"`
	Channel    string `mapstructure:"channel"`
}

// YouTubeConfig configures the YouTube chat source adapter.
type YouTubeConfig struct {
	APIKey  string `mapstructure:"apiKey"`
	VideoID string `mapstructure:"videoId"` // caller-supplied, optional
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Dispatch: DispatchConfig{
			AudioFormat:           "mp3",
			ParallelMessageLimit:  3,
			QueueOverflowMessages: true,
			IgnoreIfUserSpeaking:  true,
		},
		MessageFiltering: MessageFilteringConfig{
			EnableCommandFilter: true,
			CommandPrefix:       "!",
			StripEmotes:         true,
			MinMessageLength:    1,
			MaxMessageLength:    300,
			RateMaxMessages:     5,
			RateWindowSeconds:   10,
		},
		SpecialVoices: map[string]string{},
		AudioFilters: AudioFiltersConfig{
			Mode:   "off",
			Reverb: AudioFilterEffectConfig{RandomRange: []float64{0, 1}},
			Pitch:  AudioFilterEffectConfig{RandomRange: []float64{-12, 12}},
			Speed:  AudioFilterEffectConfig{Amount: 1.0, RandomRange: []float64{0.25, 4.0}},
		},
		AvatarRows:      2,
		AvatarRowConfig: []int{6, 6},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".chatvoice")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("CHATVOICE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".chatvoice")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("dispatch", cfg.Dispatch)
	viper.Set("messageFiltering", cfg.MessageFiltering)
	viper.Set("specialVoices", cfg.SpecialVoices)
	viper.Set("audioFilters", cfg.AudioFilters)
	viper.Set("tts", cfg.TTS)
	viper.Set("twitch", cfg.Twitch)
	viper.Set("youtube", cfg.YouTube)
	viper.Set("avatarRows", cfg.AvatarRows)
	viper.Set("avatarRowConfig", cfg.AvatarRowConfig)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".chatvoice"), nil
}

// WatchForChanges watches the active config file and invokes onChange with
// the reloaded Config whenever it is edited on disk. Bumping the generation
// id is the caller's responsibility: main's onChange rebuilds the slot table
// with avatar.Manager.ReplaceSlots, which increments generationId.
func WatchForChanges(onChange func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg := DefaultConfig()
		if err := viper.Unmarshal(cfg); err != nil {
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}
