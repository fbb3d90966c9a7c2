// Command chatvoice runs the live chat-to-speech overlay engine: it
// connects to the configured chat sources, dispatches accepted messages
// through the synthesis pipeline, and serves the WebSocket overlay feed
// consumed by the browser front end.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/normanking/chatvoice/internal/audiofilter"
	"github.com/normanking/chatvoice/internal/avatar"
	"github.com/normanking/chatvoice/internal/bus"
	"github.com/normanking/chatvoice/internal/chatsource"
	"github.com/normanking/chatvoice/internal/config"
	"github.com/normanking/chatvoice/internal/filter"
	"github.com/normanking/chatvoice/internal/hub"
	"github.com/normanking/chatvoice/internal/logging"
	"github.com/normanking/chatvoice/internal/orchestrator"
	"github.com/normanking/chatvoice/internal/queue"
	"github.com/normanking/chatvoice/internal/ratelimit"
	"github.com/normanking/chatvoice/internal/tts"
	"github.com/normanking/chatvoice/internal/voice"
)

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chatvoice:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	appLog, err := logging.New(logging.DefaultConfig())
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer appLog.Close()
	logger := appLog.Component("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := bus.NewEventBus()

	limiter := ratelimit.New(rateWindow(cfg.MessageFiltering.RateWindowSeconds))
	msgFilter := filter.New(limiter)

	voices := voice.NewRegistry()
	voices.ReplaceVoices(loadVoiceCatalog(ctx, appLog))
	voices.SetOverrides(cfg.SpecialVoices)

	slots := avatar.NewManager()
	slots.ReplaceSlots(buildSlotTable(cfg))

	queues := queue.New()
	audioStage := audiofilter.New(appLog.Component("audiofilter"))

	hybrid := buildHybridProvider(ctx, cfg, appLog)

	orch := orchestrator.New(appLog.Component("orchestrator"), eventBus, msgFilter, voices, slots, queues, hybrid, audioStage, cfg)

	config.WatchForChanges(func(newCfg *config.Config) {
		orch.ReloadConfig(newCfg)
		slots.ReplaceSlots(buildSlotTable(newCfg))
		voices.SetOverrides(newCfg.SpecialVoices)
		eventBus.Publish(bus.Event{
			Type: bus.EventTypeSettingsUpdated,
			Data: map[string]any{"type": "settings_updated"},
		})
	})

	overlayHub := hub.New(eventBus, appLog.Component("hub"))
	overlayHub.SetAudioEndedHandler(func(slotID string) {
		slots.Release(slotID)
	})

	startChatSources(ctx, cfg, appLog, orch)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", overlayHub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: ":8089", Handler: mux}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("serving overlay websocket")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// rateWindow widens the limiter's tracked window to twice the configured
// rate window so IsSpam's sliding check always has enough history.
func rateWindow(windowSeconds int) time.Duration {
	if windowSeconds <= 0 {
		windowSeconds = 10
	}
	return 2 * time.Duration(windowSeconds) * time.Second
}

func buildHybridProvider(ctx context.Context, cfg *config.Config, appLog *logging.Logger) *tts.Hybrid {
	var monster *tts.MonsterProvider
	if cfg.TTS.Monster.APIKey != "" {
		monster = tts.NewMonsterProvider(cfg.TTS.Monster.APIKey, audioDir(), appLog.Component("tts.monster"))
	}

	edge := tts.NewEdgeProvider(audioDir(), appLog.Component("tts.edge"))

	var google *tts.GoogleProvider
	if cfg.TTS.Google.APIKey != "" {
		google = tts.NewGoogleProvider(cfg.TTS.Google.APIKey, audioDir(), appLog.Component("tts.google"))
	}

	var polly *tts.PollyProvider
	if cfg.TTS.Polly.APIKey != "" && cfg.TTS.Polly.SecretKey != "" {
		p, err := tts.NewPollyProvider(ctx, cfg.TTS.Polly.APIKey, cfg.TTS.Polly.SecretKey, cfg.TTS.Polly.Region, audioDir(), appLog.Component("tts.polly"))
		if err != nil {
			appLog.Error("main", "failed to init polly provider", err, nil)
		} else {
			polly = p
		}
	}

	return tts.NewHybrid(monster, edge, google, polly, appLog.Component("tts.hybrid"))
}

// loadVoiceCatalog seeds the registry from the edge provider's catalog
// (always available, no credentials required). Only the edge catalog is
// loaded; other providers' voices are not added to the registry, even when
// their credentials are configured.
func loadVoiceCatalog(ctx context.Context, appLog *logging.Logger) []voice.Voice {
	var out []voice.Voice
	edge := tts.NewEdgeProvider(audioDir(), appLog.Component("tts.edge"))
	if list, err := edge.ListVoices(ctx, true); err == nil {
		for _, v := range list {
			out = append(out, voice.Voice{
				ID:               "edge:" + v.ID,
				DisplayName:      v.Name,
				ProviderTag:      "edge",
				ProviderVoiceRef: v.ID,
				Enabled:          true,
			})
		}
	}
	return out
}

func buildSlotTable(cfg *config.Config) []avatar.Slot {
	rows := cfg.AvatarRowConfig
	if len(rows) == 0 {
		rows = []int{6, 6}
	}

	var slots []avatar.Slot
	ordinal := 0
	for rowIdx, count := range rows {
		if count <= 0 {
			continue
		}
		yPos := 0.0
		if len(rows) > 1 {
			yPos = float64(rowIdx) / float64(len(rows)-1)
		}
		for col := 0; col < count; col++ {
			xPos := 0.0
			if count > 1 {
				xPos = float64(col) / float64(count-1)
			}
			slots = append(slots, avatar.Slot{
				SlotID:       fmt.Sprintf("slot-%d-%d", rowIdx, col),
				OrdinalIndex: ordinal,
				XPos:         xPos,
				YPos:         yPos,
				Size:         1.0 / float64(len(rows)),
			})
			ordinal++
		}
	}
	return slots
}

func startChatSources(ctx context.Context, cfg *config.Config, appLog *logging.Logger, orch *orchestrator.Orchestrator) {
	if cfg.Twitch.Channel != "" && cfg.Twitch.OAuthToken != "" {
		twitchAdapter := chatsource.NewTwitchAdapter(cfg.Twitch, appLog.Component("twitch"))
		go twitchAdapter.RunWithReconnect(ctx, func(e chatsource.Event) {
			orch.HandleEvent(ctx, toOrchestratorEvent(e))
		})
	}

	if cfg.YouTube.APIKey != "" {
		youtubeAdapter := chatsource.NewYouTubeAdapter(cfg.YouTube, appLog.Component("youtube"))
		go func() {
			if err := youtubeAdapter.Run(ctx, func(e chatsource.Event) {
				orch.HandleEvent(ctx, toOrchestratorEvent(e))
			}); err != nil {
				appLog.Error("main", "youtube adapter stopped", err, nil)
			}
		}()
	}
}

func toOrchestratorEvent(e chatsource.Event) orchestrator.ChatEvent {
	return orchestrator.ChatEvent{
		Type:        e.Type,
		User:        e.User,
		Text:        e.Text,
		EventType:   e.EventType,
		SourceTags:  e.SourceTags,
		TargetUser:  e.TargetUser,
		BanDuration: e.BanDuration,
	}
}

func audioDir() string {
	dir, err := config.GetConfigDir()
	if err != nil {
		return os.TempDir()
	}
	return dir + "/audio"
}
