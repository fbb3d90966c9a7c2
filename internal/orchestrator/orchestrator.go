// Package orchestrator implements the Dispatch Orchestrator (C8): the
// single pipeline stitching the rate limiter, message filter, voice
// registry, TTS providers, audio filter stage, slot manager, and queue
// manager together (spec.md §4.8), grounded on tts.py's HybridTTSProvider
// dispatch loop and the teacher's mutex-protected-map-plus-callback style.
package orchestrator

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/chatvoice/internal/audiofilter"
	"github.com/normanking/chatvoice/internal/avatar"
	"github.com/normanking/chatvoice/internal/bus"
	"github.com/normanking/chatvoice/internal/config"
	"github.com/normanking/chatvoice/internal/filter"
	"github.com/normanking/chatvoice/internal/queue"
	"github.com/normanking/chatvoice/internal/tts"
	"github.com/normanking/chatvoice/internal/voice"
)

// ChatEvent is the unified inbound event shape chat source adapters (C10)
// produce (spec.md §4.10).
type ChatEvent struct {
	Type       string // "chat" | "moderation"
	User       string
	Text       string
	EventType  string // "vip" | "highlight" | "sub" | "bits" | "raid" | "chat"
	SourceTags map[string]string
	Emotes     []filter.EmoteSpan

	// Moderation-only fields.
	TargetUser  string
	BanDuration *int // nil = permanent
}

// activeJob tracks an in-flight synthesis attempt for cancellation and the
// active-jobs-map invariant (spec.md I1/I3).
type activeJob struct {
	cancel context.CancelFunc
	slotID string
}

// Orchestrator is the single entry point handleEvent(event) names in
// spec.md §4.8.
type Orchestrator struct {
	logger zerolog.Logger
	bus    *bus.EventBus

	filter *filter.Filter
	voices *voice.Registry
	slots  *avatar.Manager
	queues *queue.Manager
	hybrid *tts.Hybrid
	audio  *audiofilter.Stage

	cfgMu sync.RWMutex
	cfg   *config.Config

	jobsMu         sync.Mutex
	activeJobs     map[string]activeJob // lowercased user -> job
	activeJobCount int

	ttsEnabled bool
}

// New constructs an Orchestrator wired to its component dependencies.
func New(
	logger zerolog.Logger,
	b *bus.EventBus,
	f *filter.Filter,
	voices *voice.Registry,
	slots *avatar.Manager,
	queues *queue.Manager,
	hybrid *tts.Hybrid,
	audio *audiofilter.Stage,
	cfg *config.Config,
) *Orchestrator {
	o := &Orchestrator{
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		bus:        b,
		filter:     f,
		voices:     voices,
		slots:      slots,
		queues:     queues,
		hybrid:     hybrid,
		audio:      audio,
		cfg:        cfg,
		activeJobs: make(map[string]activeJob),
		ttsEnabled: true,
	}
	slots.SetDrainHandler(o.drainSlotQueue)
	return o
}

// SetTTSEnabled toggles the global TTS kill switch (spec.md §4.8 step 1).
func (o *Orchestrator) SetTTSEnabled(enabled bool) {
	o.jobsMu.Lock()
	o.ttsEnabled = enabled
	o.jobsMu.Unlock()
}

// ReloadConfig swaps in a new configuration snapshot, used by
// config.WatchForChanges.
func (o *Orchestrator) ReloadConfig(cfg *config.Config) {
	o.cfgMu.Lock()
	o.cfg = cfg
	o.cfgMu.Unlock()
}

func (o *Orchestrator) snapshotConfig() *config.Config {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.cfg
}

// HandleEvent is the orchestrator's single entry point (spec.md §4.8).
func (o *Orchestrator) HandleEvent(ctx context.Context, event ChatEvent) {
	if event.Type == "moderation" {
		o.handleModeration(event)
		return
	}

	o.jobsMu.Lock()
	enabled := o.ttsEnabled
	o.jobsMu.Unlock()
	if !enabled {
		return
	}

	cfg := o.snapshotConfig()

	result := o.filter.Apply(filter.Input{
		User:    event.User,
		RawText: event.Text,
		Emotes:  event.Emotes,
	}, cfg.MessageFiltering)
	if !result.Accept {
		o.logger.Debug().Str("user", event.User).Str("reason", result.Reason).Msg("message rejected by filter")
		return
	}

	lowerUser := strings.ToLower(event.User)

	if cfg.Dispatch.IgnoreIfUserSpeaking {
		o.jobsMu.Lock()
		_, speaking := o.activeJobs[lowerUser]
		o.jobsMu.Unlock()
		if speaking {
			return
		}
	}

	limit := cfg.Dispatch.ParallelMessageLimit
	o.jobsMu.Lock()
	if limit > 0 && o.activeJobCount >= limit {
		o.jobsMu.Unlock()
		if cfg.Dispatch.QueueOverflowMessages {
			o.queues.EnqueueParallel(queue.Entry{
				User:       event.User,
				Text:       result.FilteredText,
				EventType:  event.EventType,
				SourceTags: event.SourceTags,
			})
		}
		return
	}
	o.jobsMu.Unlock()

	o.admitFromVoicePick(event, result.FilteredText, cfg)
}

// admitFromVoicePick performs spec.md §4.8 step 5 onward: pick a voice,
// reserve a slot (or enqueue to the slotQueue), and spawn the synthesis
// job. It is the shared tail of HandleEvent and drainParallelQueue: a
// parallelQueue entry was already filtered and admission-checked once
// when it was first enqueued, so re-admitting it must not re-run
// filter.Apply or the ignore/parallel-cap checks a second time.
func (o *Orchestrator) admitFromVoicePick(event ChatEvent, text string, cfg *config.Config) {
	lowerUser := strings.ToLower(event.User)

	chosenVoice, err := o.voices.Pick(event.EventType, o.logUsageSummary)
	if err != nil {
		o.logger.Warn().Err(err).Msg("no voice available")
		return
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	o.jobsMu.Lock()
	o.activeJobCount++
	o.activeJobs[lowerUser] = activeJob{cancel: cancel}
	o.jobsMu.Unlock()

	slotID, ok := o.slots.Reserve(chosenVoice.ID, o.voices.EnabledIDs(), lowerUser, "", 0)
	if !ok {
		o.queues.EnqueueSlot(queue.Entry{
			User:             event.User,
			Text:             text,
			EventType:        event.EventType,
			VoiceID:          chosenVoice.ID,
			VoiceDisplayName: chosenVoice.DisplayName,
			VoiceProviderTag: chosenVoice.ProviderTag,
			VoiceRef:         chosenVoice.ProviderVoiceRef,
			SourceTags:       event.SourceTags,
		})
		return
	}

	o.jobsMu.Lock()
	j := o.activeJobs[lowerUser]
	j.slotID = slotID
	o.activeJobs[lowerUser] = j
	o.jobsMu.Unlock()

	go o.runJob(jobCtx, event, text, chosenVoice, slotID, cfg)
}

// runJob performs synthesis and optional audio filtering as a detached
// task, then broadcasts "play" or releases all resources on failure
// (spec.md §4.8 steps 7-8).
func (o *Orchestrator) runJob(ctx context.Context, event ChatEvent, text string, chosenVoice voice.Voice, slotID string, cfg *config.Config) {
	lowerUser := strings.ToLower(event.User)

	fail := func() {
		o.slots.Release(slotID)
		o.jobsMu.Lock()
		o.activeJobCount--
		delete(o.activeJobs, lowerUser)
		o.jobsMu.Unlock()
		o.drainParallelQueue()
	}

	job := tts.Job{
		JobID:       uuid.NewString(),
		User:        event.User,
		Text:        text,
		VoiceRef:    chosenVoice.ProviderVoiceRef,
		AudioFormat: cfg.Dispatch.AudioFormat,
	}
	option := tts.VoiceOption{
		ID:          chosenVoice.ID,
		DisplayName: chosenVoice.DisplayName,
		ProviderTag: chosenVoice.ProviderTag,
		VoiceRef:    chosenVoice.ProviderVoiceRef,
	}

	enabledVoices := o.voices.EnabledVoices()
	fallbackPool := make([]tts.VoiceOption, 0, len(enabledVoices))
	for _, v := range enabledVoices {
		if v.ID == chosenVoice.ID {
			continue
		}
		fallbackPool = append(fallbackPool, tts.VoiceOption{
			ID:          v.ID,
			DisplayName: v.DisplayName,
			ProviderTag: v.ProviderTag,
			VoiceRef:    v.ProviderVoiceRef,
		})
	}

	res, err := o.hybrid.Synthesize(ctx, job, option, fallbackPool)
	if err != nil {
		o.logger.Warn().Err(err).Str("user", event.User).Msg("synthesis failed")
		fail()
		return
	}

	audioPath := res.AudioPath
	duration := res.Duration
	if o.audio != nil {
		filteredPath, probed := o.audio.Apply(ctx, audioPath, cfg.AudioFilters)
		audioPath = filteredPath
		if probed != nil {
			duration = *probed
		}
	}

	// Moderation may have removed this user's active-job entry while synth
	// was in flight; discard the result cooperatively (spec.md §5).
	o.jobsMu.Lock()
	j, stillActive := o.activeJobs[lowerUser]
	o.jobsMu.Unlock()
	if !stillActive || j.slotID != slotID {
		o.slots.Release(slotID)
		return
	}

	targetSlot := map[string]any{"id": slotID}
	if slot, ok := o.slots.SlotByID(slotID); ok {
		targetSlot["x_position"] = slot.XPos
		targetSlot["y_position"] = slot.YPos
		targetSlot["size"] = slot.Size
	}

	o.bus.Publish(bus.Event{
		Type: bus.EventTypePlay,
		Data: map[string]any{
			"type":         "play",
			"user":         event.User,
			"message":      text,
			"eventType":    event.EventType,
			"audioUrl":     audioPath,
			"targetSlot":   targetSlot,
			"generationId": o.slots.GenerationID(),
			"voice": map[string]any{
				"id":       chosenVoice.ID,
				"name":     chosenVoice.DisplayName,
				"provider": chosenVoice.ProviderTag,
			},
		},
	})

	o.jobsMu.Lock()
	o.activeJobCount--
	delete(o.activeJobs, lowerUser)
	o.jobsMu.Unlock()

	o.slots.Rearm(slotID, duration)
	o.drainParallelQueue()
}

// handleModeration implements the moderation shortcut (spec.md §4.8): drop
// queued entries for the target user, cancel and release their in-flight
// job, and broadcast a stop event.
func (o *Orchestrator) handleModeration(event ChatEvent) {
	target := strings.ToLower(event.TargetUser)
	logEvent := o.logger.Info().Str("target", target)
	if event.BanDuration != nil {
		logEvent = logEvent.Int("durationSeconds", *event.BanDuration)
	}
	logEvent.Msg("moderation event received")

	o.queues.RemoveUser(target)

	o.jobsMu.Lock()
	j, ok := o.activeJobs[target]
	if ok {
		delete(o.activeJobs, target)
		o.activeJobCount--
	}
	o.jobsMu.Unlock()

	if ok {
		if j.cancel != nil {
			j.cancel()
		}
		if j.slotID != "" {
			o.slots.Release(j.slotID)
		}
	}

	o.bus.Publish(bus.Event{
		Type: bus.EventTypeStop,
		Data: map[string]any{"type": "stop", "user": event.TargetUser},
	})
}

// drainSlotQueue is invoked whenever a slot is released; it attempts to
// process the slotQueue head if a slot is now free for its voice.
func (o *Orchestrator) drainSlotQueue() {
	entry, ok := o.queues.PeekSlot()
	if !ok {
		return
	}

	slotID, ok := o.slots.Reserve(entry.VoiceID, o.voices.EnabledIDs(), strings.ToLower(entry.User), "", 0)
	if !ok {
		return
	}
	o.queues.PopSlotHead()

	cfg := o.snapshotConfig()
	jobCtx, cancel := context.WithCancel(context.Background())
	lowerUser := strings.ToLower(entry.User)
	o.jobsMu.Lock()
	// admitFromVoicePick already counted this job when it enqueued it.
	if _, counted := o.activeJobs[lowerUser]; !counted {
		o.activeJobCount++
	}
	o.activeJobs[lowerUser] = activeJob{cancel: cancel, slotID: slotID}
	o.jobsMu.Unlock()

	chosenVoice, ok := o.voices.ByID(entry.VoiceID)
	if !ok {
		chosenVoice = voice.Voice{
			ID:               entry.VoiceID,
			DisplayName:      entry.VoiceDisplayName,
			ProviderTag:      entry.VoiceProviderTag,
			ProviderVoiceRef: entry.VoiceRef,
		}
	}
	go o.runJob(jobCtx, ChatEvent{User: entry.User, EventType: entry.EventType}, entry.Text, chosenVoice, slotID, cfg)
}

// drainParallelQueue is invoked on job completion/failure; it admits the
// parallelQueue head if the parallel cap now permits it.
func (o *Orchestrator) drainParallelQueue() {
	cfg := o.snapshotConfig()
	limit := cfg.Dispatch.ParallelMessageLimit

	o.jobsMu.Lock()
	underLimit := limit <= 0 || o.activeJobCount < limit
	o.jobsMu.Unlock()
	if !underLimit {
		return
	}

	entry, ok := o.queues.DequeueParallel()
	if !ok {
		return
	}

	o.admitFromVoicePick(ChatEvent{
		Type:       "chat",
		User:       entry.User,
		Text:       entry.Text,
		EventType:  entry.EventType,
		SourceTags: entry.SourceTags,
	}, entry.Text, cfg)
}

func (o *Orchestrator) logUsageSummary(summary map[string]int) {
	ev := o.logger.Info()
	for k, v := range summary {
		ev = ev.Int(k, v)
	}
	ev.Msg("voice selection summary")
}
