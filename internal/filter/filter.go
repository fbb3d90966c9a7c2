// Package filter applies ingress policies to inbound chat events before they
// reach the dispatch orchestrator, per spec.md §4.2.
package filter

import (
	"sort"
	"strings"

	"github.com/normanking/chatvoice/internal/config"
	"github.com/normanking/chatvoice/internal/ratelimit"
)

// EmoteSpan is a half-open [Start, End) byte range within the raw text that
// the chat source has tagged as an emote and which should be stripped.
type EmoteSpan struct {
	Start int
	End   int
}

// Input is the unfiltered event handed to the filter.
type Input struct {
	User      string
	RawText   string
	Emotes    []EmoteSpan
}

// Result is the filter's verdict.
type Result struct {
	Accept       bool
	FilteredText string
	Reason       string // set when Accept is false, for debug logging only
}

// Filter applies the ordered policy chain from spec.md §4.2.
type Filter struct {
	limiter *ratelimit.Limiter
}

// New constructs a Filter backed by the given rate limiter (C1).
func New(limiter *ratelimit.Limiter) *Filter {
	return &Filter{limiter: limiter}
}

// Apply runs the full policy chain against in, using cfg as the current
// configuration snapshot. Policies run in the exact order spec.md §4.2
// prescribes: command prefix, emote stripping, length bounds, user
// allow/block, rate limit, substring blocklist.
func (f *Filter) Apply(in Input, cfg config.MessageFilteringConfig) Result {
	if cfg.EnableCommandFilter && cfg.CommandPrefix != "" && strings.HasPrefix(in.RawText, cfg.CommandPrefix) {
		return Result{Accept: false, Reason: "command prefix"}
	}

	text := in.RawText
	if cfg.StripEmotes && len(in.Emotes) > 0 {
		text = stripEmotes(text, in.Emotes)
	}
	text = collapseWhitespace(text)

	if text == "" {
		return Result{Accept: false, Reason: "empty after filtering"}
	}

	if len(text) < cfg.MinMessageLength || (cfg.MaxMessageLength > 0 && len(text) > cfg.MaxMessageLength) {
		return Result{Accept: false, Reason: "length out of bounds"}
	}

	if verdict, ok := applyUserFilters(in.User, cfg.UserFilters); ok && !verdict {
		return Result{Accept: false, Reason: "user filter"}
	}

	if f.limiter != nil && cfg.RateMaxMessages > 0 {
		if f.limiter.IsSpam(in.User, cfg.RateMaxMessages, cfg.RateWindowSeconds) {
			return Result{Accept: false, Reason: "rate limited"}
		}
	}

	lower := strings.ToLower(text)
	for _, blocked := range cfg.Blocklist {
		if blocked == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(blocked)) {
			return Result{Accept: false, Reason: "blocklist"}
		}
	}

	if f.limiter != nil {
		f.limiter.Add(in.User)
	}

	return Result{Accept: true, FilteredText: text}
}

// applyUserFilters consults the allow/block list. ok is false when no rule
// matched (no opinion); verdict is false when the message should be
// rejected.
func applyUserFilters(user string, rules []config.UserFilter) (verdict bool, ok bool) {
	lowerUser := strings.ToLower(user)
	hasAllowRules := false
	for _, r := range rules {
		if strings.EqualFold(r.Action, "allow") {
			hasAllowRules = true
		}
	}

	for _, r := range rules {
		if strings.ToLower(r.User) != lowerUser {
			continue
		}
		switch strings.ToLower(r.Action) {
		case "block":
			return false, true
		case "allow":
			return true, true
		}
	}

	if hasAllowRules {
		// Allow-only mode: users not explicitly allowed are rejected.
		return false, true
	}
	return true, false
}

func stripEmotes(text string, emotes []EmoteSpan) string {
	spans := append([]EmoteSpan(nil), emotes...)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start > spans[j].Start })

	result := text
	for _, sp := range spans {
		if sp.Start < 0 || sp.End > len(result) || sp.Start >= sp.End {
			continue
		}
		result = result[:sp.Start] + " " + result[sp.End:]
	}
	return result
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
