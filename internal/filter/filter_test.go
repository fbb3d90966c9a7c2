package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/normanking/chatvoice/internal/config"
	"github.com/normanking/chatvoice/internal/ratelimit"
)

func baseConfig() config.MessageFilteringConfig {
	return config.MessageFilteringConfig{
		EnableCommandFilter: true,
		CommandPrefix:       "!",
		StripEmotes:         true,
		MinMessageLength:    1,
		MaxMessageLength:    300,
		RateMaxMessages:     5,
		RateWindowSeconds:   10,
	}
}

func TestApply_RejectsCommandPrefix(t *testing.T) {
	f := New(ratelimit.New(0))
	r := f.Apply(Input{User: "alice", RawText: "!skip"}, baseConfig())
	assert.False(t, r.Accept)
}

func TestApply_StripsEmotesAndCollapsesWhitespace(t *testing.T) {
	f := New(ratelimit.New(0))
	in := Input{
		User:    "alice",
		RawText: "hello Kappa world",
		Emotes:  []EmoteSpan{{Start: 6, End: 11}},
	}
	r := f.Apply(in, baseConfig())
	assert.True(t, r.Accept)
	assert.Equal(t, "hello world", r.FilteredText)
}

func TestApply_RejectsEmptyAfterStrip(t *testing.T) {
	f := New(ratelimit.New(0))
	in := Input{User: "alice", RawText: "Kappa", Emotes: []EmoteSpan{{Start: 0, End: 5}}}
	r := f.Apply(in, baseConfig())
	assert.False(t, r.Accept)
}

func TestApply_RejectsTooLong(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxMessageLength = 5
	f := New(ratelimit.New(0))
	r := f.Apply(Input{User: "alice", RawText: "this is too long"}, cfg)
	assert.False(t, r.Accept)
}

func TestApply_UserBlockList(t *testing.T) {
	cfg := baseConfig()
	cfg.UserFilters = []config.UserFilter{{User: "mallory", Action: "block"}}
	f := New(ratelimit.New(0))
	r := f.Apply(Input{User: "Mallory", RawText: "hi"}, cfg)
	assert.False(t, r.Accept)
}

func TestApply_AllowOnlyRejectsUnlisted(t *testing.T) {
	cfg := baseConfig()
	cfg.UserFilters = []config.UserFilter{{User: "vip1", Action: "allow"}}
	f := New(ratelimit.New(0))
	r := f.Apply(Input{User: "randomuser", RawText: "hi"}, cfg)
	assert.False(t, r.Accept)

	r2 := f.Apply(Input{User: "vip1", RawText: "hi"}, cfg)
	assert.True(t, r2.Accept)
}

func TestApply_RateLimit(t *testing.T) {
	cfg := baseConfig()
	cfg.RateMaxMessages = 2
	cfg.RateWindowSeconds = 10
	f := New(ratelimit.New(0))

	assert.True(t, f.Apply(Input{User: "spam", RawText: "one"}, cfg).Accept)
	assert.True(t, f.Apply(Input{User: "spam", RawText: "two"}, cfg).Accept)
	assert.False(t, f.Apply(Input{User: "spam", RawText: "three"}, cfg).Accept)
}

func TestApply_Blocklist(t *testing.T) {
	cfg := baseConfig()
	cfg.Blocklist = []string{"badword"}
	f := New(ratelimit.New(0))
	r := f.Apply(Input{User: "alice", RawText: "this has a BadWord in it"}, cfg)
	assert.False(t, r.Accept)
}

func TestApply_IdempotentOnAcceptedText(t *testing.T) {
	f := New(ratelimit.New(0))
	cfg := baseConfig()
	r1 := f.Apply(Input{User: "alice", RawText: "hello   there"}, cfg)
	r2 := f.Apply(Input{User: "alice2", RawText: r1.FilteredText}, cfg)
	assert.Equal(t, r1.FilteredText, r2.FilteredText)
}
