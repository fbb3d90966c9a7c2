package chatsource

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/chatvoice/internal/config"
)

func testTwitchConfig() config.TwitchConfig {
	return config.TwitchConfig{OAuthToken: "abc", Nickname: "chatvoicebot", Channel: "somechannel"}
}

func TestParseTags_ExtractsKeyValuePairs(t *testing.T) {
	tags, rest := parseTags(`@badges=vip/1;msg-id=highlighted-message :user!user@user.tmi.twitch.tv PRIVMSG #chan :hello`)
	assert.Equal(t, "vip/1", tags["badges"])
	assert.Equal(t, "highlighted-message", tags["msg-id"])
	assert.Contains(t, rest, "PRIVMSG")
}

func TestParseTags_NoTagsReturnsEmptyMap(t *testing.T) {
	tags, rest := parseTags(`:user!user@user.tmi.twitch.tv PRIVMSG #chan :hi`)
	assert.Empty(t, tags)
	assert.Equal(t, `:user!user@user.tmi.twitch.tv PRIVMSG #chan :hi`, rest)
}

func TestEventTypeFromBadges_VIPWinsOverHighlight(t *testing.T) {
	tags := map[string]string{"badges": "vip/1", "msg-id": "highlighted-message"}
	assert.Equal(t, "vip", eventTypeFromBadges(tags))
}

func TestEventTypeFromBadges_HighlightWhenNoVIPBadge(t *testing.T) {
	tags := map[string]string{"msg-id": "highlighted-message"}
	assert.Equal(t, "highlight", eventTypeFromBadges(tags))
}

func TestEventTypeFromBadges_DefaultChat(t *testing.T) {
	assert.Equal(t, "chat", eventTypeFromBadges(map[string]string{}))
}

func TestLoginFromPrefix_ExtractsUsername(t *testing.T) {
	assert.Equal(t, "alice", loginFromPrefix(":alice!alice@alice.tmi.twitch.tv PRIVMSG #chan :hi"))
}

func TestMessageFromPrivmsg_ExtractsTrailingText(t *testing.T) {
	assert.Equal(t, "hello world", messageFromPrivmsg(":alice!alice@x PRIVMSG #chan :hello world"))
}

func TestClearchatTarget_ExtractsBannedUser(t *testing.T) {
	assert.Equal(t, "baduser", clearchatTarget(":tmi.twitch.tv CLEARCHAT #chan :baduser"))
}

func TestHandleLine_UsernoticeSubMapsToSubEventType(t *testing.T) {
	a := NewTwitchAdapter(testTwitchConfig(), zerolog.Nop())
	var got Event
	a.handleLine(`@msg-id=resub;login=alice :tmi.twitch.tv USERNOTICE #chan :resub!`, func(e Event) { got = e })
	assert.Equal(t, "sub", got.EventType)
	assert.Equal(t, "alice", got.User)
}

func TestHandleLine_ClearchatWithBanDuration(t *testing.T) {
	a := NewTwitchAdapter(testTwitchConfig(), zerolog.Nop())
	var got Event
	a.handleLine(`@ban-duration=600 :tmi.twitch.tv CLEARCHAT #chan :baduser`, func(e Event) { got = e })
	require.NotNil(t, got.BanDuration)
	assert.Equal(t, 600, *got.BanDuration)
	assert.Equal(t, "moderation", got.Type)
	assert.Equal(t, "baduser", got.TargetUser)
}

func TestHandleLine_ClearchatPermanentBanHasNilDuration(t *testing.T) {
	a := NewTwitchAdapter(testTwitchConfig(), zerolog.Nop())
	var got Event
	a.handleLine(`:tmi.twitch.tv CLEARCHAT #chan :baduser`, func(e Event) { got = e })
	assert.Nil(t, got.BanDuration)
}
