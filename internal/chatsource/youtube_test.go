package chatsource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestYoutubeEventType_SuperChatMapsToBits(t *testing.T) {
	assert.Equal(t, "bits", youtubeEventType("superChatEvent", false))
}

func TestYoutubeEventType_NewSponsorMapsToSub(t *testing.T) {
	assert.Equal(t, "sub", youtubeEventType("newSponsorEvent", false))
}

func TestYoutubeEventType_MemberMilestoneMapsToSub(t *testing.T) {
	assert.Equal(t, "sub", youtubeEventType("memberMilestoneChatEvent", false))
}

func TestYoutubeEventType_MembershipGiftingMapsToSub(t *testing.T) {
	assert.Equal(t, "sub", youtubeEventType("membershipGiftingEvent", false))
}

func TestYoutubeEventType_OwnerMapsToVIP(t *testing.T) {
	assert.Equal(t, "vip", youtubeEventType("textMessageEvent", true))
}

func TestYoutubeEventType_DefaultIsChat(t *testing.T) {
	assert.Equal(t, "chat", youtubeEventType("textMessageEvent", false))
}

func TestMessageTextFromSnippet_PlainText(t *testing.T) {
	assert.Equal(t, "hello", messageTextFromSnippet("textMessageEvent", "hello", ""))
}

func TestMessageTextFromSnippet_SuperChatUsesComment(t *testing.T) {
	assert.Equal(t, "nice stream", messageTextFromSnippet("superChatEvent", "", "nice stream"))
}

func TestMessageTextFromSnippet_SuperChatWithoutCommentUsesPlaceholder(t *testing.T) {
	assert.Equal(t, "[Super Chat]", messageTextFromSnippet("superChatEvent", "", ""))
}

func TestMessageTextFromSnippet_UnknownTypeUsesBracketedType(t *testing.T) {
	assert.Equal(t, "[newSponsorEvent]", messageTextFromSnippet("newSponsorEvent", "", ""))
}

func TestDedupSet_ContainsAfterAdd(t *testing.T) {
	d := newDedupSet(10)
	assert.False(t, d.contains("a"))
	d.add("a")
	assert.True(t, d.contains("a"))
}

func TestDedupSet_ClearsEntirelyWhenOverCap(t *testing.T) {
	d := newDedupSet(2)
	d.add("a")
	d.add("b")
	d.add("c") // len now 3 > cap 2, next add clears first
	assert.True(t, d.contains("c"))

	d.add("d") // len(items)==3 before this add, > 2, so the set is cleared first
	assert.False(t, d.contains("c"))
	assert.True(t, d.contains("d"))
}

func TestSleepCtx_ReturnsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	sleepCtx(ctx, 5*time.Second)
	assert.Less(t, time.Since(start), time.Second)
}
