package chatsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/chatvoice/internal/config"
)

const (
	youtubeAPIBase         = "https://www.googleapis.com/youtube/v3"
	youtubeMinPollInterval = 15 * time.Second
	youtubeMaxPollInterval = 30 * time.Second
	youtubeQuotaBackoff    = 5 * time.Minute
	youtubeDedupCap        = 1000
)

// YouTubeAdapter polls YouTube Data API v3 liveChatMessages, grounded on
// youtube_listener.py's adaptive-polling loop.
type YouTubeAdapter struct {
	cfg    config.YouTubeConfig
	logger zerolog.Logger
	client *http.Client
}

// NewYouTubeAdapter constructs a YouTube chat adapter.
func NewYouTubeAdapter(cfg config.YouTubeConfig, logger zerolog.Logger) *YouTubeAdapter {
	return &YouTubeAdapter{
		cfg:    cfg,
		logger: logger.With().Str("component", "youtube").Logger(),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type liveBroadcastsResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			LiveChatID string `json:"liveChatId"`
		} `json:"snippet"`
	} `json:"items"`
}

// findActiveBroadcast discovers the caller's active live broadcast and
// returns its liveChatId.
func (a *YouTubeAdapter) findActiveBroadcast(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("broadcastStatus", "active")
	q.Set("mine", "true")
	q.Set("maxResults", "1")
	q.Set("key", a.cfg.APIKey)

	var resp liveBroadcastsResponse
	if err := a.getJSON(ctx, "/liveBroadcasts", q, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet.LiveChatID == "" {
		return "", fmt.Errorf("no active broadcast with a live chat found")
	}
	return resp.Items[0].Snippet.LiveChatID, nil
}

type videoDetailsResponse struct {
	Items []struct {
		LiveStreamingDetails struct {
			ActiveLiveChatID string `json:"activeLiveChatId"`
		} `json:"liveStreamingDetails"`
	} `json:"items"`
}

func (a *YouTubeAdapter) liveChatIDForVideo(ctx context.Context, videoID string) (string, error) {
	q := url.Values{}
	q.Set("part", "liveStreamingDetails")
	q.Set("id", videoID)
	q.Set("key", a.cfg.APIKey)

	var resp videoDetailsResponse
	if err := a.getJSON(ctx, "/videos", q, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].LiveStreamingDetails.ActiveLiveChatID == "" {
		return "", fmt.Errorf("video %s is not currently live", videoID)
	}
	return resp.Items[0].LiveStreamingDetails.ActiveLiveChatID, nil
}

type liveChatMessagesResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Type               string `json:"type"`
			PublishedAt        string `json:"publishedAt"`
			TextMessageDetails struct {
				MessageText string `json:"messageText"`
			} `json:"textMessageDetails"`
			SuperChatDetails struct {
				UserComment string `json:"userComment"`
			} `json:"superChatDetails"`
		} `json:"snippet"`
		AuthorDetails struct {
			DisplayName     string `json:"displayName"`
			ChannelID       string `json:"channelId"`
			IsChatOwner     bool   `json:"isChatOwner"`
			IsChatModerator bool   `json:"isChatModerator"`
			IsChatSponsor   bool   `json:"isChatSponsor"`
		} `json:"authorDetails"`
	} `json:"items"`
	NextPageToken         string `json:"nextPageToken"`
	PollingIntervalMillis int    `json:"pollingIntervalMillis"`
}

// Run resolves the live chat id (from cfg.VideoID or auto-discovery) and
// polls it until ctx is cancelled, with adaptive backoff per spec.md
// §4.10.
func (a *YouTubeAdapter) Run(ctx context.Context, onEvent func(Event)) error {
	liveChatID, err := a.resolveLiveChatID(ctx)
	if err != nil {
		return err
	}

	seen := newDedupSet(youtubeDedupCap)
	pageToken := ""
	emptyPolls := 0
	interval := youtubeMinPollInterval

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		resp, err := a.pollOnce(ctx, liveChatID, pageToken)
		if err != nil {
			if he, ok := err.(*httpStatusError); ok && he.status == 403 {
				a.logger.Warn().Msg("youtube quota exceeded, pausing")
				sleepCtx(ctx, youtubeQuotaBackoff)
				interval = youtubeMaxPollInterval
				emptyPolls = 4
				continue
			}
			a.logger.Warn().Err(err).Msg("youtube poll failed")
			sleepCtx(ctx, 15*time.Second)
			continue
		}

		newCount := 0
		for _, item := range resp.Items {
			if seen.contains(item.ID) {
				continue
			}
			seen.add(item.ID)
			newCount++

			text := messageTextFromSnippet(item.Snippet.Type, item.Snippet.TextMessageDetails.MessageText, item.Snippet.SuperChatDetails.UserComment)
			privileged := item.AuthorDetails.IsChatOwner || item.AuthorDetails.IsChatModerator || item.AuthorDetails.IsChatSponsor
			eventType := youtubeEventType(item.Snippet.Type, privileged)

			onEvent(Event{
				Type:      "chat",
				User:      item.AuthorDetails.DisplayName,
				Text:      text,
				EventType: eventType,
				SourceTags: map[string]string{
					"user_id":   item.AuthorDetails.ChannelID,
					"platform":  "youtube",
					"messageId": item.ID,
				},
			})
		}

		pageToken = resp.NextPageToken
		apiInterval := time.Duration(resp.PollingIntervalMillis) * time.Millisecond
		if apiInterval <= 0 {
			apiInterval = 6 * time.Second
		}
		base := apiInterval
		if base < youtubeMinPollInterval {
			base = youtubeMinPollInterval
		}

		if newCount == 0 {
			emptyPolls++
			if emptyPolls > 3 {
				multiplier := 1 + float64(emptyPolls-3)*0.5
				if multiplier > 3 {
					multiplier = 3
				}
				scaled := time.Duration(float64(base) * multiplier)
				if scaled > youtubeMaxPollInterval {
					scaled = youtubeMaxPollInterval
				}
				interval = scaled
			} else {
				interval = base
			}
		} else {
			emptyPolls = 0
			interval = base
		}

		sleepCtx(ctx, interval)
	}
}

func (a *YouTubeAdapter) resolveLiveChatID(ctx context.Context) (string, error) {
	if a.cfg.VideoID != "" {
		return a.liveChatIDForVideo(ctx, a.cfg.VideoID)
	}
	return a.findActiveBroadcast(ctx)
}

func (a *YouTubeAdapter) pollOnce(ctx context.Context, liveChatID, pageToken string) (*liveChatMessagesResponse, error) {
	q := url.Values{}
	q.Set("liveChatId", liveChatID)
	q.Set("part", "snippet,authorDetails")
	q.Set("key", a.cfg.APIKey)
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	var resp liveChatMessagesResponse
	if err := a.getJSON(ctx, "/liveChatMessages", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string { return fmt.Sprintf("youtube api http %d", e.status) }

func (a *YouTubeAdapter) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, youtubeAPIBase+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{status: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// messageTextFromSnippet mirrors youtube_listener.py's message_text
// extraction per event type.
func messageTextFromSnippet(msgType, textMessage, superChatComment string) string {
	switch msgType {
	case "textMessageEvent":
		return textMessage
	case "superChatEvent":
		if superChatComment == "" {
			return "[Super Chat]"
		}
		return superChatComment
	case "membershipGiftingEvent":
		return "[Membership Gift]"
	default:
		return fmt.Sprintf("[%s]", msgType)
	}
}

// youtubeEventType mirrors youtube_listener.py's _determine_event_type.
// isPrivileged is true when the author is the chat owner, a moderator or a
// sponsor; such authors' otherwise-chat messages map to "vip".
func youtubeEventType(msgType string, isPrivileged bool) string {
	switch msgType {
	case "superChatEvent":
		return "bits"
	case "newSponsorEvent", "memberMilestoneChatEvent", "membershipGiftingEvent":
		return "sub"
	}
	if isPrivileged {
		return "vip"
	}
	return "chat"
}

type dedupSet struct {
	maxSize int
	items   map[string]struct{}
}

func newDedupSet(maxSize int) *dedupSet {
	return &dedupSet{maxSize: maxSize, items: make(map[string]struct{})}
}

func (d *dedupSet) contains(id string) bool {
	_, ok := d.items[id]
	return ok
}

func (d *dedupSet) add(id string) {
	if len(d.items) > d.maxSize {
		d.items = make(map[string]struct{})
	}
	d.items[id] = struct{}{}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
