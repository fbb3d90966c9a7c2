// Package chatvoiceerr defines the sentinel error kinds shared across the
// dispatch pipeline. Components wrap these with fmt.Errorf("%w: ...") rather
// than returning ad-hoc strings, so callers can classify failures with
// errors.Is.
package chatvoiceerr

import "errors"

var (
	// ErrConfig signals a missing or invalid credential, or no enabled voices.
	ErrConfig = errors.New("config error")

	// ErrFilteredOut signals a message rejected by the message filter; not
	// user-visible, logged at debug.
	ErrFilteredOut = errors.New("message filtered out")

	// ErrRateLimited signals a provider's own pacing limit was hit.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrProviderNetwork signals a transient HTTP/timeout failure talking to
	// a TTS provider.
	ErrProviderNetwork = errors.New("provider network error")

	// ErrProviderFatal signals a non-recoverable provider response (4xx other
	// than rate limit, malformed payload).
	ErrProviderFatal = errors.New("provider fatal error")

	// ErrNoSlotAvailable is not a failure; it routes the job into a queue.
	ErrNoSlotAvailable = errors.New("no avatar slot available")

	// ErrQueueOverflow signals a dropped event because overflow queueing is
	// disabled and the parallel cap was exceeded.
	ErrQueueOverflow = errors.New("queue overflow, message dropped")

	// ErrModerationCancel marks a task abandoned because of a ban/timeout;
	// never surfaced to the user.
	ErrModerationCancel = errors.New("cancelled by moderation")

	// ErrAuthExpired signals a chat adapter credential needs re-auth.
	ErrAuthExpired = errors.New("chat source auth expired")

	// ErrNoVoiceEnabled signals the voice registry has nothing to pick from.
	ErrNoVoiceEnabled = errors.New("no enabled voices")
)
