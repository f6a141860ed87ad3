package core

import "errors"

// Error taxonomy for the pipeline. None of these are fatal to the process:
// malformed events are dropped, store failures degrade to context-free
// processing, upstream failures surface as degraded user-facing replies, and
// queue overflow leaves a message unanswered.
var (
	// ErrMalformedEvent marks a platform event the normalizer cannot turn
	// into an InboundMessage. The event is dropped and logged by the caller.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrStoreUnavailable marks a failed context-store operation. Callers
	// proceed without context rather than aborting the response.
	ErrStoreUnavailable = errors.New("context store unavailable")

	// ErrUpstreamUnavailable marks a failed or timed-out price, search, or
	// LLM call. Surfaced to the user as a degraded message, never swallowed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrQueueOverflow marks a message dropped because its conversation's
	// queue was full. Observable to the caller, invisible to the end user.
	ErrQueueOverflow = errors.New("conversation queue overflow")
)
