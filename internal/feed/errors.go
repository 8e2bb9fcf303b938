package feed

import "errors"

var (
	// ErrFeedExhausted means the feed has no content left to serve. Callers
	// are expected to fall back to on-demand generation.
	ErrFeedExhausted = errors.New("feed: exhausted")
	// ErrNoValidContent means every queued id was a dangling reference.
	ErrNoValidContent = errors.New("feed: no valid content")
	// ErrGenerationFailed means the upstream generator produced zero items
	// and no previous feed could be reused.
	ErrGenerationFailed = errors.New("feed: generation failed")
)
