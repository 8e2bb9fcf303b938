package generator

import (
	"context"

	"github.com/xaenox/readfeed/internal/models"
)

// TopicSpec describes one article to generate.
type TopicSpec struct {
	Category     string
	Difficulty   models.Difficulty
	TargetLength int
}

// GeneratedContent is the raw payload returned by the upstream service.
type GeneratedContent struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

// Generator produces one content payload for a topic spec. Implementations
// carry their own timeout; callers treat any error as a single failed
// attempt and do not retry.
type Generator interface {
	Generate(ctx context.Context, spec TopicSpec) (*GeneratedContent, error)
}
