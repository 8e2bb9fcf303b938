package generator

import (
	"context"
	"fmt"
	"strings"
)

// TemplateGenerator produces deterministic placeholder articles from the
// topic spec alone. It backs local development when no API key is configured
// and serves as the stub generator in tests.
type TemplateGenerator struct{}

func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

func (g *TemplateGenerator) Generate(ctx context.Context, spec TopicSpec) (*GeneratedContent, error) {
	title := fmt.Sprintf("An Introduction to %s", strings.Title(spec.Category))
	sentence := fmt.Sprintf("This %s article covers %s. ", spec.Difficulty, spec.Category)

	// Roughly hit the requested word count
	wordsPerSentence := len(strings.Fields(sentence))
	repeats := spec.TargetLength / wordsPerSentence
	if repeats < 1 {
		repeats = 1
	}

	return &GeneratedContent{
		Title: title,
		Body:  strings.TrimSpace(strings.Repeat(sentence, repeats)),
		Tags:  []string{spec.Category, string(spec.Difficulty)},
	}, nil
}
