package generator

import (
	"context"
	"strings"
	"testing"

	"github.com/xaenox/readfeed/internal/models"
)

func TestTemplateGeneratorDeterministic(t *testing.T) {
	g := NewTemplateGenerator()
	spec := TopicSpec{Category: "science", Difficulty: models.DifficultyBeginner, TargetLength: 400}

	first, err := g.Generate(context.Background(), spec)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := g.Generate(context.Background(), spec)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if first.Title != second.Title || first.Body != second.Body {
		t.Error("same spec produced different payloads")
	}
	if first.Title == "" || first.Body == "" {
		t.Error("empty payload")
	}
	if !strings.Contains(strings.ToLower(first.Title), "science") {
		t.Errorf("title %q does not mention the category", first.Title)
	}
}

func TestTemplateGeneratorApproximatesLength(t *testing.T) {
	g := NewTemplateGenerator()

	short, _ := g.Generate(context.Background(), TopicSpec{Category: "science", Difficulty: models.DifficultyBeginner, TargetLength: 300})
	long, _ := g.Generate(context.Background(), TopicSpec{Category: "science", Difficulty: models.DifficultyBeginner, TargetLength: 700})

	if len(strings.Fields(long.Body)) <= len(strings.Fields(short.Body)) {
		t.Error("longer target did not produce a longer body")
	}
}
