package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type GPTGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

func NewGPTGenerator(apiKey string, model string, maxTokens int, temperature float64, timeout time.Duration, logger *zap.Logger) *GPTGenerator {
	return &GPTGenerator{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
		logger:      logger,
	}
}

func (g *GPTGenerator) Generate(ctx context.Context, spec TopicSpec) (*GeneratedContent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`Write a short reading article with:
- Category: %s
- Difficulty level: %s
- Approximate length: %d words
- A concise, engaging title
- 3-5 topical tags

Return the response as a JSON object with this structure:
{
    "title": "article_title",
    "body": "article_body",
    "tags": ["tag1", "tag2", ...]
}`, spec.Category, spec.Difficulty, spec.TargetLength)

	resp, err := g.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: g.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   g.maxTokens,
			Temperature: float32(g.temperature),
		},
	)
	if err != nil {
		g.logger.Error("Failed to get GPT response",
			zap.Error(err),
			zap.String("category", spec.Category))
		return nil, fmt.Errorf("generation request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("generation returned no choices")
	}

	var content GeneratedContent
	response := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(response), &content); err != nil {
		g.logger.Error("Failed to parse GPT response",
			zap.Error(err),
			zap.String("response", response))
		return nil, fmt.Errorf("invalid generation response: %w", err)
	}

	if content.Title == "" || content.Body == "" {
		return nil, fmt.Errorf("generation returned empty payload")
	}
	return &content, nil
}
