package ai

import (
	"context"

	"placeprep/pkg/domain"
)

// ChatGenerator produces a reply for an ordered conversation.
type ChatGenerator interface {
	GenerateChat(ctx context.Context, turns []domain.ConversationTurn) (string, error)
}

// GeminiGenerator wraps GeminiClient with a fixed model and sampling config.
type GeminiGenerator struct {
	client *GeminiClient
	model  string
	cfg    GenerationConfig
}

// NewGeminiGenerator builds a Gemini-based ChatGenerator.
func NewGeminiGenerator(client *GeminiClient, model string) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: model, cfg: DefaultGenerationConfig()}
}

// GenerateChat implements ChatGenerator using Gemini.
func (g *GeminiGenerator) GenerateChat(ctx context.Context, turns []domain.ConversationTurn) (string, error) {
	return g.client.GenerateChat(ctx, g.model, turns, g.cfg)
}
