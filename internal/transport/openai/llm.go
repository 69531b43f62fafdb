package openai

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/classpeak/searchcore/internal/domain"
)

const locationSystemPrompt = `You resolve informal location references to known neighborhood names.
Given a location text and the original search query for context, reply with JSON:
{"neighborhoods": ["<name>", ...], "confidence": <0..1>}
List every neighborhood the text could mean. Reply with an empty list if none match.`

// LocationLLM is the last-resort location resolution collaborator.
type LocationLLM struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// LLMConfig holds the collaborator settings.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewLocationLLM creates the collaborator client.
func NewLocationLLM(cfg *LLMConfig) *LocationLLM {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &LocationLLM{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

type locationReply struct {
	Neighborhoods []string `json:"neighborhoods"`
	Confidence    float64  `json:"confidence"`
}

// ResolveLocation asks the model for matching neighborhood names. One
// bounded attempt, no internal retry; any shape other than a list of
// strings is a malformed-upstream failure.
func (l *LocationLLM) ResolveLocation(ctx context.Context, normalized, originalQuery string) ([]string, error) {
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: locationSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(
				"Location text: %q\nOriginal query: %q", normalized, originalQuery)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("location llm call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("location llm returned no choices: %w", domain.ErrMalformedUpstream)
	}

	var reply locationReply
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &reply); err != nil {
		return nil, fmt.Errorf("location llm reply: %w", domain.ErrMalformedUpstream)
	}
	if reply.Neighborhoods == nil {
		return nil, fmt.Errorf("location llm reply missing neighborhoods: %w", domain.ErrMalformedUpstream)
	}
	return reply.Neighborhoods, nil
}
