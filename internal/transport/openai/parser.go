package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/classpeak/searchcore/internal/domain"
)

const parserSystemPrompt = `You extract structured search intent from a marketplace query for
instructor-led services. Reply with JSON:
{"service": "<what is being searched>",
 "price_min": <number or null>, "price_max": <number or null>,
 "date": "<YYYY-MM-DD or null>", "date_range_end": "<YYYY-MM-DD or null>",
 "location_text": "<location phrase or empty>",
 "audience": "<kids|adults|both or empty>",
 "skill_level": "<beginner|intermediate|advanced or empty>",
 "urgency": "<high or empty>",
 "confidence": <0..1>}
Leave fields empty or null when the query does not state them. Never invent values.`

// Parser is the LLM intent extractor.
type Parser struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewParser creates the intent extractor client.
func NewParser(cfg *LLMConfig) *Parser {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Parser{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

type parsedReply struct {
	Service      string   `json:"service"`
	PriceMin     *float64 `json:"price_min"`
	PriceMax     *float64 `json:"price_max"`
	Date         *string  `json:"date"`
	DateRangeEnd *string  `json:"date_range_end"`
	LocationText string   `json:"location_text"`
	Audience     string   `json:"audience"`
	SkillLevel   string   `json:"skill_level"`
	Urgency      string   `json:"urgency"`
	Confidence   float64  `json:"confidence"`
}

// Parse extracts a structured query from free text. The orchestrator falls
// back to its own heuristic parser on any error here.
func (p *Parser) Parse(ctx context.Context, query string) (*domain.ParsedQuery, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: parserSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("parser returned no choices: %w", domain.ErrMalformedUpstream)
	}

	var reply parsedReply
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &reply); err != nil {
		return nil, fmt.Errorf("parser reply: %w", domain.ErrMalformedUpstream)
	}
	if reply.Service == "" {
		return nil, fmt.Errorf("parser reply missing service: %w", domain.ErrParseFailure)
	}

	pq := &domain.ParsedQuery{
		Service:      reply.Service,
		PriceMin:     reply.PriceMin,
		PriceMax:     reply.PriceMax,
		LocationText: reply.LocationText,
		Audience:     reply.Audience,
		SkillLevel:   reply.SkillLevel,
		Urgency:      reply.Urgency,
		Mode:         domain.ParsingModeLLM,
		Confidence:   reply.Confidence,
	}
	pq.Date = parseDay(reply.Date)
	pq.DateRangeEnd = parseDay(reply.DateRangeEnd)
	return pq, nil
}

func parseDay(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil
	}
	return &t
}
