package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/autopost-agent/internal/config"
	"github.com/autopost-agent/pkg/logger"
	"github.com/autopost-agent/pkg/ratelimit"
)

// GeneratedContent is the structured generation result. A response that
// cannot be parsed into this shape is a hard failure; there is no fallback.
type GeneratedContent struct {
	XText string `json:"x_text"`
}

// BuildClient constructs an API client from a decrypted per-project key.
// Pure function, no process-wide singleton: tests and multi-tenant callers
// each get their own handle.
func BuildClient(apiKey string) anthropic.Client {
	return anthropic.NewClient(option.WithAPIKey(apiKey))
}

// Generator turns category configuration and context into finished post text
type Generator struct {
	model       string
	maxTokens   int
	temperature float64
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

// NewGenerator creates a Generator with the configured model settings
func NewGenerator(cfg config.AnthropicConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Generator {
	return &Generator{
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		rateLimiter: limiter,
		log:         log.WithComponent("ai"),
	}
}

// GeneratePost builds the prompt from params, calls the generation backend
// with the project's decrypted API key and parses the JSON response
func (g *Generator) GeneratePost(ctx context.Context, apiKey string, params GenerateParams) (*GeneratedContent, error) {
	if err := g.rateLimiter.Wait(ctx, ratelimit.LimiterAnthropic); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	if params.Now.IsZero() {
		params.Now = time.Now()
	}

	systemPrompt := BuildSystemPrompt(params) +
		"\n\nIMPORTANT: Respond ONLY with valid JSON. No markdown, no explanation, just the JSON object."
	userPrompt := BuildUserPrompt(params)

	g.log.Debug().
		Str("model", g.model).
		Str("category_id", params.Category.ID).
		Msg("Sending generation request")

	client := BuildClient(apiKey)
	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   int64(g.maxTokens),
		Temperature: anthropic.Float(g.temperature),
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(userPrompt),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generation API error: %w", err)
	}

	var response string
	for _, block := range message.Content {
		textBlock := block.AsText()
		if textBlock.Text != "" {
			response += textBlock.Text
		}
	}

	content, err := ParseGeneratedContent(response)
	if err != nil {
		return nil, err
	}

	g.log.Debug().
		Int("input_tokens", int(message.Usage.InputTokens)).
		Int("output_tokens", int(message.Usage.OutputTokens)).
		Int("text_length", len(content.XText)).
		Msg("Received generation response")

	return content, nil
}

// ParseGeneratedContent extracts the JSON object from a model response.
// Models occasionally wrap JSON in code fences despite instructions, so the
// parser tolerates surrounding text but nothing else.
func ParseGeneratedContent(response string) (*GeneratedContent, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("generation response contains no JSON object")
	}

	var content GeneratedContent
	if err := json.Unmarshal([]byte(response[start:end+1]), &content); err != nil {
		return nil, fmt.Errorf("failed to parse generation response: %w", err)
	}
	if content.XText == "" {
		return nil, fmt.Errorf("generation response missing x_text")
	}
	return &content, nil
}
