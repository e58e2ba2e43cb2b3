// Package llm generates bookmark summaries and tag suggestions.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// Generator produces enrichment text. Implementations must be safe
// for concurrent use by the batch workers.
type Generator interface {
	// Summarize condenses page text into one or two sentences.
	Summarize(ctx context.Context, text string) (string, error)
	// SuggestTags proposes lowercase topic tags for the text.
	SuggestTags(ctx context.Context, text string) ([]string, error)
}

const (
	summaryPrompt = "Please summarize the following content in one or two concise sentences. " +
		"Do not output anything other than the summarisation."

	tagsPrompt = "Based on the following text, suggest 3-5 relevant tags as a single space-separated line. " +
		"Use lowercase and no numbers. Prefer single words but use '-' as a delimiter for multiple words if needed. " +
		"Output only the suggested tags, nothing else. Example: python programming distributed-systems ai"

	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 1024
	defaultMaxInput  = 8000
	maxSuggestedTags = 8
)

// tagPattern is what the prompt promises: lowercase words, optionally
// hyphenated. Anything else in the reply is conversational noise.
var tagPattern = regexp.MustCompile(`^[a-z]+(-[a-z]+)*$`)

// Config controls the Anthropic-backed generator.
type Config struct {
	APIKey        string
	Model         string
	MaxTokens     int
	MaxInputRunes int
}

// Client is a Generator backed by the Anthropic Messages API.
type Client struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	maxInput  int
	logger    *zap.Logger
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	maxInput := cfg.MaxInputRunes
	if maxInput <= 0 {
		maxInput = defaultMaxInput
	}

	return &Client{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
		maxInput:  maxInput,
		logger:    logger,
	}, nil
}

// Model reports the configured model name, used for cache keying.
func (c *Client) Model() string { return string(c.model) }

// Summarize implements Generator.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	reply, err := c.complete(ctx, summaryPrompt, text)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// SuggestTags implements Generator.
func (c *Client) SuggestTags(ctx context.Context, text string) ([]string, error) {
	reply, err := c.complete(ctx, tagsPrompt, text)
	if err != nil {
		return nil, fmt.Errorf("suggest tags: %w", err)
	}
	return parseTags(reply), nil
}

func (c *Client) complete(ctx context.Context, instruction, text string) (string, error) {
	prompt := instruction + "\n\n" + truncateRunes(text, c.maxInput)

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("messages: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(tb.Text)
		}
	}

	c.logger.Debug("llm completion",
		zap.String("model", string(c.model)),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens))

	return out.String(), nil
}

// parseTags extracts valid tags from the model's reply, preserving
// order and dropping duplicates and anything that breaks the promised
// format.
func parseTags(reply string) []string {
	var tags []string
	seen := make(map[string]struct{})
	for _, field := range strings.Fields(reply) {
		tag := strings.ToLower(strings.Trim(field, ".,"))
		if !tagPattern.MatchString(tag) {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == maxSuggestedTags {
			break
		}
	}
	return tags
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
