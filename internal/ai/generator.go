package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/chyiyaqing/trendbot/internal/config"
	"github.com/chyiyaqing/trendbot/internal/synth"
)

// Chatter is a single-turn chat back-end.
type Chatter interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// NewChatter picks the back-end named by cfg.Provider.
func NewChatter(ctx context.Context, cfg config.LLMConfig) (Chatter, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		return NewClient(cfg.Address, cfg.Model, cfg.Username, cfg.Password), nil
	case "openai":
		return NewEinoChat(ctx, cfg.Address, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q (use ollama or openai)", cfg.Provider)
	}
}

// Generator implements synth.Provider on top of a Chatter.
type Generator struct {
	chat Chatter
}

var _ synth.Provider = (*Generator)(nil)

func NewGenerator(chat Chatter) *Generator {
	return &Generator{chat: chat}
}

// GenerateCopy returns the cleaned JSON text of the copy response.
func (g *Generator) GenerateCopy(ctx context.Context, pc synth.PromptContext) (string, error) {
	resp, err := g.chat.Chat(ctx, pc.System, pc.Prompt)
	if err != nil {
		return "", err
	}
	return cleanResponse(resp), nil
}

func (g *Generator) GenerateConcepts(ctx context.Context, pc synth.PromptContext) (*synth.ConceptDraft, error) {
	resp, err := g.chat.Chat(ctx, pc.System, pc.Prompt)
	if err != nil {
		return nil, err
	}
	raw := cleanResponse(resp)

	var draft synth.ConceptDraft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return nil, fmt.Errorf("parse concepts: %w (raw: %s)", err, raw)
	}
	return &draft, nil
}

var codeFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*\n?(.*?)\\s*```$")

// cleanResponse strips code fences and smart quotes, then trims any chatter
// around the outermost JSON object.
func cleanResponse(s string) string {
	s = sanitizeJSON(stripCodeFence(s))
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// sanitizeJSON replaces Unicode smart quotes and other problematic characters
// that LLMs sometimes produce in JSON output with their ASCII equivalents.
func sanitizeJSON(s string) string {
	s = strings.ReplaceAll(s, "\u201c", "\"") // left double quotation mark
	s = strings.ReplaceAll(s, "\u201d", "\"") // right double quotation mark
	s = strings.ReplaceAll(s, "\u2018", "'")  // left single quotation mark
	s = strings.ReplaceAll(s, "\u2019", "'")  // right single quotation mark
	return s
}

// stripCodeFence removes markdown code fences from LLM responses.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return s
}
