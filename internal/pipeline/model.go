package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cardlens/benefit-cli/internal/model"
	"github.com/cardlens/benefit-cli/pkg/anthropic"
)

// systemPrompt is shared by every pipeline's model pass. It is marked for
// prompt caching since a session repeats it across sources and pipelines.
const systemPrompt = "You extract structured credit card benefit data from bank webpage content. " +
	"You respond with valid JSON only, never prose."

// ModelConfig configures the model pass.
type ModelConfig struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	// MaxContent caps the content excerpt passed to the model, in bytes.
	MaxContent int
}

// DefaultModelConfig favors the fast model; extraction is a volume workload.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Model:      "claude-haiku-4-5-20251001",
		MaxTokens:  2000,
		MaxContent: 8000,
	}
}

// CardContext labels the card whose sources are being processed, so pages
// that mention sibling cards do not contaminate the extraction.
type CardContext struct {
	CardName string
	BankName string
}

type modelBenefit struct {
	Title       string   `json:"title"`
	Value       string   `json:"value"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Conditions  []string `json:"conditions"`
	Limitations []string `json:"limitations"`
	Merchants   []string `json:"merchants"`
	Cap         string   `json:"cap"`
}

type modelPayload struct {
	Benefits []modelBenefit `json:"benefits"`
}

// ExtractModel runs the model pass over one source. A nil client or a
// pipeline without a prompt yields nothing; callers treat that as a normal
// pattern-only run.
func (p *Pipeline) ExtractModel(ctx context.Context, client anthropic.Client, cfg ModelConfig, card CardContext, content, url, title string, now time.Time) ([]model.ExtractedBenefit, error) {
	if client == nil || p.PromptIntro == "" {
		return nil, nil
	}

	req := anthropic.MessageRequest{
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		System: []anthropic.SystemBlock{{
			Text:         systemPrompt,
			CacheControl: &anthropic.CacheControl{TTL: "5m"},
		}},
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: p.buildPrompt(cfg, card, content, url, title),
		}},
		Temperature: &cfg.Temperature,
	}
	resp, err := client.CreateMessage(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: %s model call", p.Name)
	}
	resp.Usage.LogUsage(cfg.Model, p.Name)

	return p.parseModelResponse(resp.Text(), url, title, now)
}

func (p *Pipeline) buildPrompt(cfg ModelConfig, card CardContext, content, url, title string) string {
	var b strings.Builder
	b.WriteString(p.PromptIntro)
	b.WriteString("\n\n")

	if card.CardName != "" || card.BankName != "" {
		b.WriteString("CARD CONTEXT:\n")
		if card.CardName != "" {
			fmt.Fprintf(&b, "- Card: %s\n", card.CardName)
		}
		if card.BankName != "" {
			fmt.Fprintf(&b, "- Bank: %s\n", card.BankName)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Source: %s\nURL: %s\n\nContent:\n%s\n\n", title, url, p.excerpt(content, cfg.MaxContent))

	b.WriteString(`For each benefit provide: title, value, category, description, conditions, limitations, merchants, cap.

Respond ONLY with valid JSON:
{"benefits": [{"title": "5% Cashback on Dining", "value": "5%", "category": "dining", "description": "", "conditions": ["minimum spend AED 3,000"], "limitations": [], "merchants": [], "cap": "AED 500 per month"}]}

If none found: {"benefits": []}

JSON:`)
	return b.String()
}

// parseModelResponse turns the model's JSON into benefits. A response that
// is not valid JSON after fence stripping is an error; a valid response
// with an empty benefits array is a normal no-find.
func (p *Pipeline) parseModelResponse(text, url, title string, now time.Time) ([]model.ExtractedBenefit, error) {
	var payload modelPayload
	if err := json.Unmarshal([]byte(cleanJSON(text)), &payload); err != nil {
		return nil, eris.Wrapf(err, "pipeline: %s model response", p.Name)
	}

	out := make([]model.ExtractedBenefit, 0, len(payload.Benefits))
	for _, mb := range payload.Benefits {
		mb.Title = strings.TrimSpace(mb.Title)
		if mb.Title == "" {
			continue
		}
		category := p.normalizeCategory(mb.Category)
		var tags []string
		if category != "" && category != "general" {
			tags = []string{category}
		}
		limitations := dropEmpty(mb.Limitations)
		if capText := strings.TrimSpace(mb.Cap); capText != "" {
			limitations = append(limitations, "Cap: "+capText)
		}

		value := strings.TrimSpace(mb.Value)
		var unit string
		switch {
		case strings.Contains(value, "%"):
			unit = "percent"
		case containsCurrency(value):
			unit = "AED"
		}

		out = append(out, model.ExtractedBenefit{
			ID:           p.BenefitType + "_" + shortHash(mb.Title+"_"+value+"_"+url),
			Pipeline:     p.Name,
			Type:         p.BenefitType,
			Title:        mb.Title,
			Description:  strings.TrimSpace(mb.Description),
			Category:     category,
			Value:        value,
			ValueNumeric: parseLooseNumeric(value),
			ValueUnit:    unit,
			Conditions:   dropEmpty(mb.Conditions),
			Limitations:  limitations,
			CategoryTags: tags,
			Merchants:    dropEmpty(mb.Merchants),
			SourceURL:    url,
			SourceTitle:  title,
			Method:       model.MethodModel,
			Confidence:   modelConfidence,
			ExtractedAt:  now,
		})
	}
	return out, nil
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// parseLooseNumeric pulls the first number out of a formatted value like
// "5%" or "AED 1,500".
func parseLooseNumeric(value string) *float64 {
	m := looseNumberRe.FindString(strings.ReplaceAll(value, ",", ""))
	if m == "" {
		return nil
	}
	return parseNumeric(m)
}

var looseNumberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

func dropEmpty(xs []string) []string {
	var out []string
	for _, x := range xs {
		if s := strings.TrimSpace(x); s != "" {
			out = append(out, s)
		}
	}
	return out
}
