package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/mentor/internal/llm"
)

const defaultTimeout = 45 * time.Second

const describePrompt = `You are an architecture design critic looking at a student's image (sketch, plan, elevation, 3D view or photo). Your output must be ONLY a single valid JSON object. Do not include any other text, prose, or markdown.

Fields:
- "classification": {"type": "sketch|plan|elevation|section|3d|photo|other", "medium": string, "detail_level": "low|medium|high", "perspective": string, "style": string, "development_level": "conceptual|schematic|developed|detailed"}
- "spatial_analysis": {"layout": string, "circulation": string, "relationships": [string], "scale": string}
- "design_elements": [string]
- "design_intent": string
- "technical_observations": [string]
- "critique_and_suggestions": {"strengths": [string], "weaknesses": [string], "suggestions": [string]}
- "chat_summary": two sentences a tutor could say about the image
- "confidence": number between 0 and 1

Describe only what is visible. Do not invent dimensions.`

// ImageDescriber is the vision-capable model behind the port.
type ImageDescriber interface {
	DescribeImage(ctx context.Context, img llm.Image, prompt string) (string, error)
}

// Port describes artifacts, consulting the cache before the model.
type Port struct {
	model   ImageDescriber
	cache   *Cache
	timeout time.Duration
}

// New creates a Port. cache may be nil.
func New(model ImageDescriber, cache *Cache) *Port {
	return &Port{model: model, cache: cache, timeout: defaultTimeout}
}

// Describe returns the structured analysis of an image. A cached analysis
// is returned without calling the model.
func (p *Port) Describe(ctx context.Context, data []byte, mimeType string) (Analysis, error) {
	if len(data) == 0 {
		return Analysis{}, errors.New("empty image")
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	key := Key(data)
	if p.cache != nil {
		if a, ok := p.cache.Get(key); ok {
			slog.Debug("vision cache hit", "key", key)
			return a, nil
		}
	}
	if p.model == nil {
		return Analysis{}, errors.New("no vision model configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.model.DescribeImage(ctx, llm.Image{Data: data, MIMEType: mimeType}, describePrompt)
	if err != nil {
		return Analysis{}, fmt.Errorf("describing image: %w", err)
	}
	a := Parse(raw)

	if p.cache != nil {
		if err := p.cache.Put(key, a); err != nil {
			slog.Warn("vision cache write failed", "key", key, "error", err)
		}
	}
	return a, nil
}

// Parse decodes a model reply. A reply without a usable JSON object keeps
// the text as the chat summary with low confidence.
func Parse(raw string) Analysis {
	var a Analysis
	obj, ok := extractObject(raw)
	if !ok || json.Unmarshal([]byte(obj), &a) != nil {
		return Analysis{ChatSummary: strings.TrimSpace(raw), Confidence: 0.3}
	}
	a.Confidence = clamp01(a.Confidence)
	return a
}

// extractObject returns the outermost {...} span; fences and prose around
// it are ignored.
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}

// Summary renders the analysis as a short paragraph for prompts and logs.
func (a Analysis) Summary() string {
	if a.ChatSummary != "" {
		return a.ChatSummary
	}
	parts := []string{}
	if a.Classification.Type != "" {
		parts = append(parts, "a "+a.Classification.Type)
	}
	if a.DesignIntent != "" {
		parts = append(parts, "intent: "+a.DesignIntent)
	}
	if len(a.DesignElements) > 0 {
		parts = append(parts, "elements: "+strings.Join(a.DesignElements, ", "))
	}
	return strings.Join(parts, "; ")
}
