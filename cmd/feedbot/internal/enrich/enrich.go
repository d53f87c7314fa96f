// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package enrich adds generated commentary to news items.
package enrich

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.astrophena.name/feedbot/internal/logger"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-1.5-flash"

const defaultTimeout = 30 * time.Second

// Analyzer produces a short commentary on a news item.
type Analyzer interface {
	Analyze(ctx context.Context, title, summary, source string) (string, error)
}

// AnalyzerFunc is an adapter to allow the use of ordinary functions as
// [Analyzer].
type AnalyzerFunc func(ctx context.Context, title, summary, source string) (string, error)

// Analyze calls f(ctx, title, summary, source).
func (f AnalyzerFunc) Analyze(ctx context.Context, title, summary, source string) (string, error) {
	return f(ctx, title, summary, source)
}

// Best asks a for a commentary on the item, waiting no longer than timeout
// (30 seconds if zero). It returns an empty string if a is nil or fails; the
// failure is logged, not returned.
func Best(ctx context.Context, a Analyzer, timeout time.Duration, title, summary, source string) string {
	if a == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, cmp.Or(timeout, defaultTimeout))
	defer cancel()

	analysis, err := a.Analyze(ctx, title, summary, source)
	if err != nil {
		logger.Get(ctx).WarnContext(ctx, "enrichment failed", "title", title, "error", err)
		return ""
	}
	return strings.TrimSpace(analysis)
}

var errEmptyResponse = errors.New("model returned no text")

// Gemini is an [Analyzer] backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini returns a Gemini analyzer using the given API key and model
// (DefaultModel if empty). Extra options are passed to the client.
func NewGemini(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("enrich: Gemini API key is empty")
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("enrich: creating Gemini client: %w", err)
	}
	m := client.GenerativeModel(cmp.Or(model, DefaultModel))
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemInstruction)}}
	m.SetTemperature(0.4)
	m.SetMaxOutputTokens(256)
	return &Gemini{client: client, model: m}, nil
}

const systemInstruction = `You are a technology news editor. Given a news item,
write two or three sentences explaining why it matters. Reply in the language
of the item. Use plain text only, without Markdown or HTML.`

// Analyze implements [Analyzer].
func (g *Gemini) Analyze(ctx context.Context, title, summary, source string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt(title, summary, source)))
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

// Close releases the client resources.
func (g *Gemini) Close() error { return g.client.Close() }

func prompt(title, summary, source string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Source: %s\n", cmp.Or(source, "unknown"))
	fmt.Fprintf(&sb, "Title: %s\n", title)
	if summary != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", summary)
	}
	return sb.String()
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyResponse
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", errEmptyResponse
	}
	return out, nil
}
