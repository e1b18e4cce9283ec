// Package chat glues dataset analysis to the hosted completion service: it
// serializes an analysis result into prompt context, relays the user's
// question, and post-processes the reply.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/dataloom/internal/ai"
	"github.com/KaramelBytes/dataloom/internal/analysis"
)

const systemPrompt = `You are a data analyst assistant. You are given a summary of an uploaded
dataset: schema, per-column statistics, correlations, and a few sample rows.
Answer the user's questions about the dataset using only this summary.
When a chart would help, emit exactly one fenced json block describing it with
fields: kind (bar|line|scatter|histogram|pie), title, x, and optionally y.`

// Options tunes the completion request.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Completer is the slice of the ai.Client the service needs; narrowed for tests.
type Completer interface {
	Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error)
}

// Service answers dataset questions through a completion backend.
type Service struct {
	client Completer
	opts   Options
	log    *zap.Logger
}

// NewService wires a completion client. A nil logger defaults to zap.NewNop.
func NewService(client Completer, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{client: client, opts: opts, log: log}
}

// Turn is one prior exchange in the conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply carries the post-processed completion text and, when the model
// emitted one, the extracted plot payload.
type Reply struct {
	Text      string       `json:"reply"`
	Plot      *PlotPayload `json:"plot,omitempty"`
	RequestID string       `json:"-"`
}

// Ask serializes the analysis result as structured text, forwards the
// question with any prior turns, and post-processes the completion output.
func (s *Service) Ask(ctx context.Context, result *analysis.Result, question string, history []Turn) (*Reply, error) {
	if result == nil {
		return nil, fmt.Errorf("analysis result is required")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}

	messages := make([]ai.Message, 0, len(history)+3)
	messages = append(messages, ai.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, ai.Message{Role: "system", Content: result.Markdown()})
	for _, t := range history {
		role := t.Role
		if role != "assistant" {
			role = "user"
		}
		messages = append(messages, ai.Message{Role: role, Content: t.Content})
	}
	messages = append(messages, ai.Message{Role: "user", Content: question})

	resp, err := s.client.Generate(ctx, ai.GenerateRequest{
		Model:       s.opts.Model,
		Messages:    messages,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	text := resp.Text()
	s.log.Debug("completion received",
		zap.String("request_id", resp.RequestID),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	plot, text := ExtractPlot(text)
	if plot != nil {
		text = RedactToolingMentions(text)
	}
	return &Reply{Text: strings.TrimSpace(text), Plot: plot, RequestID: resp.RequestID}, nil
}

// PlotKind discriminates the chart shapes the frontend can render.
type PlotKind string

const (
	PlotBar       PlotKind = "bar"
	PlotLine      PlotKind = "line"
	PlotScatter   PlotKind = "scatter"
	PlotHistogram PlotKind = "histogram"
	PlotPie       PlotKind = "pie"
)

func (k PlotKind) valid() bool {
	switch k {
	case PlotBar, PlotLine, PlotScatter, PlotHistogram, PlotPie:
		return true
	}
	return false
}

// PlotPayload is a typed chart spec extracted from the completion output.
type PlotPayload struct {
	Kind    PlotKind `json:"kind"`
	Title   string   `json:"title,omitempty"`
	XColumn string   `json:"x"`
	YColumn string   `json:"y,omitempty"`
}

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// ExtractPlot pulls the first valid chart spec out of a fenced json block and
// returns the text with that block removed. Invalid or unknown blocks are
// left in place.
func ExtractPlot(text string) (*PlotPayload, string) {
	for _, m := range fencedJSON.FindAllStringSubmatchIndex(text, -1) {
		raw := text[m[2]:m[3]]
		var p PlotPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		if !p.Kind.valid() || p.XColumn == "" {
			continue
		}
		return &p, text[:m[0]] + text[m[1]:]
	}
	return nil, text
}

// toolingPatterns match sentences that point the user at external plotting
// tools. When the reply already carries a plot payload those sentences are
// noise, so they are dropped wholesale.
var toolingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(matplotlib|seaborn|plotly|ggplot2?|bokeh|altair|chart\.js|d3\.js)\b`),
	regexp.MustCompile(`(?i)\byou\s+(?:can|could|may)\s+(?:plot|chart|graph|visualiz)`),
	regexp.MustCompile(`(?i)\b(?:plotting|charting|visualization)\s+(?:library|tool|package)`),
}

var (
	sentenceSplit = regexp.MustCompile(`(?s)[^.!?\n]*[.!?\n]|[^.!?\n]+$`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// RedactToolingMentions removes sentences matching the fixed pattern set.
func RedactToolingMentions(text string) string {
	var b strings.Builder
	for _, sentence := range sentenceSplit.FindAllString(text, -1) {
		drop := false
		for _, re := range toolingPatterns {
			if re.MatchString(sentence) {
				drop = true
				break
			}
		}
		if !drop {
			b.WriteString(sentence)
		}
	}
	out := strings.TrimSpace(b.String())
	// collapse blank runs left behind by dropped sentences
	return blankRuns.ReplaceAllString(out, "\n\n")
}
