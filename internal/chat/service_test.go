package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/dataloom/internal/ai"
	"github.com/KaramelBytes/dataloom/internal/analysis"
	"github.com/KaramelBytes/dataloom/internal/dataset"
)

type fakeCompleter struct {
	reply   string
	lastReq ai.GenerateRequest
	err     error
}

func (f *fakeCompleter) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &ai.GenerateResponse{
		Choices:   []ai.Choice{{Message: ai.Message{Role: "assistant", Content: f.reply}}},
		RequestID: "req-123",
	}, nil
}

func testResult(t *testing.T) *analysis.Result {
	t.Helper()
	tbl, err := dataset.Load(strings.NewReader("age,city\n30,NY\n40,LA\n50,NY\n"))
	require.NoError(t, err)
	res, err := analysis.Analyze(tbl, analysis.Options{TopValues: 10, TopCorrelations: 5, SampleRows: 5})
	require.NoError(t, err)
	return res
}

func TestAskAssemblesMessages(t *testing.T) {
	fc := &fakeCompleter{reply: "The mean age is 40."}
	svc := NewService(fc, Options{Model: "test-model", MaxTokens: 64}, nil)

	history := []Turn{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi, ask me about the data"},
	}
	reply, err := svc.Ask(context.Background(), testResult(t), "what is the mean age?", history)
	require.NoError(t, err)
	assert.Equal(t, "The mean age is 40.", reply.Text)
	assert.Nil(t, reply.Plot)
	assert.Equal(t, "req-123", reply.RequestID)

	req := fc.lastReq
	assert.Equal(t, "test-model", req.Model)
	require.Len(t, req.Messages, 5)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "system", req.Messages[1].Role)
	assert.Contains(t, req.Messages[1].Content, "[SCHEMA]")
	assert.Equal(t, "user", req.Messages[2].Role)
	assert.Equal(t, "assistant", req.Messages[3].Role)
	assert.Equal(t, "what is the mean age?", req.Messages[4].Content)
}

func TestAskNormalizesUnknownHistoryRoles(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	svc := NewService(fc, Options{Model: "m"}, nil)

	_, err := svc.Ask(context.Background(), testResult(t), "q", []Turn{{Role: "system", Content: "sneaky"}})
	require.NoError(t, err)
	assert.Equal(t, "user", fc.lastReq.Messages[2].Role)
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	svc := NewService(&fakeCompleter{}, Options{Model: "m"}, nil)
	_, err := svc.Ask(context.Background(), testResult(t), "   ", nil)
	assert.Error(t, err)
}

func TestAskRejectsNilResult(t *testing.T) {
	svc := NewService(&fakeCompleter{}, Options{Model: "m"}, nil)
	_, err := svc.Ask(context.Background(), nil, "q", nil)
	assert.Error(t, err)
}

func TestAskExtractsPlotAndRedacts(t *testing.T) {
	raw := "Here is the distribution. You could plot this with matplotlib for more detail.\n" +
		"```json\n{\"kind\": \"bar\", \"title\": \"Ages\", \"x\": \"age\"}\n```\n" +
		"The most common city is NY."
	fc := &fakeCompleter{reply: raw}
	svc := NewService(fc, Options{Model: "m"}, nil)

	reply, err := svc.Ask(context.Background(), testResult(t), "show ages", nil)
	require.NoError(t, err)
	require.NotNil(t, reply.Plot)
	assert.Equal(t, PlotBar, reply.Plot.Kind)
	assert.Equal(t, "age", reply.Plot.XColumn)
	assert.Equal(t, "Ages", reply.Plot.Title)
	assert.NotContains(t, reply.Text, "matplotlib")
	assert.NotContains(t, reply.Text, "```")
	assert.Contains(t, reply.Text, "Here is the distribution.")
	assert.Contains(t, reply.Text, "The most common city is NY.")
}

func TestAskLeavesToolingMentionsWithoutPlot(t *testing.T) {
	fc := &fakeCompleter{reply: "You could plot this with seaborn."}
	svc := NewService(fc, Options{Model: "m"}, nil)

	reply, err := svc.Ask(context.Background(), testResult(t), "q", nil)
	require.NoError(t, err)
	assert.Nil(t, reply.Plot)
	assert.Contains(t, reply.Text, "seaborn")
}

func TestExtractPlotSkipsInvalidBlocks(t *testing.T) {
	text := "```json\n{\"kind\": \"donut\", \"x\": \"a\"}\n```\n" +
		"```json\n{\"kind\": \"scatter\", \"x\": \"age\", \"y\": \"income\"}\n```"
	plot, rest := ExtractPlot(text)
	require.NotNil(t, plot)
	assert.Equal(t, PlotScatter, plot.Kind)
	assert.Equal(t, "income", plot.YColumn)
	assert.Contains(t, rest, "donut")
}

func TestExtractPlotRequiresXColumn(t *testing.T) {
	plot, rest := ExtractPlot("```json\n{\"kind\": \"bar\"}\n```")
	assert.Nil(t, plot)
	assert.Contains(t, rest, "bar")
}

func TestExtractPlotNoBlock(t *testing.T) {
	plot, rest := ExtractPlot("no charts here")
	assert.Nil(t, plot)
	assert.Equal(t, "no charts here", rest)
}

func TestRedactToolingMentions(t *testing.T) {
	in := "The mean is 5. Try plotly for an interactive view! Median is 4."
	out := RedactToolingMentions(in)
	assert.Contains(t, out, "The mean is 5.")
	assert.Contains(t, out, "Median is 4.")
	assert.NotContains(t, out, "plotly")
}

func TestRedactToolingMentionsKeepsCleanText(t *testing.T) {
	in := "Revenue grew 12% quarter over quarter."
	assert.Equal(t, in, RedactToolingMentions(in))
}
