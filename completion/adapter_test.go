package completion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"sales-portal/domain"
)

type stubCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func TestGenerateScriptCleansOutput(t *testing.T) {
	exporter := setupTestTracer(t)
	stub := &stubCompleter{reply: "Script: Hi Ann, the new TV is here. Would you like more options?"}
	a := NewAdapter(stub, nil)

	got, err := a.GenerateScript(context.Background(), "Ann wants a TV", "Promote the spring sale")
	require.NoError(t, err)
	assert.Equal(t, "Hi Ann, the new TV is here.", got)
	require.Len(t, stub.prompts, 1)
	assert.Contains(t, stub.prompts[0], "Ann wants a TV")
	assert.Contains(t, stub.prompts[0], "Promote the spring sale")

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "completion.script", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
}

func TestGenerateScriptRequiresDescription(t *testing.T) {
	stub := &stubCompleter{}
	_, err := NewAdapter(stub, nil).GenerateScript(context.Background(), "  ", "x")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, stub.prompts)
}

func TestGenerateScriptUpstreamFailure(t *testing.T) {
	exporter := setupTestTracer(t)
	logger, hook := test.NewNullLogger()
	stub := &stubCompleter{err: errors.Join(domain.ErrUpstream, errors.New("502"))}

	_, err := NewAdapter(stub, logger).GenerateScript(context.Background(), "Ann", "")
	assert.ErrorIs(t, err, domain.ErrUpstream)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "completion request failed", hook.LastEntry().Message)
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestGenerateScriptEmptyAfterCleanup(t *testing.T) {
	stub := &stubCompleter{reply: "Script: ✨ Let me know if you want changes!"}
	_, err := NewAdapter(stub, nil).GenerateScript(context.Background(), "Ann", "")
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestGenerateKeywords(t *testing.T) {
	stub := &stubCompleter{reply: "Sure!\nPersonal Factors:\n* Budget conscious\nProduct Factors:\n1. Battery life"}
	got, err := NewAdapter(stub, nil).GenerateKeywords(context.Background(), "Hi Ann", "")
	require.NoError(t, err)
	assert.Equal(t, Keywords{PersonalFactors: []string{"Budget conscious"}, ProductKeywords: []string{"Battery life"}}, got)
	assert.True(t, strings.Contains(stub.prompts[0], "Hi Ann"))

	_, err = NewAdapter(stub, nil).GenerateKeywords(context.Background(), "", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
