package completion

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sales-portal/domain"
)

const tracerName = "sales-portal/completion"

// Adapter turns customer context into call scripts and keyword lists.
type Adapter struct {
	completer Completer
	logger    *log.Logger
}

// NewAdapter wraps a Completer. A nil logger uses the standard logrus logger.
func NewAdapter(c Completer, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Adapter{completer: c, logger: logger}
}

func scriptPrompt(customerDescription, taskInstruction string) string {
	var b strings.Builder
	b.WriteString("You are helping a sales representative prepare a phone call.\n")
	b.WriteString("Write a short, friendly call script addressed to the customer described below.\n")
	b.WriteString("Return only the script text, without a title or closing offers.\n\n")
	fmt.Fprintf(&b, "Customer:\n%s\n", strings.TrimSpace(customerDescription))
	if instr := strings.TrimSpace(taskInstruction); instr != "" {
		fmt.Fprintf(&b, "\nTask:\n%s\n", instr)
	}
	return b.String()
}

func keywordsPrompt(script, taskInstruction string) string {
	var b strings.Builder
	b.WriteString("Extract the key talking points from the call script below.\n")
	b.WriteString("Answer with two sections, each a bulleted list:\n")
	b.WriteString("Personal Factors:\nProduct Factors:\n\n")
	fmt.Fprintf(&b, "Script:\n%s\n", strings.TrimSpace(script))
	if instr := strings.TrimSpace(taskInstruction); instr != "" {
		fmt.Fprintf(&b, "\nTask:\n%s\n", instr)
	}
	return b.String()
}

// GenerateScript drafts a call script for a customer.
func (a *Adapter) GenerateScript(ctx context.Context, customerDescription, taskInstruction string) (string, error) {
	if strings.TrimSpace(customerDescription) == "" {
		return "", fmt.Errorf("%w: customer description is required", domain.ErrValidation)
	}
	raw, err := a.complete(ctx, "completion.script", scriptPrompt(customerDescription, taskInstruction))
	if err != nil {
		return "", err
	}
	script := CleanScript(raw)
	if script == "" {
		return "", fmt.Errorf("%w: completion service returned an empty script", domain.ErrUpstream)
	}
	return script, nil
}

// GenerateKeywords extracts personal and product factors from a script.
func (a *Adapter) GenerateKeywords(ctx context.Context, script, taskInstruction string) (Keywords, error) {
	if strings.TrimSpace(script) == "" {
		return Keywords{}, fmt.Errorf("%w: script is required", domain.ErrValidation)
	}
	raw, err := a.complete(ctx, "completion.keywords", keywordsPrompt(script, taskInstruction))
	if err != nil {
		return Keywords{}, err
	}
	return ParseKeywords(raw), nil
}

func (a *Adapter) complete(ctx context.Context, op, prompt string) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	out, err := a.completer.Complete(ctx, prompt)
	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.Int("completion.prompt_chars", len(prompt)),
		attribute.Int("completion.response_chars", len(out)),
	)

	entry := a.logger.WithFields(log.Fields{
		"op":         op,
		"elapsed_ms": float64(elapsed) / float64(time.Millisecond),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.WithError(err).Warn("completion request failed")
		return "", err
	}
	span.SetStatus(codes.Ok, "")
	entry.Debug("completion request finished")
	return out, nil
}
