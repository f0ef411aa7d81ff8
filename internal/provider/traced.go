package provider

import (
	"context"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"textassist/internal/failure"
	"textassist/internal/prompt"
)

type traced struct {
	next   Provider
	name   string
	tracer trace.Tracer
}

// Traced wraps p so each Process call runs in its own span. A nil tp uses
// the global tracer provider.
func Traced(p Provider, name string, tp trace.TracerProvider) Provider {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &traced{next: p, name: name, tracer: tp.Tracer("textassist/provider")}
}

func (t *traced) Process(ctx context.Context, req prompt.Request) (string, error) {
	ctx, span := t.tracer.Start(ctx, "provider.process")
	defer span.End()

	span.SetAttributes(
		attribute.String("provider.name", t.name),
		attribute.String("action", req.Action.ID()),
		attribute.String("tone", req.Tone.ID()),
		attribute.Int("text.runes", utf8.RuneCountInString(req.Text)),
	)

	text, err := t.next.Process(ctx, req)
	if err != nil {
		kind := failure.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		span.SetAttributes(attribute.String("failure.kind", kind.String()))
		return "", err
	}
	span.SetAttributes(attribute.Int("result.runes", utf8.RuneCountInString(text)))
	return text, nil
}
