package decorator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/architeacher/svc-event-bus/internal/shared/decorator"

type (
	commandTracingDecorator[C any, R any] struct {
		base   CommandHandler[C, R]
		tracer trace.Tracer
	}

	queryTracingDecorator[Q any, R any] struct {
		base   QueryHandler[Q, R]
		tracer trace.Tracer
	}
)

func (d commandTracingDecorator[C, R]) Handle(ctx context.Context, cmd C) (R, error) {
	name := generateActionName(cmd)

	ctx, span := d.tracer.Start(ctx, "command "+name,
		trace.WithAttributes(attribute.String("cqrs.kind", KindCommands)),
	)
	defer span.End()

	result, err := d.base.Handle(ctx, cmd)
	recordSpanError(span, err)

	return result, err
}

func (d queryTracingDecorator[Q, R]) Execute(ctx context.Context, query Q) (R, error) {
	name := generateActionName(query)

	ctx, span := d.tracer.Start(ctx, "query "+name,
		trace.WithAttributes(attribute.String("cqrs.kind", KindQueries)),
	)
	defer span.End()

	result, err := d.base.Execute(ctx, query)
	recordSpanError(span, err)

	return result, err
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
