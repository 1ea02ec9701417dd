package decorator

import (
	"context"
	"fmt"
	"time"
)

const (
	KindCommands = "commands"
	KindQueries  = "queries"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type (
	commandMetricsDecorator[C any, R any] struct {
		base   CommandHandler[C, R]
		client MetricsClient
	}

	queryMetricsDecorator[Q any, R any] struct {
		base   QueryHandler[Q, R]
		client MetricsClient
	}
)

func (d commandMetricsDecorator[C, R]) Handle(ctx context.Context, cmd C) (result R, err error) {
	start := time.Now()

	defer func() {
		d.client.Inc(MetricKey(KindCommands, generateActionName(cmd), err), int(time.Since(start).Milliseconds()))
	}()

	return d.base.Handle(ctx, cmd)
}

func (d queryMetricsDecorator[Q, R]) Execute(ctx context.Context, query Q) (result R, err error) {
	start := time.Now()

	defer func() {
		d.client.Inc(MetricKey(KindQueries, generateActionName(query), err), int(time.Since(start).Milliseconds()))
	}()

	return d.base.Execute(ctx, query)
}

// MetricKey has the form <kind>.<action>.<outcome>; the value reported with it is the duration in milliseconds.
func MetricKey(kind, action string, err error) string {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}

	return fmt.Sprintf("%s.%s.%s", kind, action, outcome)
}
