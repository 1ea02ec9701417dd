package decorator

import (
	"context"
	"fmt"

	"github.com/architeacher/svc-event-bus/internal/infrastructure"
)

type (
	commandLoggingDecorator[C any, R any] struct {
		base   CommandHandler[C, R]
		logger infrastructure.Logger
	}

	queryLoggingDecorator[Q any, R any] struct {
		base   QueryHandler[Q, R]
		logger infrastructure.Logger
	}
)

func (d commandLoggingDecorator[C, R]) Handle(ctx context.Context, cmd C) (result R, err error) {
	logger := d.logger.With().
		Str("command", generateActionName(cmd)).
		Str("command_body", fmt.Sprintf("%#v", cmd)).
		Logger()

	logger.Debug().Msg("executing command")

	defer func() {
		if err != nil {
			logger.Error().Err(err).Msg("failed to execute command")

			return
		}

		logger.Debug().Msg("command executed successfully")
	}()

	return d.base.Handle(ctx, cmd)
}

func (d queryLoggingDecorator[Q, R]) Execute(ctx context.Context, query Q) (result R, err error) {
	logger := d.logger.With().
		Str("query", generateActionName(query)).
		Str("query_body", fmt.Sprintf("%#v", query)).
		Logger()

	logger.Debug().Msg("executing query")

	defer func() {
		if err != nil {
			logger.Error().Err(err).Msg("failed to execute query")

			return
		}

		logger.Debug().Msg("query executed successfully")
	}()

	return d.base.Execute(ctx, query)
}
