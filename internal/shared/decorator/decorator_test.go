package decorator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/shared/decorator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type (
	mockMetricsClient struct {
		mock.Mock
	}

	ReleaseFundsCommand struct {
		Amount int
	}

	ListFundsQuery struct{}

	commandHandler struct {
		err error
	}

	queryHandler struct{}
)

func (m *mockMetricsClient) Inc(key string, value int) {
	m.Called(key, value)
}

func (h commandHandler) Handle(_ context.Context, cmd ReleaseFundsCommand) (int, error) {
	return cmd.Amount * 2, h.err
}

func (h queryHandler) Execute(_ context.Context, _ ListFundsQuery) ([]string, error) {
	return []string{"a", "b"}, nil
}

func TestApplyCommandDecorators(t *testing.T) {
	t.Parallel()

	errHandler := errors.New("boom")

	testCases := []struct {
		name        string
		handlerErr  error
		expectedKey string
	}{
		{
			name:        "success is reported",
			expectedKey: "commands.ReleaseFundsCommand.success",
		},
		{
			name:        "failure is reported",
			handlerErr:  errHandler,
			expectedKey: "commands.ReleaseFundsCommand.failure",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := new(mockMetricsClient)
			client.On("Inc", tc.expectedKey, mock.AnythingOfType("int")).Once()

			handler := decorator.ApplyCommandDecorators[ReleaseFundsCommand, int](
				commandHandler{err: tc.handlerErr},
				infrastructure.NewTestLogger(),
				noop.NewTracerProvider(),
				client,
			)

			result, err := handler.Handle(context.Background(), ReleaseFundsCommand{Amount: 21})

			if tc.handlerErr != nil {
				require.ErrorIs(t, err, tc.handlerErr)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, 42, result)
			client.AssertExpectations(t)
		})
	}
}

func TestApplyQueryDecorators(t *testing.T) {
	t.Parallel()

	client := new(mockMetricsClient)
	client.On("Inc", "queries.ListFundsQuery.success", mock.AnythingOfType("int")).Once()

	handler := decorator.ApplyQueryDecorators[ListFundsQuery, []string](
		queryHandler{},
		infrastructure.NewTestLogger(),
		noop.NewTracerProvider(),
		client,
	)

	result, err := handler.Execute(context.Background(), ListFundsQuery{})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, result)
	client.AssertExpectations(t)
}

func TestMetricKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "commands.Deliver.success", decorator.MetricKey(decorator.KindCommands, "Deliver", nil))
	assert.Equal(t, "queries.Fetch.failure", decorator.MetricKey(decorator.KindQueries, "Fetch", errors.New("x")))
}
