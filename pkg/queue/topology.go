package queue

import (
	"fmt"
	"maps"
	"slices"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeName is the logical name callers publish to.
type ExchangeName string

// QueueName is the logical name callers consume from.
type QueueName string

const (
	ExchangeWebhooks ExchangeName = "webhooks"
	ExchangeTask     ExchangeName = "task"

	QueueEvents   QueueName = "events"
	QueueWebhooks QueueName = "webhooks"
	QueueTask     QueueName = "task"
)

const (
	deadLetterExchangeArg = "x-dead-letter-exchange"
	topologySetupKey      = "topology"
)

type (
	ExchangeSpec struct {
		Name       string
		Kind       string
		AutoDelete bool
	}

	QueueSpec struct {
		Name string
		Args amqp.Table
	}

	BindingSpec struct {
		Queue    string
		Exchange string
		Pattern  string
	}

	// Decommission names a binding and the queue and exchange behind it that are removed once at startup.
	Decommission struct {
		Queue    string
		Exchange string
		Pattern  string
	}

	// Topology is the set of durable resources declared on every (re)connect.
	Topology struct {
		Exchanges  map[ExchangeName]ExchangeSpec
		Queues     map[QueueName]QueueSpec
		Bindings   []BindingSpec
		Prefetch   int
		Deprecated []Decommission
	}
)

// DefaultTopology returns the webhook and task topology.
func DefaultTopology() Topology {
	quorum := amqp.Table{amqp.QueueTypeArg: amqp.QueueTypeQuorum}

	return Topology{
		Exchanges: map[ExchangeName]ExchangeSpec{
			ExchangeWebhooks: {Name: "webhook_default_exchange", Kind: amqp.ExchangeTopic},
			ExchangeTask:     {Name: "lp_tasks", Kind: amqp.ExchangeTopic},
		},
		Queues: map[QueueName]QueueSpec{
			QueueEvents:   {Name: "webhook_events_queue_v1", Args: quorum},
			QueueWebhooks: {Name: "webhook_cannon_single_url_v1", Args: quorum},
			QueueTask:     {Name: "task_results_queue", Args: quorum},
		},
		Bindings: []BindingSpec{
			{Queue: "webhook_events_queue_v1", Exchange: "webhook_default_exchange", Pattern: "events.#"},
			{Queue: "webhook_cannon_single_url_v1", Exchange: "webhook_default_exchange", Pattern: "webhooks.#"},
			{Queue: "task_results_queue", Exchange: "lp_tasks", Pattern: "task.result.#"},
		},
		Prefetch: defaultPrefetch,
		Deprecated: []Decommission{
			{Queue: "webhook_delayed_queue", Exchange: "webhook_delayed_exchange", Pattern: "#"},
		},
	}
}

func (t Topology) exchangeName(name ExchangeName) (string, error) {
	spec, ok := t.Exchanges[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownExchange, name)
	}

	return spec.Name, nil
}

func (t Topology) queueName(name QueueName) (string, bool) {
	spec, ok := t.Queues[name]

	return spec.Name, ok
}

func (t Topology) prefetch() int {
	if t.Prefetch <= 0 {
		return defaultPrefetch
	}

	return t.Prefetch
}

// setup declares every queue and exchange, then binds them and applies the prefetch limit.
// amqp091 matches replies to requests by arrival order, so steps run one at a time on ch.
func (t Topology) setup(ch amqpChannel) error {
	for _, name := range slices.Sorted(maps.Keys(t.Queues)) {
		q := t.Queues[name]
		if _, err := ch.QueueDeclare(q.Name, true, false, false, false, q.Args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Name, err)
		}
	}

	for _, name := range slices.Sorted(maps.Keys(t.Exchanges)) {
		e := t.Exchanges[name]
		if err := ch.ExchangeDeclare(e.Name, e.Kind, true, e.AutoDelete, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", e.Name, err)
		}
	}

	for _, b := range t.Bindings {
		if err := ch.QueueBind(b.Queue, b.Pattern, b.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s on %s: %w", b.Queue, b.Exchange, b.Pattern, err)
		}
	}

	if err := ch.Qos(t.prefetch(), 0, false); err != nil {
		return fmt.Errorf("apply prefetch: %w", err)
	}

	return nil
}

// decommission removes deprecated resources. Each step gets its own channel since the broker
// closes a channel on any failed operation. Failures are reported and never abort the run.
func (t Topology) decommission(conn amqpConnection, logger Logger) {
	for _, d := range t.Deprecated {
		steps := []struct {
			action string
			run    func(ch amqpChannel) error
		}{
			{"unbind", func(ch amqpChannel) error {
				return ch.QueueUnbind(d.Queue, d.Pattern, d.Exchange, nil)
			}},
			{"delete queue", func(ch amqpChannel) error {
				_, err := ch.QueueDelete(d.Queue, true, true, false)

				return err
			}},
			{"delete exchange", func(ch amqpChannel) error {
				return ch.ExchangeDelete(d.Exchange, true, false)
			}},
		}

		for _, step := range steps {
			if err := onFreshChannel(conn, step.run); err != nil {
				logger.Warn().
					Err(err).
					Str("queue", d.Queue).
					Str("exchange", d.Exchange).
					Str("action", step.action).
					Msg("failed to decommission deprecated topology")

				continue
			}

			logger.Debug().
				Str("queue", d.Queue).
				Str("exchange", d.Exchange).
				Str("action", step.action).
				Msg("decommissioned deprecated topology")
		}
	}
}

func onFreshChannel(conn amqpConnection, fn func(ch amqpChannel) error) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	defer func() {
		_ = ch.Close()
	}()

	return fn(ch)
}
