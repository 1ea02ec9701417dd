package queue

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is used mainly to be able to swap the broker for a fake in tests.
//
//nolint:interfacebloat // necessary for complete AMQP channel interface
type amqpChannel interface {
	io.Closer

	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error

	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	ExchangeDelete(name string, ifUnused, noWait bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueueUnbind(name, key, exchange string, args amqp.Table) error
	QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error)
	Qos(prefetchCount, prefetchSize int, global bool) error

	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
}

type setupFunc func(ch amqpChannel) error

type setupStep struct {
	key  string
	fn   setupFunc
	refs int
}

// ChannelWrapper is the single logical channel shared by every publish and consume. The underlying
// amqp channel is swapped on reconnect and the registered setup steps are replayed on each new one.
type ChannelWrapper struct {
	logger Logger

	mutex    sync.RWMutex
	amqpChan amqpChannel
	ready    chan struct{}
	gen      uint64
	nextTag  uint64
	pending  map[uint64]chan error

	// setupMu guards steps and is held for every synchronous request on the current channel.
	// amqp091 does not keep concurrent requests on one channel apart.
	setupMu sync.Mutex
	steps   []*setupStep

	inflight chan struct{}
	done     chan struct{}
	closed   atomic.Bool
}

func newChannelWrapper(logger Logger, maxInflight int) *ChannelWrapper {
	return &ChannelWrapper{
		logger:   logger,
		ready:    make(chan struct{}),
		pending:  make(map[uint64]chan error),
		inflight: make(chan struct{}, maxInflight),
		done:     make(chan struct{}),
	}
}

// addSetup registers a step under key. A new step runs immediately when a channel is attached,
// otherwise it runs on the next attach. Registering an existing key only takes another reference.
func (ch *ChannelWrapper) addSetup(key string, fn setupFunc) error {
	ch.setupMu.Lock()
	defer ch.setupMu.Unlock()

	for _, s := range ch.steps {
		if s.key == key {
			s.refs++

			return nil
		}
	}

	ch.mutex.RLock()
	current := ch.amqpChan
	ch.mutex.RUnlock()

	if current != nil {
		if err := fn(current); err != nil {
			return err
		}
	}

	ch.steps = append(ch.steps, &setupStep{key: key, fn: fn, refs: 1})

	return nil
}

// removeSetup drops a reference to the step under key and forgets the step once unreferenced.
func (ch *ChannelWrapper) removeSetup(key string) {
	ch.setupMu.Lock()
	defer ch.setupMu.Unlock()

	for i, s := range ch.steps {
		if s.key != key {
			continue
		}

		s.refs--
		if s.refs <= 0 {
			ch.steps = append(ch.steps[:i], ch.steps[i+1:]...)
		}

		return
	}
}

func (ch *ChannelWrapper) setupKeys() []string {
	ch.setupMu.Lock()
	defer ch.setupMu.Unlock()

	keys := make([]string, 0, len(ch.steps))
	for _, s := range ch.steps {
		keys = append(keys, s.key)
	}

	return keys
}

// attach puts c in confirm mode, replays every setup step on it in registration order and makes it
// the current channel.
func (ch *ChannelWrapper) attach(c amqpChannel) error {
	if ch.closed.Load() {
		return ErrClosed
	}

	if err := c.Confirm(false); err != nil {
		return err
	}

	confirms := c.NotifyPublish(make(chan amqp.Confirmation, cap(ch.inflight)))

	ch.setupMu.Lock()
	defer ch.setupMu.Unlock()

	for _, s := range ch.steps {
		if err := s.fn(c); err != nil {
			return err
		}
	}

	ch.mutex.Lock()
	ch.amqpChan = c
	ch.gen++
	ch.nextTag = 0
	gen := ch.gen
	close(ch.ready)
	ch.mutex.Unlock()

	go ch.listenConfirms(gen, confirms)

	ch.logger.Debug().Int("setup_steps", len(ch.steps)).Msg("channel ready")

	return nil
}

// detach forgets the current channel and fails every publish still waiting for its confirmation.
func (ch *ChannelWrapper) detach() {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	if ch.amqpChan == nil {
		return
	}

	ch.amqpChan = nil
	ch.ready = make(chan struct{})
	ch.failPending(errChannelLost)
}

func (ch *ChannelWrapper) failPending(err error) {
	for tag, waiter := range ch.pending {
		waiter <- err
		delete(ch.pending, tag)
	}
}

func (ch *ChannelWrapper) listenConfirms(gen uint64, confirms <-chan amqp.Confirmation) {
	for c := range confirms {
		ch.mutex.Lock()
		if ch.gen != gen {
			ch.mutex.Unlock()

			return
		}

		waiter, ok := ch.pending[c.DeliveryTag]
		delete(ch.pending, c.DeliveryTag)
		ch.mutex.Unlock()

		if !ok {
			continue
		}

		if c.Ack {
			waiter <- nil
		} else {
			waiter <- ErrPublishNacked
		}
	}
}

func (ch *ChannelWrapper) awaitReady(ctx context.Context) (amqpChannel, error) {
	for {
		ch.mutex.RLock()
		current, ready := ch.amqpChan, ch.ready
		ch.mutex.RUnlock()

		if current != nil {
			return current, nil
		}

		select {
		case <-ready:
		case <-ch.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// publish sends msg and blocks until the broker confirms it or ctx ends.
func (ch *ChannelWrapper) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	if ch.closed.Load() {
		return ErrClosed
	}

	select {
	case ch.inflight <- struct{}{}:
	default:
		return ErrPublishRejected
	}

	defer func() {
		<-ch.inflight
	}()

	waiter := make(chan error, 1)

	for {
		current, err := ch.awaitReady(ctx)
		if err != nil {
			return err
		}

		ch.mutex.Lock()
		if ch.amqpChan != current {
			ch.mutex.Unlock()

			continue
		}

		ch.nextTag++
		tag := ch.nextTag
		ch.pending[tag] = waiter

		if err := current.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
			delete(ch.pending, tag)
			ch.nextTag--
			ch.mutex.Unlock()

			return err
		}
		ch.mutex.Unlock()

		break
	}

	select {
	case err := <-waiter:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cancel stops consumer on the current channel. It waits for any setup step in progress.
func (ch *ChannelWrapper) cancel(consumer string) error {
	return ch.request(func(c amqpChannel) error {
		return c.Cancel(consumer, false)
	})
}

// request runs fn against the current channel, serialized with setup steps. It is a no-op while
// no channel is attached.
func (ch *ChannelWrapper) request(fn setupFunc) error {
	ch.setupMu.Lock()
	defer ch.setupMu.Unlock()

	ch.mutex.RLock()
	current := ch.amqpChan
	ch.mutex.RUnlock()

	if current == nil {
		return nil
	}

	return fn(current)
}

// Close closes the current channel. The wrapper cannot be used afterwards.
func (ch *ChannelWrapper) Close() error {
	if !ch.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	close(ch.done)

	ch.mutex.Lock()
	current := ch.amqpChan
	ch.amqpChan = nil
	ch.failPending(ErrClosed)
	ch.mutex.Unlock()

	if current == nil {
		return nil
	}

	return current.Close()
}
