package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeBroker is an in-memory topic broker good enough to exercise routing, publisher confirms,
// message TTL with dead-lettering, idle queue expiry, manual acknowledgements and forced
// disconnects.
type fakeBroker struct {
	mu sync.Mutex

	exchanges map[string]fakeExchange
	queues    map[string]*fakeQueue
	bindings  []BindingSpec
	conns     []*fakeConn
	calls     []string
	qos       int

	dialErr          error
	failOn           map[string]error
	withholdConfirms bool
	nackPublishes    bool

	// expiryScale shrinks x-expires so idle queues can expire within a test.
	expiryScale int64
	wrap        func(ch amqpChannel) amqpChannel

	dials     int
	published int
	acked     []string
	nacked    []string
	rejected  []string
}

type fakeExchange struct {
	kind       string
	autoDelete bool
}

type fakeQueue struct {
	name      string
	args      amqp.Table
	ready     []amqp.Delivery
	consumers []*fakeConsumer
	next      int
	used      uint64
}

type fakeConsumer struct {
	tag        string
	ch         *fakeChannel
	deliveries chan amqp.Delivery
}

type fakeUnacked struct {
	queue    string
	delivery amqp.Delivery
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		exchanges: make(map[string]fakeExchange),
		queues:    make(map[string]*fakeQueue),
		failOn:    make(map[string]error),

		expiryScale: 1,
	}
}

func (b *fakeBroker) dial(_ string, _ amqp.Config) (amqpConnection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++

	if b.dialErr != nil {
		return nil, b.dialErr
	}

	conn := &fakeConn{broker: b}
	b.conns = append(b.conns, conn)

	return conn, nil
}

func (b *fakeBroker) set(fn func(b *fakeBroker)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fn(b)
}

// dropConnections forcibly closes every client connection, like a broker restart.
func (b *fakeBroker) dropConnections() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, conn := range b.conns {
		conn.shutdownLocked(&amqp.Error{
			Code:   amqp.ConnectionForced,
			Reason: "CONNECTION_FORCED - broker forced connection closure",
			Server: true,
		})
	}

	b.conns = nil
}

// wipe forgets every exchange, queue and binding, like a fresh broker node.
func (b *fakeBroker) wipe() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.exchanges = make(map[string]fakeExchange)
	b.queues = make(map[string]*fakeQueue)
	b.bindings = nil
}

func (b *fakeBroker) hasQueue(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.queues[name]

	return ok
}

func (b *fakeBroker) queueArgs(name string) amqp.Table {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[name]; ok {
		return q.args
	}

	return nil
}

func (b *fakeBroker) hasExchange(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.exchanges[name]

	return ok
}

func (b *fakeBroker) hasBinding(queue, exchange, pattern string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Contains(b.bindings, BindingSpec{Queue: queue, Exchange: exchange, Pattern: pattern})
}

func (b *fakeBroker) ready(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[queue]; ok {
		return len(q.ready)
	}

	return 0
}

func (b *fakeBroker) publishedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.published
}

func (b *fakeBroker) dialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.dials
}

func (b *fakeBroker) callCount(prefix string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, c := range b.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}

	return n
}

func (b *fakeBroker) settlements() (acked, nacked, rejected []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.acked), slices.Clone(b.nacked), slices.Clone(b.rejected)
}

func (b *fakeBroker) recordLocked(op string, args ...any) error {
	parts := []string{op}
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}

	b.calls = append(b.calls, strings.Join(parts, " "))

	return b.failOn[op]
}

func (b *fakeBroker) routeLocked(exchange, key string, pub amqp.Publishing) {
	for _, binding := range b.bindings {
		if binding.Exchange != exchange || !RoutingKey(key).Matches(binding.Pattern) {
			continue
		}

		q, ok := b.queues[binding.Queue]
		if !ok {
			continue
		}

		b.enqueueLocked(q, amqp.Delivery{
			Headers:      pub.Headers,
			ContentType:  pub.ContentType,
			DeliveryMode: pub.DeliveryMode,
			MessageId:    pub.MessageId,
			Timestamp:    pub.Timestamp,
			Exchange:     exchange,
			RoutingKey:   key,
			Body:         pub.Body,
		})
	}
}

func (b *fakeBroker) enqueueLocked(q *fakeQueue, d amqp.Delivery) {
	if ttl, ok := messageTTL(q.args); ok {
		q.ready = append(q.ready, d)

		time.AfterFunc(ttl, func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			q.ready = slices.DeleteFunc(q.ready, func(r amqp.Delivery) bool {
				return r.MessageId == d.MessageId
			})
			b.deadLetterLocked(q, d)
		})

		return
	}

	if len(q.consumers) == 0 {
		q.ready = append(q.ready, d)

		return
	}

	consumer := q.consumers[q.next%len(q.consumers)]
	q.next++

	consumer.ch.deliveryTag++
	d.DeliveryTag = consumer.ch.deliveryTag
	d.ConsumerTag = consumer.tag
	d.Acknowledger = consumer.ch
	consumer.ch.unacked[d.DeliveryTag] = fakeUnacked{queue: q.name, delivery: d}
	consumer.deliveries <- d
}

func (b *fakeBroker) deadLetterLocked(q *fakeQueue, d amqp.Delivery) {
	dlx, _ := q.args[deadLetterExchangeArg].(string)
	if dlx == "" {
		return
	}

	b.routeLocked(dlx, d.RoutingKey, amqp.Publishing{
		Headers:      d.Headers,
		ContentType:  d.ContentType,
		DeliveryMode: d.DeliveryMode,
		MessageId:    d.MessageId,
		Timestamp:    d.Timestamp,
		Body:         d.Body,
	})
}

// touchLocked marks q as used and, when it has x-expires, deletes it once it stays unused for that
// long. Queued messages do not count as use. An expired queue takes its bindings along, and an
// auto-delete exchange goes away with its last binding.
func (b *fakeBroker) touchLocked(q *fakeQueue) {
	q.used++

	expires, ok := millisArg(q.args, amqp.QueueTTLArg)
	if !ok {
		return
	}

	used := q.used
	time.AfterFunc(expires/time.Duration(b.expiryScale), func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.queues[q.name] != q || q.used != used || len(q.consumers) > 0 {
			return
		}

		b.deleteQueueLocked(q.name)
	})
}

func (b *fakeBroker) deleteQueueLocked(name string) {
	delete(b.queues, name)

	var sources []string
	b.bindings = slices.DeleteFunc(b.bindings, func(binding BindingSpec) bool {
		if binding.Queue != name {
			return false
		}

		sources = append(sources, binding.Exchange)

		return true
	})

	for _, exchange := range sources {
		if e, ok := b.exchanges[exchange]; ok && e.autoDelete && !b.hasBindingFromLocked(exchange) {
			delete(b.exchanges, exchange)
		}
	}
}

func (b *fakeBroker) hasBindingFromLocked(exchange string) bool {
	return slices.ContainsFunc(b.bindings, func(binding BindingSpec) bool {
		return binding.Exchange == exchange
	})
}

func messageTTL(args amqp.Table) (time.Duration, bool) {
	return millisArg(args, amqp.QueueMessageTTLArg)
}

func millisArg(args amqp.Table, key string) (time.Duration, bool) {
	switch v := args[key].(type) {
	case int64:
		return time.Duration(v) * time.Millisecond, true
	case int:
		return time.Duration(v) * time.Millisecond, true
	case int32:
		return time.Duration(v) * time.Millisecond, true
	default:
		return 0, false
	}
}

func notFound(kind, name string) *amqp.Error {
	return &amqp.Error{
		Code:   amqp.NotFound,
		Reason: fmt.Sprintf("NOT_FOUND - no %s '%s' in vhost '/'", kind, name),
		Server: true,
	}
}

type fakeConn struct {
	broker   *fakeBroker
	closed   bool
	notify   []chan *amqp.Error
	channels []*fakeChannel
}

func (c *fakeConn) Channel() (amqpChannel, error) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if c.closed {
		return nil, amqp.ErrClosed
	}

	ch := &fakeChannel{
		broker:    c.broker,
		consumers: make(map[string]*fakeConsumer),
		unacked:   make(map[uint64]fakeUnacked),
	}
	c.channels = append(c.channels, ch)

	if c.broker.wrap != nil {
		return c.broker.wrap(ch), nil
	}

	return ch, nil
}

func (c *fakeConn) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if c.closed {
		close(receiver)
	} else {
		c.notify = append(c.notify, receiver)
	}

	return receiver
}

func (c *fakeConn) IsClosed() bool {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	return c.closed
}

func (c *fakeConn) Close() error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if c.closed {
		return amqp.ErrClosed
	}

	c.shutdownLocked(nil)

	return nil
}

func (c *fakeConn) shutdownLocked(reason *amqp.Error) {
	if c.closed {
		return
	}

	c.closed = true

	for _, ch := range c.channels {
		ch.shutdownLocked(reason)
	}

	notifyClosed(c.notify, reason)
	c.notify = nil
}

func notifyClosed(receivers []chan *amqp.Error, reason *amqp.Error) {
	for _, r := range receivers {
		if reason != nil {
			select {
			case r <- reason:
			default:
			}
		}

		close(r)
	}
}

type fakeChannel struct {
	broker *fakeBroker

	closed      bool
	confirming  bool
	publishTag  uint64
	deliveryTag uint64
	confirms    []chan amqp.Confirmation
	notify      []chan *amqp.Error
	consumers   map[string]*fakeConsumer
	unacked     map[uint64]fakeUnacked
}

func (ch *fakeChannel) shutdownLocked(reason *amqp.Error) {
	if ch.closed {
		return
	}

	ch.closed = true

	for _, consumer := range ch.consumers {
		ch.removeConsumerLocked(consumer)
	}

	for _, u := range ch.unacked {
		if q, ok := ch.broker.queues[u.queue]; ok {
			d := u.delivery
			d.Redelivered = true
			ch.broker.enqueueLocked(q, d)
		}
	}
	ch.unacked = nil

	for _, c := range ch.confirms {
		close(c)
	}
	ch.confirms = nil

	notifyClosed(ch.notify, reason)
	ch.notify = nil
}

func (ch *fakeChannel) removeConsumerLocked(consumer *fakeConsumer) {
	for _, q := range ch.broker.queues {
		before := len(q.consumers)
		q.consumers = slices.DeleteFunc(q.consumers, func(c *fakeConsumer) bool { return c == consumer })

		if before > 0 && len(q.consumers) == 0 {
			ch.broker.touchLocked(q)
		}
	}

	delete(ch.consumers, consumer.tag)
	close(consumer.deliveries)
}

// failLocked mimics a channel-level exception: the broker closes the channel.
func (ch *fakeChannel) failLocked(err *amqp.Error) error {
	ch.shutdownLocked(err)

	return err
}

func (ch *fakeChannel) Close() error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}

	ch.shutdownLocked(nil)

	return nil
}

func (ch *fakeChannel) Confirm(_ bool) error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}

	ch.confirming = true

	return nil
}

func (ch *fakeChannel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	if ch.closed {
		close(confirm)
	} else {
		ch.confirms = append(ch.confirms, confirm)
	}

	return confirm
}

func (ch *fakeChannel) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	if ch.closed {
		close(c)
	} else {
		ch.notify = append(ch.notify, c)
	}

	return c
}

func (ch *fakeChannel) PublishWithContext(
	_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing,
) error {
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}

	b.published++

	if ch.confirming {
		ch.publishTag++
	}

	if _, ok := b.exchanges[exchange]; !ok {
		ch.shutdownLocked(notFound("exchange", exchange))

		return nil
	}

	b.routeLocked(exchange, key, msg)

	if ch.confirming && !b.withholdConfirms {
		for _, c := range ch.confirms {
			c <- amqp.Confirmation{DeliveryTag: ch.publishTag, Ack: !b.nackPublishes}
		}
	}

	return nil
}

func (ch *fakeChannel) ExchangeDeclare(name, kind string, _, autoDelete, _, _ bool, _ amqp.Table) error {
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}

	if err := b.recordLocked("ExchangeDeclare", name); err != nil {
		return err
	}

	b.exchanges[name] = fakeExchange{kind: kind, autoDelete: autoDelete}

	return nil
}

func (ch *fakeChannel) ExchangeDelete(name string, _, _ bool) error {
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}

	if err := b.recordLocked("ExchangeDelete", name); err != nil {
		return err
	}

	if _, ok := b.exchanges[name]; !ok {
		return ch.failLocked(notFound("exchange", name))
	}

	delete(b.exchanges, name)

	return nil
}

func (ch *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return amqp.Queue{}, amqp.ErrClosed
	}

	if err := b.recordLocked("QueueDeclare", name); err != nil {
		return amqp.Queue{}, err
	}

	q, ok := b.queues[name]
	if !ok {
		q = &fakeQueue{name: name, args: args}
		b.queues[name] = q
	}

	b.touchLocked(q)

	return amqp.Queue{Name: name, Messages: len(q.ready), Consumers: len(q.consumers)}, nil
}

func (ch *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}

	if err := b.recordLocked("QueueBind", name, key, exchange); err != nil {
		return err
	}

	if _, ok := b.queues[name]; !ok {
		return ch.failLocked(notFound("queue", name))
	}

	if _, ok := b.exchanges[exchange]; !ok {
		return ch.failLocked(notFound("exchange", exchange))
	}

	binding := BindingSpec{Queue: name, Exchange: exchange, Pattern: key}
	if !slices.Contains(b.bindings, binding) {
		b.bindings = append(b.bindings, binding)
	}

	return nil
}

func (ch *fakeChannel) QueueUnbind(name, key, exchange string, _ amqp.Table) error {
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}

	if err := b.recordLocked("QueueUnbind", name, key, exchange); err != nil {
		return err
	}

	if _, ok := b.queues[name]; !ok {
		return ch.failLocked(notFound("queue", name))
	}

	b.bindings = slices.DeleteFunc(b.bindings, func(binding BindingSpec) bool {
		return binding == BindingSpec{Queue: name, Exchange: exchange, Pattern: key}
	})

	return nil
}

func (ch *fakeChannel) QueueDelete(name string, ifUnused, ifEmpty, _ bool) (int, error) {
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return 0, amqp.ErrClosed
	}

	if err := b.recordLocked("QueueDelete", name); err != nil {
		return 0, err
	}

	q, ok := b.queues[name]
	if !ok {
		return 0, ch.failLocked(notFound("queue", name))
	}

	if (ifUnused && len(q.consumers) > 0) || (ifEmpty && len(q.ready) > 0) {
		return 0, ch.failLocked(&amqp.Error{
			Code:   amqp.PreconditionFailed,
			Reason: fmt.Sprintf("PRECONDITION_FAILED - queue '%s' in use", name),
			Server: true,
		})
	}

	b.deleteQueueLocked(name)

	return len(q.ready), nil
}

func (ch *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}

	if err := b.recordLocked("Qos", prefetchCount); err != nil {
		return err
	}

	b.qos = prefetchCount

	return nil
}

func (ch *fakeChannel) Consume(
	queue, consumer string, _, _, _, _ bool, _ amqp.Table,
) (<-chan amqp.Delivery, error) {
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return nil, amqp.ErrClosed
	}

	if err := b.recordLocked("Consume", queue); err != nil {
		return nil, err
	}

	q, ok := b.queues[queue]
	if !ok {
		return nil, ch.failLocked(notFound("queue", queue))
	}

	c := &fakeConsumer{tag: consumer, ch: ch, deliveries: make(chan amqp.Delivery, 128)}
	ch.consumers[consumer] = c
	q.consumers = append(q.consumers, c)

	if _, delayed := messageTTL(q.args); !delayed {
		pending := q.ready
		q.ready = nil

		for _, d := range pending {
			b.enqueueLocked(q, d)
		}
	}

	return c.deliveries, nil
}

func (ch *fakeChannel) Cancel(consumer string, _ bool) error {
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}

	if c, ok := ch.consumers[consumer]; ok {
		ch.removeConsumerLocked(c)
	}

	return nil
}

func (ch *fakeChannel) settleLocked(tag uint64) (fakeUnacked, error) {
	if ch.closed {
		return fakeUnacked{}, amqp.ErrClosed
	}

	u, ok := ch.unacked[tag]
	if !ok {
		return fakeUnacked{}, ch.failLocked(&amqp.Error{
			Code:   amqp.PreconditionFailed,
			Reason: fmt.Sprintf("PRECONDITION_FAILED - unknown delivery tag %d", tag),
			Server: true,
		})
	}

	delete(ch.unacked, tag)

	return u, nil
}

func (ch *fakeChannel) Ack(tag uint64, _ bool) error {
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := ch.settleLocked(tag)
	if err != nil {
		return err
	}

	b.acked = append(b.acked, u.delivery.MessageId)

	return nil
}

func (ch *fakeChannel) Nack(tag uint64, _ bool, requeue bool) error {
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := ch.settleLocked(tag)
	if err != nil {
		return err
	}

	b.nacked = append(b.nacked, u.delivery.MessageId)
	b.dispose(u, requeue)

	return nil
}

func (ch *fakeChannel) Reject(tag uint64, requeue bool) error {
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := ch.settleLocked(tag)
	if err != nil {
		return err
	}

	b.rejected = append(b.rejected, u.delivery.MessageId)
	b.dispose(u, requeue)

	return nil
}

func (b *fakeBroker) dispose(u fakeUnacked, requeue bool) {
	q, ok := b.queues[u.queue]
	if !ok {
		return
	}

	if requeue {
		d := u.delivery
		d.Redelivered = true
		b.enqueueLocked(q, d)

		return
	}

	b.deadLetterLocked(q, u.delivery)
}

var errOverlappingRequests = errors.New("overlapping requests on one channel")

// serialChannel fails any synchronous request issued while another one is still outstanding on
// the same channel, the way amqp091 hands a reply to whichever caller reads it first.
type serialChannel struct {
	amqpChannel

	active   atomic.Int32
	overlaps *atomic.Int32
}

func newSerialChannel(ch amqpChannel, overlaps *atomic.Int32) *serialChannel {
	return &serialChannel{amqpChannel: ch, overlaps: overlaps}
}

func (ch *serialChannel) enter() error {
	if ch.active.Add(1) > 1 {
		ch.overlaps.Add(1)

		return errOverlappingRequests
	}

	// Widens the window another request would have to hit.
	time.Sleep(time.Millisecond)

	return nil
}

func (ch *serialChannel) leave() {
	ch.active.Add(-1)
}

func (ch *serialChannel) ExchangeDeclare(
	name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table,
) error {
	defer ch.leave()

	if err := ch.enter(); err != nil {
		return err
	}

	return ch.amqpChannel.ExchangeDeclare(name, kind, durable, autoDelete, internal, noWait, args)
}

func (ch *serialChannel) QueueDeclare(
	name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table,
) (amqp.Queue, error) {
	defer ch.leave()

	if err := ch.enter(); err != nil {
		return amqp.Queue{}, err
	}

	return ch.amqpChannel.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}

func (ch *serialChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	defer ch.leave()

	if err := ch.enter(); err != nil {
		return err
	}

	return ch.amqpChannel.QueueBind(name, key, exchange, noWait, args)
}

func (ch *serialChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	defer ch.leave()

	if err := ch.enter(); err != nil {
		return err
	}

	return ch.amqpChannel.Qos(prefetchCount, prefetchSize, global)
}

func (ch *serialChannel) Consume(
	queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table,
) (<-chan amqp.Delivery, error) {
	defer ch.leave()

	if err := ch.enter(); err != nil {
		return nil, err
	}

	return ch.amqpChannel.Consume(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
}

func (ch *serialChannel) Cancel(consumer string, noWait bool) error {
	defer ch.leave()

	if err := ch.enter(); err != nil {
		return err
	}

	return ch.amqpChannel.Cancel(consumer, noWait)
}
