// Package queue implements the per-topic bounded delivery queue. The
// network layer pushes decoded messages in; a single dispatch goroutine
// drains them and invokes subscriber callbacks, so user code never runs
// on a network goroutine.
package queue

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kitemesh/kite/pkg/message"
)

// DefaultCapacity bounds a topic's queue unless overridden.
const DefaultCapacity = 1000

// Callback receives one decoded message.
type Callback func(msg message.Codec)

type subscription struct {
	id string
	fn Callback
}

// TopicQueue is a mapping of topic to bounded FIFO plus the callbacks
// registered for it. On overflow the oldest element is dropped before
// enqueue.
type TopicQueue struct {
	mu         sync.Mutex
	log        *zap.SugaredLogger
	defaultCap int
	queues     map[string][]message.Codec
	caps       map[string]int
	callbacks  map[string][]subscription
}

func New(defaultCapacity int) *TopicQueue {
	if defaultCapacity <= 0 {
		defaultCapacity = DefaultCapacity
	}
	return &TopicQueue{
		log:        zap.S().Named("queue"),
		defaultCap: defaultCapacity,
		queues:     make(map[string][]message.Codec),
		caps:       make(map[string]int),
		callbacks:  make(map[string][]subscription),
	}
}

// RegisterTopic is idempotent. Pushes to unregistered topics are
// dropped.
func (q *TopicQueue) RegisterTopic(topic string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.queues[topic]; !ok {
		q.queues[topic] = nil
		q.log.Infow("topic registered", "topic", topic)
	}
}

// SetCapacity overrides the bound for a single topic.
func (q *TopicQueue) SetCapacity(topic string, n int) {
	if n <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.caps[topic] = n
}

// AddCallback registers a callback and returns its subscription ID.
// Callbacks for a topic run in registration order.
func (q *TopicQueue) AddCallback(topic string, fn Callback) string {
	id := uuid.NewString()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.callbacks[topic] = append(q.callbacks[topic], subscription{id: id, fn: fn})
	return id
}

// RemoveCallback removes only the matching subscription, leaving other
// subscribers on the same topic untouched.
func (q *TopicQueue) RemoveCallback(topic, id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	subs := q.callbacks[topic]
	for i, s := range subs {
		if s.id == id {
			q.callbacks[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(q.callbacks[topic]) == 0 {
		delete(q.callbacks, topic)
	}
}

// UnregisterTopic drops the queue, callbacks, and capacity override.
func (q *TopicQueue) UnregisterTopic(topic string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.queues, topic)
	delete(q.callbacks, topic)
	delete(q.caps, topic)
	q.log.Infow("topic unregistered", "topic", topic)
}

// Push enqueues a message, dropping the oldest element when the topic
// is at capacity.
func (q *TopicQueue) Push(topic string, msg message.Codec) {
	q.mu.Lock()
	defer q.mu.Unlock()

	buf, ok := q.queues[topic]
	if !ok {
		q.log.Warnw("message for unregistered topic dropped", "topic", topic, "type", msg.TypeName())
		return
	}

	capacity, ok := q.caps[topic]
	if !ok {
		capacity = q.defaultCap
	}
	if len(buf) >= capacity {
		buf = buf[1:]
	}
	q.queues[topic] = append(buf, msg)
}

// DrainOne pops the oldest message of some non-empty topic and invokes
// that topic's callbacks synchronously in registration order. It
// reports whether a message was dispatched. Callbacks run outside the
// queue lock so they may subscribe or publish freely.
func (q *TopicQueue) DrainOne() bool {
	q.mu.Lock()
	var (
		msg  message.Codec
		subs []subscription
	)
	for topic, buf := range q.queues {
		if len(buf) == 0 {
			continue
		}
		msg = buf[0]
		q.queues[topic] = buf[1:]
		subs = append(subs, q.callbacks[topic]...)
		break
	}
	q.mu.Unlock()

	if msg == nil {
		return false
	}
	for _, s := range subs {
		s.fn(msg)
	}
	return true
}

// Depth returns the number of queued messages for a topic.
func (q *TopicQueue) Depth(topic string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[topic])
}
