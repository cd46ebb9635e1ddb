package node

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kitemesh/kite/pkg/message"
	"github.com/kitemesh/kite/pkg/queue"
)

// Subscriber is the handle returned by Subscribe/SubscribeType. Each
// subscriber owns exactly one callback entry in the queue, keyed by ID,
// so several subscribers may share a topic in one process.
type Subscriber struct {
	node    *Node
	topic   string
	msgType string
	id      string
	log     *zap.SugaredLogger
	once    sync.Once
}

// SubscribeType registers a callback under a dynamic type name. The
// bridge and diagnostic tools use this path; typed code uses Subscribe.
func (n *Node) SubscribeType(ctx context.Context, topic string, queueSize int, msgType string, cb queue.Callback) (*Subscriber, error) {
	n.queue.RegisterTopic(topic)
	if queueSize > 0 {
		n.queue.SetCapacity(topic, queueSize)
	}
	id := n.queue.AddCallback(topic, cb)

	if _, err := n.rpc.Subscribe(ctx, topic, msgType, n.identity); err != nil {
		n.queue.RemoveCallback(topic, id)
		return nil, err
	}

	s := &Subscriber{
		node:    n,
		topic:   topic,
		msgType: msgType,
		id:      id,
		log:     n.log.Named("sub").With("topic", topic),
	}
	s.log.Infow("subscribed", "type", msgType)
	return s, nil
}

// Subscribe registers a typed callback for T's type name. Messages
// decoded as a different concrete type (a mismatched publisher, or the
// dynamic fallback) are re-encoded and parsed into T; a parse failure
// is logged and the message dropped.
func Subscribe[T message.Codec](ctx context.Context, n *Node, topic string, queueSize int, cb func(T)) (*Subscriber, error) {
	var zero T
	msgType := zero.TypeName()

	wrapped := func(m message.Codec) {
		if typed, ok := m.(T); ok {
			cb(typed)
			return
		}

		data, err := m.Marshal()
		if err != nil {
			n.log.Errorw("re-encode for typed subscriber failed", "topic", topic, "err", err)
			return
		}
		typed, ok := zero.New().(T)
		if !ok {
			return
		}
		if err := typed.Unmarshal(data); err != nil {
			n.log.Errorw("failed to parse message", "topic", topic, "want", msgType, "got", m.TypeName(), "err", err)
			return
		}
		cb(typed)
	}

	return n.SubscribeType(ctx, topic, queueSize, msgType, wrapped)
}

// Topic returns the subscribed topic name.
func (s *Subscriber) Topic() string { return s.topic }

// Unsubscribe removes this subscriber's callback and tells the
// coordinator. An RPC failure is logged; the local callback is removed
// regardless.
func (s *Subscriber) Unsubscribe(ctx context.Context) {
	s.once.Do(func() {
		s.node.queue.RemoveCallback(s.topic, s.id)
		if err := s.node.rpc.Unsubscribe(ctx, s.topic, s.msgType, s.node.identity); err != nil {
			s.log.Warnw("unsubscribe rpc failed", "err", err)
			return
		}
		s.log.Info("unsubscribed")
	})
}
