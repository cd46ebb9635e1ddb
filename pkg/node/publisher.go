package node

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kitemesh/kite/pkg/message"
	"github.com/kitemesh/kite/pkg/wire"
)

const publishDialTimeout = 2 * time.Second

// RawPublisher sends framed payloads to every currently matched
// subscriber. Its targets come reactively from coordinator pushes; the
// steady-state data path never talks to the coordinator.
type RawPublisher struct {
	node    *Node
	topic   string
	msgType string
	log     *zap.SugaredLogger

	mu      sync.Mutex
	dialing map[string]struct{}
	conns   map[string]net.Conn
	closed  bool

	closeOnce sync.Once
}

// AdvertiseType registers this node as a publisher of (topic, msgType)
// and returns the publisher handle. A coordinator RPC failure here
// propagates: the registration did not happen.
func (n *Node) AdvertiseType(ctx context.Context, topic, msgType string) (*RawPublisher, error) {
	p := &RawPublisher{
		node:    n,
		topic:   topic,
		msgType: msgType,
		log:     n.log.Named("pub").With("topic", topic),
		dialing: make(map[string]struct{}),
		conns:   make(map[string]net.Conn),
	}

	if err := n.rpc.RegisterPublisher(ctx, topic, msgType, n.identity); err != nil {
		return nil, err
	}
	p.log.Infow("publisher registered", "type", msgType)
	return p, nil
}

func (p *RawPublisher) Topic() string   { return p.topic }
func (p *RawPublisher) MsgType() string { return p.msgType }

// PublishMsg serializes the payload and fans it out.
func (p *RawPublisher) PublishMsg(msg message.Codec) error {
	payload, err := msg.Marshal()
	if err != nil {
		return err
	}
	return p.PublishPayload(payload)
}

// PublishPayload frames pre-serialized bytes with this publisher's
// topic and type name and writes them to every live connection.
// Targets still connecting simply miss this publish; subsequent
// publishes reach them.
func (p *RawPublisher) PublishPayload(payload []byte) error {
	frame, err := wire.Encode(wire.Frame{Topic: p.topic, MsgType: p.msgType, Payload: payload})
	if err != nil {
		return err
	}

	targets := p.node.targets.Targets(p.topic)
	want := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		want[t.Addr()] = struct{}{}
	}

	type outConn struct {
		addr string
		conn net.Conn
	}
	var live []outConn

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	// Open clients for targets we don't have yet.
	for addr := range want {
		if _, ok := p.conns[addr]; ok {
			continue
		}
		if _, ok := p.dialing[addr]; ok {
			continue
		}
		p.dialing[addr] = struct{}{}
		go p.dial(addr)
	}
	// Drop connections whose target was removed, then snapshot the rest.
	for addr, conn := range p.conns {
		if _, ok := want[addr]; !ok {
			conn.Close() //nolint:errcheck
			delete(p.conns, addr)
			p.log.Debugw("dropped stale connection", "peer", addr)
			continue
		}
		live = append(live, outConn{addr: addr, conn: conn})
	}
	p.mu.Unlock()

	for _, c := range live {
		if _, err := c.conn.Write(frame); err != nil {
			p.log.Warnw("write failed, dropping connection", "peer", c.addr, "err", err)
			c.conn.Close() //nolint:errcheck
			p.mu.Lock()
			if cur, ok := p.conns[c.addr]; ok && cur == c.conn {
				delete(p.conns, c.addr)
			}
			p.mu.Unlock()
		}
	}
	return nil
}

// dial connects to one target; completion installs the connection into
// the live map. A connect failure is logged and dropped with no retry:
// the next publish will try again if the target is still wanted.
func (p *RawPublisher) dial(addr string) {
	conn, err := net.DialTimeout("tcp", addr, publishDialTimeout)
	if err != nil {
		p.log.Warnw("connect failed", "peer", addr, "err", err)
		p.mu.Lock()
		delete(p.dialing, addr)
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	delete(p.dialing, addr)
	if p.closed {
		p.mu.Unlock()
		conn.Close() //nolint:errcheck
		return
	}
	p.conns[addr] = conn
	p.mu.Unlock()
	p.log.Infow("connected to subscriber", "peer", addr)
}

// ConnectionCount reports live connections, for tests and diagnostics.
func (p *RawPublisher) ConnectionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Unadvertise issues UnregisterPublisher, then drops all connections.
// An RPC failure at shutdown is logged; local resources are still
// released.
func (p *RawPublisher) Unadvertise(ctx context.Context) {
	p.closeOnce.Do(func() {
		if err := p.node.rpc.UnregisterPublisher(ctx, p.topic, p.msgType, p.node.identity); err != nil {
			p.log.Warnw("unregister publisher rpc failed", "err", err)
		}

		p.mu.Lock()
		p.closed = true
		for addr, conn := range p.conns {
			conn.Close() //nolint:errcheck
			delete(p.conns, addr)
		}
		p.mu.Unlock()
		p.log.Info("publisher closed")
	})
}

// Publisher is the typed publish surface: encode T, fan out.
type Publisher[T message.Codec] struct {
	*RawPublisher
}

// Advertise registers a typed publisher for T's type name.
func Advertise[T message.Codec](ctx context.Context, n *Node, topic string) (*Publisher[T], error) {
	var zero T
	raw, err := n.AdvertiseType(ctx, topic, zero.TypeName())
	if err != nil {
		return nil, err
	}
	return &Publisher[T]{RawPublisher: raw}, nil
}

// Publish sends one typed message.
func (p *Publisher[T]) Publish(msg T) error {
	return p.PublishMsg(msg)
}
