// Package bridge exposes the live topic stream to a visualization
// frontend. It polls the coordinator for topics, subscribes to each one
// with a dynamic-type subscriber, and fans every message out as a JSON
// envelope over a websocket endpoint.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kitemesh/kite/pkg/message"
	"github.com/kitemesh/kite/pkg/node"
	"github.com/kitemesh/kite/pkg/util"
)

const (
	defaultPollInterval = time.Second
	pollJitter          = 0.1

	bridgeQueueSize = 100
)

// Channel describes one advertised topic stream.
type Channel struct {
	Topic   string `json:"topic"`
	MsgType string `json:"msg_type"`
}

// Envelope is the frame sent to websocket clients.
type Envelope struct {
	Op          string          `json:"op"`
	Topic       string          `json:"topic,omitempty"`
	Type        string          `json:"type,omitempty"`
	ReceiveTime time.Time       `json:"receive_time,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Channels    []Channel       `json:"channels,omitempty"`
}

// Config parameterizes the bridge.
type Config struct {
	Address      string
	PollInterval time.Duration
}

// Bridge discovers topics and streams them to websocket clients. It
// consumes only the public node and RPC surfaces.
type Bridge struct {
	conf Config
	node *node.Node
	log  *zap.SugaredLogger

	upgrader websocket.Upgrader
	listener net.Listener

	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	subs     map[string]*node.Subscriber
	channels []Channel
}

func New(conf Config, n *node.Node) *Bridge {
	if conf.PollInterval == 0 {
		conf.PollInterval = defaultPollInterval
	}
	return &Bridge{
		conf:     conf,
		node:     n,
		log:      zap.S().Named("bridge"),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]struct{}),
		subs:     make(map[string]*node.Subscriber),
	}
}

// Run serves the websocket endpoint and drives topic discovery until
// the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", b.conf.Address)
	if err != nil {
		return fmt.Errorf("bridge listen on %s: %w", b.conf.Address, err)
	}
	b.listener = ln
	b.log.Infow("bridge started", "addr", ln.Addr().String())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWS)
	srv := &http.Server{Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		b.pollLoop(ctx)
		return nil
	})
	g.Go(func() error {
		b.node.Spin(ctx)
		return nil
	})

	return g.Wait()
}

// Addr returns the bound address, valid once Run has started.
func (b *Bridge) Addr() net.Addr {
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

// pollLoop discovers topics once per interval and subscribes to new
// ones.
func (b *Bridge) pollLoop(ctx context.Context) {
	ticker := util.NewJitterTicker(ctx, b.conf.PollInterval, pollJitter)
	defer ticker.Stop()

	b.discover(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.discover(ctx)
		}
	}
}

func (b *Bridge) discover(ctx context.Context) {
	topics, err := b.node.Client().GetTopics(ctx, "")
	if err != nil {
		b.log.Warnw("topic discovery failed", "err", err)
		return
	}

	for _, t := range topics {
		b.mu.Lock()
		_, known := b.subs[t.TopicName]
		b.mu.Unlock()
		if known {
			continue
		}

		topic := t.TopicName
		sub, err := b.node.SubscribeType(ctx, topic, bridgeQueueSize, t.MsgType, func(m message.Codec) {
			b.onMessage(topic, m)
		})
		if err != nil {
			b.log.Warnw("subscribe failed", "topic", topic, "err", err)
			continue
		}

		ch := Channel{Topic: topic, MsgType: t.MsgType}
		b.mu.Lock()
		b.subs[topic] = sub
		b.channels = append(b.channels, ch)
		b.mu.Unlock()

		b.log.Infow("channel added", "topic", topic, "type", t.MsgType)
		b.broadcast(Envelope{Op: "channels", Channels: []Channel{ch}})
	}
}

func (b *Bridge) onMessage(topic string, m message.Codec) {
	data, err := m.Marshal()
	if err != nil {
		b.log.Warnw("message projection failed", "topic", topic, "err", err)
		return
	}
	b.broadcast(Envelope{
		Op:          "message",
		Topic:       topic,
		Type:        m.TypeName(),
		ReceiveTime: time.Now(),
		Data:        data,
	})
}

// broadcast writes one envelope to every connected client, dropping
// clients whose write fails.
func (b *Bridge) broadcast(env Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if err := conn.WriteJSON(env); err != nil {
			b.log.Debugw("client write failed, dropping", "remote", conn.RemoteAddr().String(), "err", err)
			conn.Close() //nolint:errcheck
			delete(b.clients, conn)
		}
	}
}

func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warnw("websocket upgrade failed", "err", err)
		return
	}
	b.log.Infow("client connected", "remote", conn.RemoteAddr().String())

	b.mu.Lock()
	snapshot := append([]Channel(nil), b.channels...)
	if err := conn.WriteJSON(Envelope{Op: "channels", Channels: snapshot}); err != nil {
		b.mu.Unlock()
		conn.Close() //nolint:errcheck
		return
	}
	b.clients[conn] = struct{}{}
	b.mu.Unlock()

	// Reads are discarded; the socket exists so we can notice
	// disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				b.mu.Lock()
				delete(b.clients, conn)
				b.mu.Unlock()
				conn.Close() //nolint:errcheck
				b.log.Infow("client disconnected", "remote", conn.RemoteAddr().String())
				return
			}
		}
	}()
}
