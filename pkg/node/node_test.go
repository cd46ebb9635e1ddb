package node_test

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kitemesh/kite/pkg/coordinator"
	"github.com/kitemesh/kite/pkg/graph"
	"github.com/kitemesh/kite/pkg/message"
	"github.com/kitemesh/kite/pkg/msgs"
	"github.com/kitemesh/kite/pkg/node"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

// startCoordinator runs an in-process coordinator on an ephemeral port
// and returns its address.
func startCoordinator(t *testing.T) string {
	t.Helper()

	g := graph.New()
	svc := coordinator.NewService(g, coordinator.NewPusher(nil), nil)
	srv := coordinator.NewServer(coordinator.ServerConfig{Address: "127.0.0.1:0"}, svc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = srv.Listen(ctx)
	}()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, waitFor, tick)
	return srv.Addr().String()
}

func startNode(t *testing.T, name, coordAddr string) *node.Node {
	t.Helper()
	n, err := node.New(node.Config{Name: name, CoordinatorAddr: coordAddr})
	require.NoError(t, err)
	t.Cleanup(n.Close)
	return n
}

// recorder collects string payloads delivered to a subscriber.
type recorder struct {
	mu  sync.Mutex
	got []string
}

func (r *recorder) cb(m message.Codec) {
	s, ok := m.(*msgs.String)
	if !ok {
		return
	}
	r.mu.Lock()
	r.got = append(r.got, s.Data)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func spin(t *testing.T, n *node.Node) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go n.Spin(ctx)
}

func TestSinglePublisherSingleSubscriberInOrder(t *testing.T) {
	coord := startCoordinator(t)
	n := startNode(t, "solo", coord)
	ctx := context.Background()

	pub, err := node.Advertise[*msgs.String](ctx, n, "chatter")
	require.NoError(t, err)
	defer pub.Unadvertise(ctx)

	rec := &recorder{}
	sub, err := node.Subscribe[*msgs.String](ctx, n, "chatter", 10, func(m *msgs.String) { rec.cb(m) })
	require.NoError(t, err)
	defer sub.Unsubscribe(ctx)

	spin(t, n)

	// Wait for the publisher's connection to its own listener.
	require.Eventually(t, func() bool {
		require.NoError(t, pub.Publish(&msgs.String{Data: "warmup"}))
		return pub.ConnectionCount() == 1
	}, waitFor, 50*time.Millisecond)

	require.NoError(t, pub.Publish(&msgs.String{Data: "m1"}))
	require.NoError(t, pub.Publish(&msgs.String{Data: "m2"}))
	require.NoError(t, pub.Publish(&msgs.String{Data: "m3"}))

	require.Eventually(t, func() bool {
		got := rec.snapshot()
		return len(got) >= 3
	}, waitFor, tick)

	got := rec.snapshot()
	require.Equal(t, []string{"m1", "m2", "m3"}, got[len(got)-3:])
}

func TestLateSubscriberMissesEarlierMessage(t *testing.T) {
	coord := startCoordinator(t)
	n := startNode(t, "late", coord)
	ctx := context.Background()

	pub, err := node.Advertise[*msgs.String](ctx, n, "chatter")
	require.NoError(t, err)
	defer pub.Unadvertise(ctx)

	// Published before anyone subscribed: no targets, goes nowhere.
	require.NoError(t, pub.Publish(&msgs.String{Data: "first"}))

	rec := &recorder{}
	sub, err := node.Subscribe[*msgs.String](ctx, n, "chatter", 10, func(m *msgs.String) { rec.cb(m) })
	require.NoError(t, err)
	defer sub.Unsubscribe(ctx)

	spin(t, n)

	require.Eventually(t, func() bool {
		require.NoError(t, pub.Publish(&msgs.String{Data: "second"}))
		got := rec.snapshot()
		return len(got) > 0
	}, waitFor, 50*time.Millisecond)

	require.NotContains(t, rec.snapshot(), "first")
	require.Contains(t, rec.snapshot(), "second")
}

func TestDropOldestWithDispatchPaused(t *testing.T) {
	coord := startCoordinator(t)
	n := startNode(t, "bounded", coord)
	ctx := context.Background()

	pub, err := node.Advertise[*msgs.String](ctx, n, "burst")
	require.NoError(t, err)
	defer pub.Unadvertise(ctx)

	rec := &recorder{}
	sub, err := node.Subscribe[*msgs.String](ctx, n, "burst", 2, func(m *msgs.String) { rec.cb(m) })
	require.NoError(t, err)
	defer sub.Unsubscribe(ctx)

	// Dispatch stays paused: no Spin until the burst has landed. Warm
	// up until the publisher's connection is live; the warmups are
	// displaced from the bounded queue by the burst.
	require.Eventually(t, func() bool {
		require.NoError(t, pub.Publish(&msgs.String{Data: "warmup"}))
		return pub.ConnectionCount() == 1
	}, waitFor, 50*time.Millisecond)

	for i := 1; i <= 5; i++ {
		require.NoError(t, pub.Publish(&msgs.String{Data: fmt.Sprintf("m%d", i)}))
	}

	require.Eventually(t, func() bool { return n.Queue().Depth("burst") == 2 }, waitFor, tick)
	// All five frames were written to one FIFO connection; give the
	// tail time to land before draining.
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, 2, n.Queue().Depth("burst"))

	for n.SpinOnce() {
	}
	require.Equal(t, []string{"m4", "m5"}, rec.snapshot())
}

func TestNewSubscriberGetsConnectedAndReceives(t *testing.T) {
	coord := startCoordinator(t)
	pubNode := startNode(t, "talker", coord)
	subNodeA := startNode(t, "listener_a", coord)
	ctx := context.Background()

	pub, err := node.Advertise[*msgs.String](ctx, pubNode, "chatter")
	require.NoError(t, err)
	defer pub.Unadvertise(ctx)

	recA := &recorder{}
	subA, err := node.Subscribe[*msgs.String](ctx, subNodeA, "chatter", 10, func(m *msgs.String) { recA.cb(m) })
	require.NoError(t, err)
	defer subA.Unsubscribe(ctx)
	spin(t, subNodeA)

	require.Eventually(t, func() bool {
		require.NoError(t, pub.Publish(&msgs.String{Data: "ping"}))
		return len(recA.snapshot()) > 0
	}, waitFor, 50*time.Millisecond)

	// Subscriber B arrives; within bounded time the publisher connects
	// and the next publish reaches both.
	subNodeB := startNode(t, "listener_b", coord)
	recB := &recorder{}
	subB, err := node.Subscribe[*msgs.String](ctx, subNodeB, "chatter", 10, func(m *msgs.String) { recB.cb(m) })
	require.NoError(t, err)
	defer subB.Unsubscribe(ctx)
	spin(t, subNodeB)

	require.Eventually(t, func() bool {
		require.NoError(t, pub.Publish(&msgs.String{Data: "both"}))
		return pub.ConnectionCount() == 2 && len(recB.snapshot()) > 0
	}, waitFor, 50*time.Millisecond)

	require.Contains(t, recB.snapshot(), "both")
	require.Contains(t, recA.snapshot(), "both")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	coord := startCoordinator(t)
	pubNode := startNode(t, "talker", coord)
	subNodeA := startNode(t, "keeper", coord)
	subNodeB := startNode(t, "leaver", coord)
	ctx := context.Background()

	pub, err := node.Advertise[*msgs.String](ctx, pubNode, "chatter")
	require.NoError(t, err)
	defer pub.Unadvertise(ctx)

	recA := &recorder{}
	subA, err := node.Subscribe[*msgs.String](ctx, subNodeA, "chatter", 10, func(m *msgs.String) { recA.cb(m) })
	require.NoError(t, err)
	defer subA.Unsubscribe(ctx)
	spin(t, subNodeA)

	recB := &recorder{}
	subB, err := node.Subscribe[*msgs.String](ctx, subNodeB, "chatter", 10, func(m *msgs.String) { recB.cb(m) })
	require.NoError(t, err)
	spin(t, subNodeB)

	require.Eventually(t, func() bool {
		require.NoError(t, pub.Publish(&msgs.String{Data: "warm"}))
		return pub.ConnectionCount() == 2
	}, waitFor, 50*time.Millisecond)

	subB.Unsubscribe(ctx)
	require.Eventually(t, func() bool {
		return len(pubNode.Targets().Targets("chatter")) == 1
	}, waitFor, tick)

	require.NoError(t, pub.Publish(&msgs.String{Data: "after"}))
	require.Eventually(t, func() bool {
		return len(recA.snapshot()) > 0
	}, waitFor, tick)

	require.Contains(t, recA.snapshot(), "after")
	require.NotContains(t, recB.snapshot(), "after")
}

func TestTypeMismatchedPairIsStillMatched(t *testing.T) {
	coord := startCoordinator(t)
	pubNode := startNode(t, "talker", coord)
	subNode := startNode(t, "listener", coord)
	ctx := context.Background()

	// Publisher says std_msgs.String, subscriber says geometry_msgs.Pose.
	pub, err := node.Advertise[*msgs.String](ctx, pubNode, "mixed")
	require.NoError(t, err)
	defer pub.Unadvertise(ctx)

	var (
		mu  sync.Mutex
		got []message.Codec
	)
	sub, err := subNode.SubscribeType(ctx, "mixed", 10, "geometry_msgs.Pose", func(m message.Codec) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Unsubscribe(ctx)
	spin(t, subNode)

	// The coordinator matches by topic name alone and pushes the
	// subscriber's address to the publisher; the payload is only
	// interpreted on the receiving side, using the frame's type name.
	require.Eventually(t, func() bool {
		require.NoError(t, pub.Publish(&msgs.String{Data: "mismatch"}))
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, waitFor, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	s, ok := got[0].(*msgs.String)
	require.True(t, ok)
	require.Equal(t, "mismatch", s.Data)
}

func TestDynamicSubscriberSeesUnknownType(t *testing.T) {
	coord := startCoordinator(t)
	n := startNode(t, "dyn", coord)
	ctx := context.Background()

	pub, err := n.AdvertiseType(ctx, "telemetry", "custom.Reading")
	require.NoError(t, err)
	defer pub.Unadvertise(ctx)

	var (
		mu  sync.Mutex
		got []*message.Dynamic
	)
	sub, err := n.SubscribeType(ctx, "telemetry", 10, "custom.Reading", func(m message.Codec) {
		if d, ok := m.(*message.Dynamic); ok {
			mu.Lock()
			got = append(got, d)
			mu.Unlock()
		}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe(ctx)
	spin(t, n)

	require.Eventually(t, func() bool {
		require.NoError(t, pub.PublishPayload([]byte(`{"value":42.5,"unit":"C"}`)))
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, waitFor, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "custom.Reading", got[0].TypeName())
	v, ok := got[0].Get("value")
	require.True(t, ok)
	require.Equal(t, 42.5, v)
}

func TestPortRangeExhaustion(t *testing.T) {
	// Occupy a single-port range, then ask a node to bind inside it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	_, err = node.New(node.Config{Name: "cramped", PortMin: port, PortMax: port})
	require.ErrorIs(t, err, node.ErrNoPortAvailable)
}

func TestAdvertiseFailsWithoutCoordinator(t *testing.T) {
	n, err := node.New(node.Config{Name: "orphan", CoordinatorAddr: "127.0.0.1:1"})
	require.NoError(t, err)
	defer n.Close()

	_, err = node.Advertise[*msgs.String](context.Background(), n, "chatter")
	require.Error(t, err)
}
