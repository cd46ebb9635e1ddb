package bridge_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/kitemesh/kite/pkg/bridge"
	"github.com/kitemesh/kite/pkg/coordinator"
	"github.com/kitemesh/kite/pkg/graph"
	"github.com/kitemesh/kite/pkg/msgs"
	"github.com/kitemesh/kite/pkg/node"
)

func TestBridgeStreamsDiscoveredTopics(t *testing.T) {
	// Coordinator.
	g := graph.New()
	svc := coordinator.NewService(g, coordinator.NewPusher(nil), nil)
	srv := coordinator.NewServer(coordinator.ServerConfig{Address: "127.0.0.1:0"}, svc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Listen(ctx) }()
	require.Eventually(t, func() bool { return srv.Addr() != nil }, 5*time.Second, 10*time.Millisecond)
	coordAddr := srv.Addr().String()

	// Publisher node.
	pubNode, err := node.New(node.Config{Name: "talker", CoordinatorAddr: coordAddr})
	require.NoError(t, err)
	defer pubNode.Close()

	pub, err := node.Advertise[*msgs.String](ctx, pubNode, "chatter")
	require.NoError(t, err)
	defer pub.Unadvertise(ctx)

	// Bridge node.
	bridgeNode, err := node.New(node.Config{Name: "kite_bridge", CoordinatorAddr: coordAddr})
	require.NoError(t, err)
	defer bridgeNode.Close()

	b := bridge.New(bridge.Config{Address: "127.0.0.1:0", PollInterval: 50 * time.Millisecond}, bridgeNode)
	go func() { _ = b.Run(ctx) }()
	require.Eventually(t, func() bool { return b.Addr() != nil }, 5*time.Second, 10*time.Millisecond)

	// Connect a frontend client.
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+b.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()

	// Read envelopes on a separate goroutine while publishing until
	// the pipeline is wired end to end.
	envCh := make(chan bridge.Envelope, 64)
	go func() {
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var env bridge.Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				continue
			}
			envCh <- env
		}
	}()

	deadline := time.After(10 * time.Second)
	publish := time.NewTicker(100 * time.Millisecond)
	defer publish.Stop()

	var gotMessage *bridge.Envelope
	sawChannels := false
	for gotMessage == nil {
		select {
		case <-deadline:
			t.Fatal("no message envelope before deadline")
		case <-publish.C:
			require.NoError(t, pub.Publish(&msgs.String{Data: "to-frontend"}))
		case env := <-envCh:
			switch env.Op {
			case "channels":
				sawChannels = true
			case "message":
				env := env
				gotMessage = &env
			}
		}
	}

	require.True(t, sawChannels)
	require.NotNil(t, gotMessage)
	require.Equal(t, "chatter", gotMessage.Topic)
	require.Equal(t, "std_msgs.String", gotMessage.Type)
	require.JSONEq(t, `{"data":"to-frontend"}`, string(gotMessage.Data))
}
