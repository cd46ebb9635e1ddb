// Package node implements the node-side runtime: the TCP listener that
// receives target updates and data frames, the per-publisher client
// pool, subscriber registration, timers, and the dispatch loop that
// drains the in-process queue.
package node

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/kitemesh/kite/pkg/message"
	"github.com/kitemesh/kite/pkg/queue"
	"github.com/kitemesh/kite/pkg/rpc"
	"github.com/kitemesh/kite/pkg/types"
)

const (
	// DefaultPortMin and DefaultPortMax bound the listener port search.
	DefaultPortMin = 60000
	DefaultPortMax = 61000

	defaultIP = "127.0.0.1"

	// spinIdleSleep is how long the dispatch loop sleeps between empty
	// sweeps.
	spinIdleSleep = time.Millisecond
)

// ErrNoPortAvailable is fatal at node init: every port in the
// configured range was taken.
var ErrNoPortAvailable = errors.New("no listener port available in range")

// Config parameterizes a node. Zero values fall back to defaults.
type Config struct {
	Name            string
	CoordinatorAddr string
	IP              string
	PortMin         int
	PortMax         int
	QueueCapacity   int

	// Registry resolves inbound payload types. Defaults to
	// message.Default, which pkg/msgs populates.
	Registry *message.Registry

	// Clock drives timers; swap for a mock in tests.
	Clock clock.Clock
}

// Node is the process-scoped context for one participant: identity,
// listener, targets table, message registry, coordinator client, and
// the in-process queue. It is passed explicitly to publishers and
// subscribers; there are no ambient singletons.
type Node struct {
	conf     Config
	identity types.NodeIdentity
	ln       net.Listener
	rpc      *rpc.Client
	registry *message.Registry
	queue    *queue.TopicQueue
	targets  *TargetsTable
	clk      clock.Clock
	log      *zap.SugaredLogger

	wg        sync.WaitGroup
	quit      chan struct{}
	closeOnce sync.Once

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// New binds the node's listener and returns a running node. The
// listener port is chosen inside [PortMin, PortMax], starting at a
// randomized offset so concurrently starting nodes on one host don't
// race for the same port.
func New(conf Config) (*Node, error) {
	if conf.Name == "" {
		return nil, errors.New("node name required")
	}
	if conf.IP == "" {
		conf.IP = defaultIP
	}
	if conf.PortMin == 0 {
		conf.PortMin = DefaultPortMin
	}
	if conf.PortMax == 0 {
		conf.PortMax = DefaultPortMax
	}
	if conf.PortMax < conf.PortMin {
		return nil, fmt.Errorf("invalid port range %d-%d", conf.PortMin, conf.PortMax)
	}
	if conf.Registry == nil {
		conf.Registry = message.Default
	}
	if conf.Clock == nil {
		conf.Clock = clock.New()
	}

	log := zap.S().Named("node").With("node", conf.Name)

	ln, port, err := listenInRange(conf.IP, conf.PortMin, conf.PortMax)
	if err != nil {
		return nil, err
	}

	n := &Node{
		conf:     conf,
		identity: types.NodeIdentity{Name: conf.Name, IP: conf.IP, Port: port},
		ln:       ln,
		rpc:      rpc.NewClient(conf.CoordinatorAddr),
		registry: conf.Registry,
		queue:    queue.New(conf.QueueCapacity),
		targets:  newTargetsTable(),
		clk:      conf.Clock,
		log:      log,
		quit:     make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}

	n.wg.Add(1)
	go n.acceptLoop()

	log.Infow("node listening", "addr", n.identity.Addr())
	return n, nil
}

// listenInRange binds the first free port, trying every port in the
// range once, starting from a random offset and wrapping.
func listenInRange(ip string, portMin, portMax int) (net.Listener, int, error) {
	span := portMax - portMin + 1
	start := rand.IntN(span) //nolint:gosec
	for i := 0; i < span; i++ {
		port := portMin + (start+i)%span
		ln, err := net.Listen("tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
		if err == nil {
			return ln, port, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: %d-%d", ErrNoPortAvailable, portMin, portMax)
}

// Identity returns the node's name and listening address.
func (n *Node) Identity() types.NodeIdentity {
	return n.identity
}

// Client returns the coordinator RPC client.
func (n *Node) Client() *rpc.Client {
	return n.rpc
}

// Registry returns the payload registry in use.
func (n *Node) Registry() *message.Registry {
	return n.registry
}

// Queue exposes the in-process topic queue.
func (n *Node) Queue() *queue.TopicQueue {
	return n.queue
}

// Targets exposes the node's targets table.
func (n *Node) Targets() *TargetsTable {
	return n.targets
}

// SpinOnce drains at most one message, reporting whether one was
// dispatched.
func (n *Node) SpinOnce() bool {
	return n.queue.DrainOne()
}

// Spin runs the dispatch loop until the context is cancelled or the
// node closes. All subscriber callbacks run on the calling goroutine.
func (n *Node) Spin(ctx context.Context) {
	for {
		if n.queue.DrainOne() {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-n.quit:
			return
		case <-time.After(spinIdleSleep):
		}
	}
}

// CreateTimer starts a timer whose callback runs on its own goroutine
// at the requested period.
func (n *Node) CreateTimer(period time.Duration, cb TimerCallback, oneshot bool) *Timer {
	t := newTimer(n.clk, period, cb, oneshot)
	t.Start()
	return t
}

// Close stops the listener, drops open inbound connections, stops the
// dispatch loop, and waits for connection handlers to finish.
func (n *Node) Close() {
	n.closeOnce.Do(func() {
		close(n.quit)
		n.ln.Close() //nolint:errcheck

		n.connMu.Lock()
		for conn := range n.conns {
			conn.Close() //nolint:errcheck
		}
		n.connMu.Unlock()

		n.wg.Wait()
		n.log.Info("node closed")
	})
}

func (n *Node) trackConn(conn net.Conn) {
	n.connMu.Lock()
	n.conns[conn] = struct{}{}
	n.connMu.Unlock()
}

func (n *Node) untrackConn(conn net.Conn) {
	n.connMu.Lock()
	delete(n.conns, conn)
	n.connMu.Unlock()
}
