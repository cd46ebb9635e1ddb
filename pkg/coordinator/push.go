package coordinator

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/kitemesh/kite/pkg/types"
	"github.com/kitemesh/kite/pkg/wire"
)

const pushDialTimeout = 2 * time.Second

// Pusher delivers TargetsUpdate control frames to node listeners. Each
// push opens a short-lived TCP client, writes exactly one frame, and
// half-closes. An unreachable target drops the push; the next
// state-change-triggered push re-establishes a consistent targets set.
type Pusher struct {
	log     *zap.SugaredLogger
	metrics *Metrics
}

func NewPusher(metrics *Metrics) *Pusher {
	return &Pusher{
		log:     zap.S().Named("push"),
		metrics: metrics,
	}
}

// Send dispatches one update to the target node asynchronously.
func (p *Pusher) Send(target types.NodeIdentity, update wire.TargetsUpdate) {
	buf, err := wire.EncodeTargetsUpdate(update)
	if err != nil {
		p.log.Errorw("encode targets update failed", "topic", update.Topic, "err", err)
		return
	}
	go p.send(target, update.Topic, buf)
}

func (p *Pusher) send(target types.NodeIdentity, topic string, buf []byte) {
	conn, err := net.DialTimeout("tcp", target.Addr(), pushDialTimeout)
	if err != nil {
		p.log.Warnw("push dropped: node unreachable", "node", target.Name, "addr", target.Addr(), "topic", topic, "err", err)
		if p.metrics != nil {
			p.metrics.PushesDropped.Inc()
		}
		return
	}
	defer conn.Close()

	if _, err := conn.Write(buf); err != nil {
		p.log.Warnw("push dropped: write failed", "node", target.Name, "topic", topic, "err", err)
		if p.metrics != nil {
			p.metrics.PushesDropped.Inc()
		}
		return
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseWrite() //nolint:errcheck
	}
	if p.metrics != nil {
		p.metrics.PushesSent.Inc()
	}
	p.log.Debugw("push delivered", "node", target.Name, "topic", topic)
}
