package node

import (
	"errors"
	"net"

	"github.com/kitemesh/kite/pkg/wire"
)

const readBufSize = 8192

// acceptLoop runs the node's TCP listener. The listener is passive: it
// accepts, reads until EOF or error, and releases resources on
// disconnect; it never initiates.
func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.ln.Accept()
		if err != nil {
			select {
			case <-n.quit:
			default:
				if !errors.Is(err, net.ErrClosed) {
					n.log.Errorw("accept failed", "err", err)
				}
			}
			return
		}
		n.wg.Add(1)
		go n.handleConn(conn)
	}
}

func (n *Node) handleConn(conn net.Conn) {
	defer n.wg.Done()
	defer conn.Close()

	n.trackConn(conn)
	defer n.untrackConn(conn)

	n.log.Debugw("connection established", "remote", conn.RemoteAddr().String())

	var dec wire.Decoder
	buf := make([]byte, readBufSize)
	for {
		nread, err := conn.Read(buf)
		if nread > 0 {
			dec.Write(buf[:nread])
			for {
				frame, ferr := dec.Next()
				if ferr != nil {
					n.log.Warnw("decode error, closing connection", "remote", conn.RemoteAddr().String(), "err", ferr)
					return
				}
				if frame == nil {
					break
				}
				if !n.handleFrame(frame) {
					return
				}
			}
		}
		if err != nil {
			n.log.Debugw("connection closed", "remote", conn.RemoteAddr().String())
			return
		}
	}
}

// handleFrame dispatches one decoded frame. It reports whether the
// connection should stay open.
func (n *Node) handleFrame(f *wire.Frame) bool {
	if f.MsgType == wire.MsgTypeTargetsUpdate {
		update, err := wire.DecodeTargetsUpdate(f.Payload)
		if err != nil {
			n.log.Warnw("malformed targets update", "topic", f.Topic, "err", err)
			return false
		}
		n.targets.Apply(update)
		return true
	}

	msg, err := n.registry.Decode(f.MsgType, f.Payload)
	if err != nil {
		n.log.Warnw("payload parse failed, closing connection", "topic", f.Topic, "type", f.MsgType, "err", err)
		return false
	}
	// Unknown topics are dropped inside Push; the connection stays up.
	n.queue.Push(f.Topic, msg)
	return true
}
