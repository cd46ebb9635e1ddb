package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/kitemesh/kite/pkg/types"
)

// MsgTypeTargetsUpdate marks a control frame carrying a TargetsUpdate
// payload. Frames with any other type are opaque user data.
const MsgTypeTargetsUpdate = "TopicTargetsUpdate"

const headerLen = 2 + 2 + 4

var (
	ErrEmptyTopic   = errors.New("frame topic is empty")
	ErrEmptyMsgType = errors.New("frame msg type is empty")
	ErrTooLarge     = errors.New("frame field exceeds length prefix")
)

// Frame is the envelope used on every TCP link: node-to-node data
// messages and coordinator-push control messages alike.
//
//	u16 BE topic_len | topic | u16 BE type_len | type | u32 BE payload_len | payload
type Frame struct {
	Topic   string
	MsgType string
	Payload []byte
}

// Encode serializes the frame into a single buffer ready to write.
func Encode(f Frame) ([]byte, error) {
	if f.Topic == "" {
		return nil, ErrEmptyTopic
	}
	if f.MsgType == "" {
		return nil, ErrEmptyMsgType
	}
	if len(f.Topic) > math.MaxUint16 || len(f.MsgType) > math.MaxUint16 || uint64(len(f.Payload)) > math.MaxUint32 {
		return nil, ErrTooLarge
	}

	buf := make([]byte, 0, headerLen+len(f.Topic)+len(f.MsgType)+len(f.Payload))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(f.Topic)))
	buf = append(buf, f.Topic...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(f.MsgType)))
	buf = append(buf, f.MsgType...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Payload)))
	buf = append(buf, f.Payload...)
	return buf, nil
}

// Decoder consumes complete frames from a growing buffer, leaving
// partial trailing bytes for the next read.
type Decoder struct {
	buf []byte
}

// Write appends raw bytes received from the connection.
func (d *Decoder) Write(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the next complete frame, or nil if the buffer holds only
// a partial frame. A malformed frame returns an error; the caller is
// expected to close the connection.
func (d *Decoder) Next() (*Frame, error) {
	if len(d.buf) < 2 {
		return nil, nil
	}
	topicLen := int(binary.BigEndian.Uint16(d.buf[:2]))
	if topicLen == 0 {
		return nil, ErrEmptyTopic
	}

	off := 2 + topicLen
	if len(d.buf) < off+2 {
		return nil, nil
	}
	typeLen := int(binary.BigEndian.Uint16(d.buf[off : off+2]))
	if typeLen == 0 {
		return nil, ErrEmptyMsgType
	}

	off += 2 + typeLen
	if len(d.buf) < off+4 {
		return nil, nil
	}
	payloadLen := int(binary.BigEndian.Uint32(d.buf[off : off+4]))

	total := off + 4 + payloadLen
	if len(d.buf) < total {
		return nil, nil
	}

	f := &Frame{
		Topic:   string(d.buf[2 : 2+topicLen]),
		MsgType: string(d.buf[2+topicLen+2 : off]),
		Payload: append([]byte(nil), d.buf[off+4:total]...),
	}
	d.buf = d.buf[total:]
	return f, nil
}

// TargetsUpdate is the control-frame payload pushed by the coordinator
// whenever the graph changes. It is a full add/remove delta and is
// idempotent on the receiver.
type TargetsUpdate struct {
	Topic         string               `json:"topic"`
	AddTargets    []types.NodeIdentity `json:"add_targets,omitempty"`
	RemoveTargets []types.NodeIdentity `json:"remove_targets,omitempty"`
}

// EncodeTargetsUpdate frames a targets update for the wire.
func EncodeTargetsUpdate(u TargetsUpdate) ([]byte, error) {
	payload, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("marshal targets update: %w", err)
	}
	return Encode(Frame{Topic: u.Topic, MsgType: MsgTypeTargetsUpdate, Payload: payload})
}

// DecodeTargetsUpdate parses a control-frame payload.
func DecodeTargetsUpdate(payload []byte) (TargetsUpdate, error) {
	var u TargetsUpdate
	if err := json.Unmarshal(payload, &u); err != nil {
		return TargetsUpdate{}, fmt.Errorf("unmarshal targets update: %w", err)
	}
	return u, nil
}
