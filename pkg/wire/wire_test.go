package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kitemesh/kite/pkg/types"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frames := []Frame{
		{Topic: "chatter", MsgType: "std_msgs.String", Payload: []byte(`{"data":"hi"}`)},
		{Topic: "t", MsgType: "x", Payload: nil},
		{Topic: "pose", MsgType: "geometry_msgs.Pose", Payload: make([]byte, 4096)},
	}

	var d Decoder
	for _, f := range frames {
		buf, err := Encode(f)
		require.NoError(t, err)
		require.Len(t, buf, len(f.Topic)+len(f.MsgType)+len(f.Payload)+8)
		d.Write(buf)
	}

	for _, want := range frames {
		got, err := d.Next()
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, want.Topic, got.Topic)
		require.Equal(t, want.MsgType, got.MsgType)
		require.Equal(t, len(want.Payload), len(got.Payload))
	}

	got, err := d.Next()
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestDecoderPartialFeeds(t *testing.T) {
	buf, err := Encode(Frame{Topic: "chatter", MsgType: "std_msgs.String", Payload: []byte(`{"data":"split"}`)})
	require.NoError(t, err)

	var d Decoder
	for i := 0; i < len(buf)-1; i++ {
		d.Write(buf[i : i+1])
		f, err := d.Next()
		require.NoError(t, err)
		require.Nil(t, f, "frame complete after %d of %d bytes", i+1, len(buf))
	}

	d.Write(buf[len(buf)-1:])
	f, err := d.Next()
	require.NoError(t, err)
	require.NotNil(t, f)
	require.Equal(t, "chatter", f.Topic)
}

func TestDecoderRejectsEmptyTopic(t *testing.T) {
	var d Decoder
	d.Write([]byte{0x00, 0x00, 0xff})
	_, err := d.Next()
	require.ErrorIs(t, err, ErrEmptyTopic)
}

func TestEncodeRejectsEmptyFields(t *testing.T) {
	_, err := Encode(Frame{Topic: "", MsgType: "x"})
	require.ErrorIs(t, err, ErrEmptyTopic)

	_, err = Encode(Frame{Topic: "t", MsgType: ""})
	require.ErrorIs(t, err, ErrEmptyMsgType)
}

func TestTargetsUpdateRoundTrip(t *testing.T) {
	u := TargetsUpdate{
		Topic:      "chatter",
		AddTargets: []types.NodeIdentity{{Name: "listener", IP: "127.0.0.1", Port: 60002}},
		RemoveTargets: []types.NodeIdentity{
			{Name: "stale", IP: "127.0.0.1", Port: 60007},
		},
	}

	buf, err := EncodeTargetsUpdate(u)
	require.NoError(t, err)

	var d Decoder
	d.Write(buf)
	f, err := d.Next()
	require.NoError(t, err)
	require.NotNil(t, f)
	require.Equal(t, MsgTypeTargetsUpdate, f.MsgType)

	got, err := DecodeTargetsUpdate(f.Payload)
	require.NoError(t, err)
	require.Equal(t, u, got)
}
