package msgs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kitemesh/kite/pkg/message"
)

func TestStandardTypesRegistered(t *testing.T) {
	for _, name := range []string{
		"std_msgs.String",
		"std_msgs.Header",
		"geometry_msgs.Vector3",
		"geometry_msgs.Pose",
		"geometry_msgs.PoseStamped",
		"geometry_msgs.Twist",
		"visualization_msgs.Marker",
	} {
		proto, ok := message.Default.Lookup(name)
		require.True(t, ok, "missing %s", name)
		require.Equal(t, name, proto.TypeName())

		// The registry hands out fresh instances, not the prototype.
		require.NotSame(t, proto, message.Default.New(name))
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	in := &Marker{
		NS:     "trajectory",
		ID:     7,
		Type:   MarkerLine,
		Scale:  Vector3{X: 0.1, Y: 0.1, Z: 0.1},
		ColorR: 1, ColorA: 1,
		Points: []Vector3{{X: 1}, {X: 2, Y: 1}},
	}
	data, err := in.Marshal()
	require.NoError(t, err)

	out, err := message.Default.Decode("visualization_msgs.Marker", data)
	require.NoError(t, err)
	require.Equal(t, in, out)
}
