package queue

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kitemesh/kite/pkg/message"
	"github.com/kitemesh/kite/pkg/msgs"
)

func push(q *TopicQueue, topic, data string) {
	q.Push(topic, &msgs.String{Data: data})
}

func TestPushDrainFIFO(t *testing.T) {
	q := New(0)
	q.RegisterTopic("chatter")

	var got []string
	q.AddCallback("chatter", func(m message.Codec) {
		got = append(got, m.(*msgs.String).Data)
	})

	push(q, "chatter", "m1")
	push(q, "chatter", "m2")
	push(q, "chatter", "m3")

	for q.DrainOne() {
	}
	require.Equal(t, []string{"m1", "m2", "m3"}, got)
}

func TestUnregisteredTopicDropped(t *testing.T) {
	q := New(0)
	push(q, "nobody", "m")
	require.Zero(t, q.Depth("nobody"))
	require.False(t, q.DrainOne())
}

func TestDropOldest(t *testing.T) {
	q := New(0)
	q.RegisterTopic("t")
	q.SetCapacity("t", 2)

	for i := 1; i <= 5; i++ {
		push(q, "t", fmt.Sprintf("m%d", i))
	}
	require.Equal(t, 2, q.Depth("t"))

	var got []string
	q.AddCallback("t", func(m message.Codec) {
		got = append(got, m.(*msgs.String).Data)
	})
	for q.DrainOne() {
	}
	require.Equal(t, []string{"m4", "m5"}, got)
}

func TestCallbackOrderAndRemoval(t *testing.T) {
	q := New(0)
	q.RegisterTopic("t")

	var order []string
	idA := q.AddCallback("t", func(message.Codec) { order = append(order, "a") })
	idB := q.AddCallback("t", func(message.Codec) { order = append(order, "b") })
	require.NotEqual(t, idA, idB)

	push(q, "t", "m1")
	require.True(t, q.DrainOne())
	require.Equal(t, []string{"a", "b"}, order)

	// Removing one subscriber leaves the other attached.
	q.RemoveCallback("t", idA)
	order = nil
	push(q, "t", "m2")
	require.True(t, q.DrainOne())
	require.Equal(t, []string{"b"}, order)
}

func TestUnregisterTopic(t *testing.T) {
	q := New(0)
	q.RegisterTopic("t")
	push(q, "t", "m")
	q.UnregisterTopic("t")
	require.False(t, q.DrainOne())

	// Pushes after unregistration are dropped again.
	push(q, "t", "m")
	require.Zero(t, q.Depth("t"))
}

func TestCallbackMayUseQueue(t *testing.T) {
	q := New(0)
	q.RegisterTopic("a")
	q.RegisterTopic("b")

	var got []string
	q.AddCallback("b", func(m message.Codec) {
		got = append(got, m.(*msgs.String).Data)
	})
	q.AddCallback("a", func(message.Codec) {
		// Re-entrant push must not deadlock.
		push(q, "b", "from-a")
	})

	push(q, "a", "m")
	for q.DrainOne() {
	}
	require.Equal(t, []string{"from-a"}, got)
}
