package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

func (*testPayload) TypeName() string           { return "test.Payload" }
func (*testPayload) New() Codec                 { return &testPayload{} }
func (p *testPayload) Marshal() ([]byte, error) { return json.Marshal(p) }
func (p *testPayload) Unmarshal(b []byte) error { return json.Unmarshal(b, p) }

func TestRegistryDecodeRegistered(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&testPayload{}))

	in := &testPayload{Value: "abc", Count: 3}
	data, err := in.Marshal()
	require.NoError(t, err)

	out, err := r.Decode("test.Payload", data)
	require.NoError(t, err)

	typed, ok := out.(*testPayload)
	require.True(t, ok)
	require.Equal(t, in, typed)
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&testPayload{}))
	require.Error(t, r.Register(&testPayload{}))
}

func TestRegistryDynamicFallback(t *testing.T) {
	r := NewRegistry()

	out, err := r.Decode("unknown.Type", []byte(`{"x":1,"nested":{"y":"z"}}`))
	require.NoError(t, err)

	dyn, ok := out.(*Dynamic)
	require.True(t, ok)
	require.Equal(t, "unknown.Type", dyn.TypeName())

	x, ok := dyn.Get("x")
	require.True(t, ok)
	require.Equal(t, float64(1), x)

	// Fields survive a re-marshal for JSON projection.
	data, err := dyn.Marshal()
	require.NoError(t, err)
	require.JSONEq(t, `{"x":1,"nested":{"y":"z"}}`, string(data))
}

func TestRegistryDecodeError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&testPayload{}))

	_, err := r.Decode("test.Payload", []byte(`{not json`))
	require.Error(t, err)
}
