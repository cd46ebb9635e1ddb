// Package message holds the payload codec registry. Payloads are
// self-describing JSON records; the registry maps fully-qualified type
// names to prototypes so the receiving side can reconstruct a typed
// value from (type_name, bytes) at runtime.
package message

import (
	"fmt"
	"sync"
)

// Codec is implemented by every payload type that can cross the wire.
type Codec interface {
	// TypeName returns the fully-qualified message type name. It must
	// be callable on a zero (possibly nil) receiver.
	TypeName() string

	// New returns a fresh empty instance of the same type.
	New() Codec

	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
}

// Registry maps type names to prototypes. Registrations are accepted at
// process start; lookups afterwards are concurrent.
type Registry struct {
	mu         sync.RWMutex
	prototypes map[string]Codec
}

func NewRegistry() *Registry {
	return &Registry{prototypes: make(map[string]Codec)}
}

// Default is the process-wide registry that pkg/msgs registers into.
// Nodes default to it but can be constructed with their own.
var Default = NewRegistry()

func (r *Registry) Register(proto Codec) error {
	name := proto.TypeName()
	if name == "" {
		return fmt.Errorf("register: empty type name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.prototypes[name]; ok {
		return fmt.Errorf("register: duplicate type %q", name)
	}
	r.prototypes[name] = proto
	return nil
}

func MustRegister(proto Codec) {
	if err := Default.Register(proto); err != nil {
		panic(err)
	}
}

// Lookup reports whether a type name is registered.
func (r *Registry) Lookup(name string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	proto, ok := r.prototypes[name]
	return proto, ok
}

// New instantiates a payload for the given type name. Unregistered
// types fall back to a Dynamic message that preserves all fields by
// name for JSON projection.
func (r *Registry) New(name string) Codec {
	if proto, ok := r.Lookup(name); ok {
		return proto.New()
	}
	return NewDynamic(name)
}

// Decode instantiates and parses a payload in one step.
func (r *Registry) Decode(name string, data []byte) (Codec, error) {
	msg := r.New(name)
	if err := msg.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return msg, nil
}
