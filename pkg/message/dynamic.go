package message

import "encoding/json"

// Dynamic is the fallback payload for unregistered type names. It keeps
// every field by name so bridges and diagnostic tools can still project
// the message to JSON.
type Dynamic struct {
	typeName string
	fields   map[string]any
}

func NewDynamic(typeName string) *Dynamic {
	return &Dynamic{typeName: typeName, fields: make(map[string]any)}
}

func (d *Dynamic) TypeName() string {
	if d == nil {
		return ""
	}
	return d.typeName
}

func (d *Dynamic) New() Codec {
	return NewDynamic(d.typeName)
}

func (d *Dynamic) Marshal() ([]byte, error) {
	return json.Marshal(d.fields)
}

func (d *Dynamic) Unmarshal(data []byte) error {
	fields := make(map[string]any)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	d.fields = fields
	return nil
}

// Fields exposes the raw field map.
func (d *Dynamic) Fields() map[string]any {
	return d.fields
}

// Get returns a single field by name.
func (d *Dynamic) Get(name string) (any, bool) {
	v, ok := d.fields[name]
	return v, ok
}
