// Package msgs defines the standard message types shipped with kite.
// Importing the package registers every type with the default registry.
package msgs

import (
	"encoding/json"
	"time"

	"github.com/kitemesh/kite/pkg/message"
)

func init() {
	message.MustRegister(&String{})
	message.MustRegister(&Header{})
	message.MustRegister(&Vector3{})
	message.MustRegister(&Pose{})
	message.MustRegister(&PoseStamped{})
	message.MustRegister(&Twist{})
	message.MustRegister(&Marker{})
}

type String struct {
	Data string `json:"data"`
}

func (*String) TypeName() string           { return "std_msgs.String" }
func (*String) New() message.Codec         { return &String{} }
func (m *String) Marshal() ([]byte, error) { return json.Marshal(m) }
func (m *String) Unmarshal(b []byte) error { return json.Unmarshal(b, m) }

type Header struct {
	Seq     uint32    `json:"seq"`
	Stamp   time.Time `json:"stamp"`
	FrameID string    `json:"frame_id"`
}

func (*Header) TypeName() string           { return "std_msgs.Header" }
func (*Header) New() message.Codec         { return &Header{} }
func (m *Header) Marshal() ([]byte, error) { return json.Marshal(m) }
func (m *Header) Unmarshal(b []byte) error { return json.Unmarshal(b, m) }

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (*Vector3) TypeName() string           { return "geometry_msgs.Vector3" }
func (*Vector3) New() message.Codec         { return &Vector3{} }
func (m *Vector3) Marshal() ([]byte, error) { return json.Marshal(m) }
func (m *Vector3) Unmarshal(b []byte) error { return json.Unmarshal(b, m) }

type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

type Pose struct {
	Position    Vector3    `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

func (*Pose) TypeName() string           { return "geometry_msgs.Pose" }
func (*Pose) New() message.Codec         { return &Pose{} }
func (m *Pose) Marshal() ([]byte, error) { return json.Marshal(m) }
func (m *Pose) Unmarshal(b []byte) error { return json.Unmarshal(b, m) }

type PoseStamped struct {
	Header Header `json:"header"`
	Pose   Pose   `json:"pose"`
}

func (*PoseStamped) TypeName() string           { return "geometry_msgs.PoseStamped" }
func (*PoseStamped) New() message.Codec         { return &PoseStamped{} }
func (m *PoseStamped) Marshal() ([]byte, error) { return json.Marshal(m) }
func (m *PoseStamped) Unmarshal(b []byte) error { return json.Unmarshal(b, m) }

type Twist struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

func (*Twist) TypeName() string           { return "geometry_msgs.Twist" }
func (*Twist) New() message.Codec         { return &Twist{} }
func (m *Twist) Marshal() ([]byte, error) { return json.Marshal(m) }
func (m *Twist) Unmarshal(b []byte) error { return json.Unmarshal(b, m) }

// Marker shape constants.
const (
	MarkerCube     = 1
	MarkerSphere   = 2
	MarkerCylinder = 3
	MarkerLine     = 4
)

// Marker carries a visualization primitive for the bridge frontend.
type Marker struct {
	Header  Header    `json:"header"`
	NS      string    `json:"ns"`
	ID      int32     `json:"id"`
	Type    int32     `json:"type"`
	Pose    Pose      `json:"pose"`
	Scale   Vector3   `json:"scale"`
	ColorR  float64   `json:"color_r"`
	ColorG  float64   `json:"color_g"`
	ColorB  float64   `json:"color_b"`
	ColorA  float64   `json:"color_a"`
	Points  []Vector3 `json:"points,omitempty"`
	Text    string    `json:"text,omitempty"`
	Elapsed float64   `json:"elapsed,omitempty"`
}

func (*Marker) TypeName() string           { return "visualization_msgs.Marker" }
func (*Marker) New() message.Codec         { return &Marker{} }
func (m *Marker) Marshal() ([]byte, error) { return json.Marshal(m) }
func (m *Marker) Unmarshal(b []byte) error { return json.Unmarshal(b, m) }
