package types

import (
	"fmt"
	"net"
	"strconv"
)

// NodeIdentity names a node and the address where its listener accepts
// both target updates and data frames.
type NodeIdentity struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// Addr returns the host:port form of the identity.
func (n NodeIdentity) Addr() string {
	return net.JoinHostPort(n.IP, strconv.Itoa(n.Port))
}

func (n NodeIdentity) String() string {
	return fmt.Sprintf("%s@%s", n.Name, n.Addr())
}

// TopicKey identifies a topic. Two publications with the same topic name
// but different message types are distinct keys.
type TopicKey struct {
	Topic   string `json:"topic"`
	MsgType string `json:"msg_type"`
}

func (k TopicKey) String() string {
	return k.Topic + " : " + k.MsgType
}

// TopicInfo is the RPC-facing view of a topic key.
type TopicInfo struct {
	TopicName string `json:"topic_name"`
	MsgType   string `json:"msg_type"`
}

func (t TopicInfo) Key() TopicKey {
	return TopicKey{Topic: t.TopicName, MsgType: t.MsgType}
}
