// Package graph holds the coordinator's registry: a directed bipartite
// view of nodes, topic keys, and the edges between matched publishers
// and subscribers. The publisher/subscriber indexes are the source of
// truth for routing; edges are a derived view kept for diagnostics.
package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kitemesh/kite/pkg/types"
)

type vertex struct {
	info       types.NodeIdentity
	publishes  map[types.TopicKey]struct{}
	subscribes map[types.TopicKey]struct{}
}

// Edge connects a publisher node to a subscriber node on one topic key.
type Edge struct {
	Src string         `json:"src"`
	Dst string         `json:"dst"`
	Key types.TopicKey `json:"key"`
}

// Graph is safe for concurrent use; a single mutex serializes all
// operations.
type Graph struct {
	mu          sync.Mutex
	nodes       map[string]*vertex
	pubsByTopic map[types.TopicKey]map[string]struct{}
	subsByTopic map[types.TopicKey]map[string]struct{}
	edges       map[Edge]struct{}
}

func New() *Graph {
	return &Graph{
		nodes:       make(map[string]*vertex),
		pubsByTopic: make(map[types.TopicKey]map[string]struct{}),
		subsByTopic: make(map[types.TopicKey]map[string]struct{}),
		edges:       make(map[Edge]struct{}),
	}
}

func (g *Graph) upsertLocked(info types.NodeIdentity) *vertex {
	v, ok := g.nodes[info.Name]
	if !ok {
		v = &vertex{
			publishes:  make(map[types.TopicKey]struct{}),
			subscribes: make(map[types.TopicKey]struct{}),
		}
		g.nodes[info.Name] = v
	}
	v.info = info
	return v
}

// UpsertNode records or refreshes a node's address.
func (g *Graph) UpsertNode(info types.NodeIdentity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upsertLocked(info)
}

// AddPublisher inserts the node into the publisher index for k and
// connects it to every current subscriber on k.
func (g *Graph) AddPublisher(info types.NodeIdentity, k types.TopicKey) {
	g.mu.Lock()
	defer g.mu.Unlock()

	v := g.upsertLocked(info)
	v.publishes[k] = struct{}{}
	if g.pubsByTopic[k] == nil {
		g.pubsByTopic[k] = make(map[string]struct{})
	}
	g.pubsByTopic[k][info.Name] = struct{}{}

	for sub := range g.subsByTopic[k] {
		g.edges[Edge{Src: info.Name, Dst: sub, Key: k}] = struct{}{}
	}
}

// AddSubscriber inserts the node into the subscriber index for k and
// connects every current publisher on k to it.
func (g *Graph) AddSubscriber(info types.NodeIdentity, k types.TopicKey) {
	g.mu.Lock()
	defer g.mu.Unlock()

	v := g.upsertLocked(info)
	v.subscribes[k] = struct{}{}
	if g.subsByTopic[k] == nil {
		g.subsByTopic[k] = make(map[string]struct{})
	}
	g.subsByTopic[k][info.Name] = struct{}{}

	for pub := range g.pubsByTopic[k] {
		g.edges[Edge{Src: pub, Dst: info.Name, Key: k}] = struct{}{}
	}
}

// RemovePublisher undoes AddPublisher, prunes empty index entries, and
// removes the node if it is left isolated.
func (g *Graph) RemovePublisher(info types.NodeIdentity, k types.TopicKey) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if v, ok := g.nodes[info.Name]; ok {
		delete(v.publishes, k)
	}
	if set, ok := g.pubsByTopic[k]; ok {
		delete(set, info.Name)
		if len(set) == 0 {
			delete(g.pubsByTopic, k)
		}
	}
	g.removeEdgesLocked(info.Name, k, true)
	g.cleanupIsolatedLocked(info.Name)
}

// RemoveSubscriber undoes AddSubscriber symmetrically.
func (g *Graph) RemoveSubscriber(info types.NodeIdentity, k types.TopicKey) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if v, ok := g.nodes[info.Name]; ok {
		delete(v.subscribes, k)
	}
	if set, ok := g.subsByTopic[k]; ok {
		delete(set, info.Name)
		if len(set) == 0 {
			delete(g.subsByTopic, k)
		}
	}
	g.removeEdgesLocked(info.Name, k, false)
	g.cleanupIsolatedLocked(info.Name)
}

func (g *Graph) removeEdgesLocked(node string, k types.TopicKey, nodeIsPublisher bool) {
	for e := range g.edges {
		if e.Key != k {
			continue
		}
		if nodeIsPublisher && e.Src == node {
			delete(g.edges, e)
		}
		if !nodeIsPublisher && e.Dst == node {
			delete(g.edges, e)
		}
	}
}

func (g *Graph) cleanupIsolatedLocked(name string) {
	v, ok := g.nodes[name]
	if !ok {
		return
	}
	if len(v.publishes) > 0 || len(v.subscribes) > 0 {
		return
	}
	for e := range g.edges {
		if e.Src == name || e.Dst == name {
			return
		}
	}
	delete(g.nodes, name)
}

// NodeByName returns a node's identity.
func (g *Graph) NodeByName(name string) (types.NodeIdentity, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.nodes[name]
	if !ok {
		return types.NodeIdentity{}, false
	}
	return v.info, true
}

func (g *Graph) HasNode(name string) bool {
	_, ok := g.NodeByName(name)
	return ok
}

// Nodes returns all node identities whose name contains filter, sorted
// by name.
func (g *Graph) Nodes(filter string) []types.NodeIdentity {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]types.NodeIdentity, 0, len(g.nodes))
	for name, v := range g.nodes {
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}
		out = append(out, v.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NodePublishKeys lists the topic keys a node publishes.
func (g *Graph) NodePublishKeys(name string) []types.TopicKey {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.nodes[name]
	if !ok {
		return nil
	}
	return sortedKeys(v.publishes)
}

// NodeSubscribeKeys lists the topic keys a node subscribes to.
func (g *Graph) NodeSubscribeKeys(name string) []types.TopicKey {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.nodes[name]
	if !ok {
		return nil
	}
	return sortedKeys(v.subscribes)
}

func sortedKeys(set map[types.TopicKey]struct{}) []types.TopicKey {
	out := make([]types.TopicKey, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Topic != out[j].Topic {
			return out[i].Topic < out[j].Topic
		}
		return out[i].MsgType < out[j].MsgType
	})
	return out
}

// SubscribersByTopic returns every subscriber on the topic name,
// regardless of message type. Type-mismatched pairs are matched for
// fan-out; the payload is only interpreted by the receiver.
func (g *Graph) SubscribersByTopic(topic string) []types.NodeIdentity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byTopicLocked(g.subsByTopic, topic)
}

// PublishersByTopic is symmetric to SubscribersByTopic.
func (g *Graph) PublishersByTopic(topic string) []types.NodeIdentity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byTopicLocked(g.pubsByTopic, topic)
}

func (g *Graph) byTopicLocked(index map[types.TopicKey]map[string]struct{}, topic string) []types.NodeIdentity {
	var out []types.NodeIdentity
	seen := make(map[string]struct{})
	for k, names := range index {
		if k.Topic != topic {
			continue
		}
		for name := range names {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			if v, ok := g.nodes[name]; ok {
				out = append(out, v.info)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Topics returns every known topic key whose name contains filter.
func (g *Graph) Topics(filter string) []types.TopicKey {
	g.mu.Lock()
	defer g.mu.Unlock()

	set := make(map[types.TopicKey]struct{})
	for _, v := range g.nodes {
		for k := range v.publishes {
			set[k] = struct{}{}
		}
		for k := range v.subscribes {
			set[k] = struct{}{}
		}
	}
	keys := sortedKeys(set)
	if filter == "" {
		return keys
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.Contains(k.Topic, filter) {
			out = append(out, k)
		}
	}
	return out
}

// TopicMsgType returns the message type recorded for a topic name.
func (g *Graph) TopicMsgType(topic string) (string, bool) {
	for _, k := range g.Topics("") {
		if k.Topic == topic {
			return k.MsgType, true
		}
	}
	return "", false
}

// Counts reports node, topic, and edge cardinality for metrics.
func (g *Graph) Counts() (nodes, topics, edges int) {
	topicCount := len(g.Topics(""))
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes), topicCount, len(g.edges)
}

// Edges returns the derived edge set.
func (g *Graph) Edges() []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Edge, 0, len(g.edges))
	for e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Src != out[j].Src {
			return out[i].Src < out[j].Src
		}
		if out[i].Dst != out[j].Dst {
			return out[i].Dst < out[j].Dst
		}
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// Readable renders a human-oriented dump.
func (g *Graph) Readable() string {
	nodes := g.Nodes("")
	edges := g.Edges()

	var b strings.Builder
	b.WriteString("==== Message Graph ====\n")
	fmt.Fprintf(&b, "Nodes: %d, Edges: %d\n\n[Nodes]\n", len(nodes), len(edges))
	for _, n := range nodes {
		fmt.Fprintf(&b, " - %s (ip=%s, port=%d)\n", n.Name, n.IP, n.Port)
		if pubs := g.NodePublishKeys(n.Name); len(pubs) > 0 {
			b.WriteString("    publishes:\n")
			for _, k := range pubs {
				fmt.Fprintf(&b, "      - %s\n", k)
			}
		}
		if subs := g.NodeSubscribeKeys(n.Name); len(subs) > 0 {
			b.WriteString("    subscribes:\n")
			for _, k := range subs {
				fmt.Fprintf(&b, "      - %s\n", k)
			}
		}
	}
	b.WriteString("\n[Edges]\n")
	for _, e := range edges {
		fmt.Fprintf(&b, " - %s -> %s  [%s]\n", e.Src, e.Dst, e.Key)
	}
	return b.String()
}

// DOT renders the graph for graphviz.
func (g *Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph KiteGraph {\n")
	b.WriteString("  rankdir=LR;\n  node [shape=box, style=rounded];\n")
	for _, n := range g.Nodes("") {
		fmt.Fprintf(&b, "  %q;\n", n.Name)
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(&b, "  %q -> %q [label=\"%s\\n%s\"];\n", e.Src, e.Dst, e.Key.Topic, e.Key.MsgType)
	}
	b.WriteString("}\n")
	return b.String()
}

type jsonNode struct {
	Name       string            `json:"name"`
	IP         string            `json:"ip"`
	Port       int               `json:"port"`
	Publishes  []types.TopicInfo `json:"publishes"`
	Subscribes []types.TopicInfo `json:"subscribes"`
}

type jsonEdge struct {
	Src   string `json:"src"`
	Dst   string `json:"dst"`
	Topic string `json:"topic"`
	Msg   string `json:"msg"`
}

type jsonGraph struct {
	Nodes []jsonNode `json:"nodes"`
	Edges []jsonEdge `json:"edges"`
}

// JSON renders the graph for external tooling.
func (g *Graph) JSON() ([]byte, error) {
	out := jsonGraph{Nodes: []jsonNode{}, Edges: []jsonEdge{}}
	for _, n := range g.Nodes("") {
		jn := jsonNode{Name: n.Name, IP: n.IP, Port: n.Port, Publishes: []types.TopicInfo{}, Subscribes: []types.TopicInfo{}}
		for _, k := range g.NodePublishKeys(n.Name) {
			jn.Publishes = append(jn.Publishes, types.TopicInfo{TopicName: k.Topic, MsgType: k.MsgType})
		}
		for _, k := range g.NodeSubscribeKeys(n.Name) {
			jn.Subscribes = append(jn.Subscribes, types.TopicInfo{TopicName: k.Topic, MsgType: k.MsgType})
		}
		out.Nodes = append(out.Nodes, jn)
	}
	for _, e := range g.Edges() {
		out.Edges = append(out.Edges, jsonEdge{Src: e.Src, Dst: e.Dst, Topic: e.Key.Topic, Msg: e.Key.MsgType})
	}
	return json.MarshalIndent(out, "", "  ")
}
