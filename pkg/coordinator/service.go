// Package coordinator implements the central registry: the RPC service
// owning the graph, and the push channel that streams target deltas to
// affected publishers whenever the graph changes.
package coordinator

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kitemesh/kite/pkg/graph"
	"github.com/kitemesh/kite/pkg/rpc"
	"github.com/kitemesh/kite/pkg/types"
	"github.com/kitemesh/kite/pkg/wire"
)

// Service handles the synchronous RPC surface. A single mutex makes
// each graph mutation and its outbound push one logical step: a
// publisher that receives an Add for subscriber s can rely on s already
// being registered.
type Service struct {
	mu      sync.Mutex
	graph   *graph.Graph
	pusher  *Pusher
	metrics *Metrics
	log     *zap.SugaredLogger
}

func NewService(g *graph.Graph, pusher *Pusher, metrics *Metrics) *Service {
	return &Service{
		graph:   g,
		pusher:  pusher,
		metrics: metrics,
		log:     zap.S().Named("coordinator"),
	}
}

func (s *Service) Graph() *graph.Graph {
	return s.graph
}

func (s *Service) finishMutation() {
	if s.metrics != nil {
		s.metrics.setGraphSize(s.graph.Counts())
	}
}

// Subscribe registers the node as a subscriber and pushes an add delta
// to every current publisher on the topic.
func (s *Service) Subscribe(req rpc.TopicRequest) rpc.SubscribeResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := types.TopicKey{Topic: req.TopicName, MsgType: req.MsgType}
	s.graph.AddSubscriber(req.Node, key)
	s.log.Infow("subscribe", "topic", req.TopicName, "type", req.MsgType, "node", req.Node.Name)

	update := wire.TargetsUpdate{Topic: req.TopicName, AddTargets: []types.NodeIdentity{req.Node}}
	publishers := s.graph.PublishersByTopic(req.TopicName)
	for _, pub := range publishers {
		s.pusher.Send(pub, update)
	}
	s.log.Debugw("notified publishers of new subscriber", "topic", req.TopicName, "count", len(publishers))

	s.finishMutation()
	return rpc.SubscribeResponse{
		Status:            rpc.Status{Success: true, Message: "subscribe success"},
		CurrentPublishers: publishers,
	}
}

// Unsubscribe removes the subscriber and pushes a remove delta to every
// current publisher.
func (s *Service) Unsubscribe(req rpc.TopicRequest) rpc.UnsubscribeResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := types.TopicKey{Topic: req.TopicName, MsgType: req.MsgType}
	s.graph.RemoveSubscriber(req.Node, key)
	s.log.Infow("unsubscribe", "topic", req.TopicName, "type", req.MsgType, "node", req.Node.Name)

	update := wire.TargetsUpdate{Topic: req.TopicName, RemoveTargets: []types.NodeIdentity{req.Node}}
	for _, pub := range s.graph.PublishersByTopic(req.TopicName) {
		s.pusher.Send(pub, update)
	}

	s.finishMutation()
	return rpc.UnsubscribeResponse{Status: rpc.Status{Success: true, Message: "unsubscribe success"}}
}

// RegisterPublisher registers the node as a publisher and pushes the
// full current subscriber set to the new publisher only.
func (s *Service) RegisterPublisher(req rpc.TopicRequest) rpc.RegisterPublisherResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := types.TopicKey{Topic: req.TopicName, MsgType: req.MsgType}
	s.graph.AddPublisher(req.Node, key)
	s.log.Infow("register publisher", "topic", req.TopicName, "type", req.MsgType, "node", req.Node.Name)

	if subs := s.graph.SubscribersByTopic(req.TopicName); len(subs) > 0 {
		s.pusher.Send(req.Node, wire.TargetsUpdate{Topic: req.TopicName, AddTargets: subs})
	}

	s.finishMutation()
	return rpc.RegisterPublisherResponse{Status: rpc.Status{Success: true, Message: "register publisher success"}}
}

// UnregisterPublisher updates the graph only. Subscribers hold no
// connection state, so no push is issued; stale connections drain when
// the publisher closes them.
func (s *Service) UnregisterPublisher(req rpc.TopicRequest) rpc.UnregisterPublisherResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := types.TopicKey{Topic: req.TopicName, MsgType: req.MsgType}
	s.graph.RemovePublisher(req.Node, key)
	s.log.Infow("unregister publisher", "topic", req.TopicName, "type", req.MsgType, "node", req.Node.Name)

	s.finishMutation()
	return rpc.UnregisterPublisherResponse{Status: rpc.Status{Success: true, Message: "unregister publisher success"}}
}

// GetNodes lists nodes matching a substring filter.
func (s *Service) GetNodes(req rpc.GetNodesRequest) rpc.GetNodesResponse {
	return rpc.GetNodesResponse{
		Status: rpc.Status{Success: true, Message: "get nodes success"},
		Nodes:  s.graph.Nodes(req.Filter),
	}
}

// GetNodeInfo returns a node's identity and topic keys.
func (s *Service) GetNodeInfo(req rpc.GetNodeInfoRequest) rpc.GetNodeInfoResponse {
	info, ok := s.graph.NodeByName(req.NodeName)
	if !ok {
		return rpc.GetNodeInfoResponse{Status: rpc.Status{Success: false, Message: "node not found: " + req.NodeName}}
	}

	resp := rpc.GetNodeInfoResponse{
		Status: rpc.Status{Success: true, Message: "get node info success"},
		Node:   info,
	}
	for _, k := range s.graph.NodePublishKeys(req.NodeName) {
		resp.Publishes = append(resp.Publishes, types.TopicInfo{TopicName: k.Topic, MsgType: k.MsgType})
	}
	for _, k := range s.graph.NodeSubscribeKeys(req.NodeName) {
		resp.Subscribes = append(resp.Subscribes, types.TopicInfo{TopicName: k.Topic, MsgType: k.MsgType})
	}
	return resp
}

// GetTopics lists topic keys matching a substring filter.
func (s *Service) GetTopics(req rpc.GetTopicsRequest) rpc.GetTopicsResponse {
	resp := rpc.GetTopicsResponse{Status: rpc.Status{Success: true, Message: "get topics success"}}
	for _, k := range s.graph.Topics(req.Filter) {
		resp.Topics = append(resp.Topics, types.TopicInfo{TopicName: k.Topic, MsgType: k.MsgType})
	}
	return resp
}

// GetTopicInfo returns the publishers and subscribers on a topic name.
func (s *Service) GetTopicInfo(req rpc.GetTopicInfoRequest) rpc.GetTopicInfoResponse {
	msgType, ok := s.graph.TopicMsgType(req.TopicName)
	if !ok {
		return rpc.GetTopicInfoResponse{Status: rpc.Status{Success: false, Message: "topic not found: " + req.TopicName}}
	}

	return rpc.GetTopicInfoResponse{
		Status:      rpc.Status{Success: true, Message: "get topic info success"},
		TopicName:   req.TopicName,
		MsgType:     msgType,
		Publishers:  s.graph.PublishersByTopic(req.TopicName),
		Subscribers: s.graph.SubscribersByTopic(req.TopicName),
	}
}
