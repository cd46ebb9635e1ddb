// Package rpc defines the coordinator's synchronous request/response
// API: the JSON shapes exchanged over HTTP and the client used by
// nodes, the bridge, and the diagnostic CLI.
package rpc

import "github.com/kitemesh/kite/pkg/types"

// DefaultAddr is where the coordinator serves its RPC endpoints.
const DefaultAddr = "127.0.0.1:50051"

// Endpoint paths. All mutating and query calls are POSTs with a JSON
// body and a JSON response carrying success/message plus the payload.
const (
	PathSubscribe           = "/rpc/v1/subscribe"
	PathUnsubscribe         = "/rpc/v1/unsubscribe"
	PathRegisterPublisher   = "/rpc/v1/register_publisher"
	PathUnregisterPublisher = "/rpc/v1/unregister_publisher"
	PathGetNodes            = "/rpc/v1/get_nodes"
	PathGetNodeInfo         = "/rpc/v1/get_node_info"
	PathGetTopics           = "/rpc/v1/get_topics"
	PathGetTopicInfo        = "/rpc/v1/get_topic_info"
)

// Status is embedded in every response.
type Status struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatusOf lets any embedding response expose its status generically.
func (s Status) StatusOf() Status { return s }

// TopicRequest is the common request body for the four registration
// calls.
type TopicRequest struct {
	TopicName string             `json:"topic_name"`
	MsgType   string             `json:"msg_type"`
	Node      types.NodeIdentity `json:"node"`
}

type SubscribeResponse struct {
	Status
	CurrentPublishers []types.NodeIdentity `json:"current_publishers"`
}

type UnsubscribeResponse struct {
	Status
}

type RegisterPublisherResponse struct {
	Status
}

type UnregisterPublisherResponse struct {
	Status
}

type GetNodesRequest struct {
	Filter string `json:"filter"`
}

type GetNodesResponse struct {
	Status
	Nodes []types.NodeIdentity `json:"nodes"`
}

type GetNodeInfoRequest struct {
	NodeName string `json:"node_name"`
}

type GetNodeInfoResponse struct {
	Status
	Node       types.NodeIdentity `json:"node"`
	Publishes  []types.TopicInfo  `json:"publishes"`
	Subscribes []types.TopicInfo  `json:"subscribes"`
}

type GetTopicsRequest struct {
	Filter string `json:"filter"`
}

type GetTopicsResponse struct {
	Status
	Topics []types.TopicInfo `json:"topics"`
}

type GetTopicInfoRequest struct {
	TopicName string `json:"topic_name"`
}

type GetTopicInfoResponse struct {
	Status
	TopicName   string               `json:"topic_name"`
	MsgType     string               `json:"msg_type"`
	Publishers  []types.NodeIdentity `json:"publishers"`
	Subscribers []types.NodeIdentity `json:"subscribers"`
}
