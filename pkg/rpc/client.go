package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kitemesh/kite/pkg/types"
)

const defaultTimeout = 10 * time.Second

// Client talks to the coordinator. The zero value is not usable; use
// NewClient.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the coordinator at addr, which may be
// a bare host:port or a full http URL.
func NewClient(addr string) *Client {
	if addr == "" {
		addr = DefaultAddr
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &Client{
		base: strings.TrimRight(addr, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}
}

func call[Resp any](ctx context.Context, c *Client, path string, req any) (*Resp, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("coordinator rpc %s: %w", path, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("coordinator rpc %s: read response: %w", path, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coordinator rpc %s: status %d: %s", path, httpResp.StatusCode, strings.TrimSpace(string(raw)))
	}

	resp := new(Resp)
	if err := json.Unmarshal(raw, resp); err != nil {
		return nil, fmt.Errorf("coordinator rpc %s: decode response: %w", path, err)
	}
	return resp, nil
}

// checkStatus folds an unsuccessful response into an error.
func checkStatus(path string, s Status) error {
	if !s.Success {
		return fmt.Errorf("coordinator rpc %s: %s", path, s.Message)
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, topic, msgType string, node types.NodeIdentity) (*SubscribeResponse, error) {
	resp, err := call[SubscribeResponse](ctx, c, PathSubscribe, TopicRequest{TopicName: topic, MsgType: msgType, Node: node})
	if err != nil {
		return nil, err
	}
	return resp, checkStatus(PathSubscribe, resp.Status)
}

func (c *Client) Unsubscribe(ctx context.Context, topic, msgType string, node types.NodeIdentity) error {
	resp, err := call[UnsubscribeResponse](ctx, c, PathUnsubscribe, TopicRequest{TopicName: topic, MsgType: msgType, Node: node})
	if err != nil {
		return err
	}
	return checkStatus(PathUnsubscribe, resp.Status)
}

func (c *Client) RegisterPublisher(ctx context.Context, topic, msgType string, node types.NodeIdentity) error {
	resp, err := call[RegisterPublisherResponse](ctx, c, PathRegisterPublisher, TopicRequest{TopicName: topic, MsgType: msgType, Node: node})
	if err != nil {
		return err
	}
	return checkStatus(PathRegisterPublisher, resp.Status)
}

func (c *Client) UnregisterPublisher(ctx context.Context, topic, msgType string, node types.NodeIdentity) error {
	resp, err := call[UnregisterPublisherResponse](ctx, c, PathUnregisterPublisher, TopicRequest{TopicName: topic, MsgType: msgType, Node: node})
	if err != nil {
		return err
	}
	return checkStatus(PathUnregisterPublisher, resp.Status)
}

func (c *Client) GetNodes(ctx context.Context, filter string) ([]types.NodeIdentity, error) {
	resp, err := call[GetNodesResponse](ctx, c, PathGetNodes, GetNodesRequest{Filter: filter})
	if err != nil {
		return nil, err
	}
	return resp.Nodes, checkStatus(PathGetNodes, resp.Status)
}

func (c *Client) GetNodeInfo(ctx context.Context, name string) (*GetNodeInfoResponse, error) {
	resp, err := call[GetNodeInfoResponse](ctx, c, PathGetNodeInfo, GetNodeInfoRequest{NodeName: name})
	if err != nil {
		return nil, err
	}
	return resp, checkStatus(PathGetNodeInfo, resp.Status)
}

func (c *Client) GetTopics(ctx context.Context, filter string) ([]types.TopicInfo, error) {
	resp, err := call[GetTopicsResponse](ctx, c, PathGetTopics, GetTopicsRequest{Filter: filter})
	if err != nil {
		return nil, err
	}
	return resp.Topics, checkStatus(PathGetTopics, resp.Status)
}

func (c *Client) GetTopicInfo(ctx context.Context, topic string) (*GetTopicInfoResponse, error) {
	resp, err := call[GetTopicInfoResponse](ctx, c, PathGetTopicInfo, GetTopicInfoRequest{TopicName: topic})
	if err != nil {
		return nil, err
	}
	return resp, checkStatus(PathGetTopicInfo, resp.Status)
}
