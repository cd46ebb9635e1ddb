package node

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kitemesh/kite/pkg/types"
	"github.com/kitemesh/kite/pkg/wire"
)

// TargetsTable maps topic name to the subscriber addresses this node's
// publishers should send to. It is mutated only by TargetsUpdate
// control frames from the coordinator; each update is a full add/remove
// delta and idempotent, so convergence is eventual.
type TargetsTable struct {
	mu      sync.RWMutex
	log     *zap.SugaredLogger
	byTopic map[string]map[string]types.NodeIdentity
}

func newTargetsTable() *TargetsTable {
	return &TargetsTable{
		log:     zap.S().Named("targets"),
		byTopic: make(map[string]map[string]types.NodeIdentity),
	}
}

// Apply merges add_targets and removes remove_targets, keyed by
// (ip, port).
func (t *TargetsTable) Apply(u wire.TargetsUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.byTopic[u.Topic]
	if !ok {
		set = make(map[string]types.NodeIdentity)
		t.byTopic[u.Topic] = set
	}
	for _, id := range u.AddTargets {
		set[id.Addr()] = id
	}
	for _, id := range u.RemoveTargets {
		delete(set, id.Addr())
	}
	if len(set) == 0 {
		delete(t.byTopic, u.Topic)
	}

	t.log.Infow("targets updated", "topic", u.Topic, "add", len(u.AddTargets), "remove", len(u.RemoveTargets))
}

// Targets returns the current subscriber identities for a topic.
func (t *TargetsTable) Targets(topic string) []types.NodeIdentity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set := t.byTopic[topic]
	out := make([]types.NodeIdentity, 0, len(set))
	for _, id := range set {
		out = append(out, id)
	}
	return out
}
