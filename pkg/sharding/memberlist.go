package sharding

import "sync"

// MemberList reports the live shard nodes and how to reach them. It is the
// seam a real cluster membership protocol (gossip, Raft, k8s endpoints)
// plugs into; StaticMemberList is the default, config-file-driven
// implementation.
type MemberList interface {
	// Nodes returns the ids of every currently live node.
	Nodes() []string
	// Addr returns the dial address for nodeID, or "" if unknown.
	Addr(nodeID string) string
	// Self returns this process's own node id.
	Self() string
}

// StaticMemberList is a fixed, config-supplied set of node id -> address
// pairs with no membership-change detection.
type StaticMemberList struct {
	self string

	mu    sync.RWMutex
	addrs map[string]string
}

// NewStaticMemberList builds a StaticMemberList for the local node self
// and the given id->address map, which should include self's own entry.
func NewStaticMemberList(self string, addrs map[string]string) *StaticMemberList {
	copied := make(map[string]string, len(addrs))
	for k, v := range addrs {
		copied[k] = v
	}
	return &StaticMemberList{self: self, addrs: copied}
}

func (s *StaticMemberList) Nodes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.addrs))
	for id := range s.addrs {
		out = append(out, id)
	}
	return out
}

func (s *StaticMemberList) Addr(nodeID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addrs[nodeID]
}

func (s *StaticMemberList) Self() string {
	return s.self
}

// Set adds or updates a node's address, for tests and operator-driven
// reconfiguration.
func (s *StaticMemberList) Set(nodeID, addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrs[nodeID] = addr
}

// Remove drops a node from the member list.
func (s *StaticMemberList) Remove(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.addrs, nodeID)
}

var _ MemberList = (*StaticMemberList)(nil)
