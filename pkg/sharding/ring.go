// Package sharding routes document ids to owning nodes via a sticky hash
// and enforces single-writer semantics per entity through a bounded
// mailbox, so the sharded variant preserves the single-node engine's
// per-document invariants across a cluster.
package sharding

import (
	"hash/fnv"
	"sort"
	"sync"
)

// DefaultVirtualNodes is the number of ring positions registered per
// physical node; more virtual nodes flatten the load distribution.
const DefaultVirtualNodes = 150

type vnode struct {
	pos    uint32
	nodeID string
}

// Ring is a consistent-hash ring mapping document ids to owning nodes.
type Ring struct {
	mu      sync.RWMutex
	vnodes  []vnode
	weights map[string]int
}

// NewRing creates an empty ring.
func NewRing() *Ring {
	return &Ring{weights: make(map[string]int)}
}

// Add registers nodeID with weight virtual nodes. Calling Add again for
// an existing nodeID replaces its virtual nodes.
func (r *Ring) Add(nodeID string, weight int) {
	if weight <= 0 {
		weight = DefaultVirtualNodes
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(nodeID)
	r.weights[nodeID] = weight
	for i := 0; i < weight; i++ {
		r.vnodes = append(r.vnodes, vnode{pos: hashKey(vnodeKey(nodeID, i)), nodeID: nodeID})
	}
	sort.Slice(r.vnodes, func(i, j int) bool { return r.vnodes[i].pos < r.vnodes[j].pos })
}

// Remove deregisters nodeID and all of its virtual nodes.
func (r *Ring) Remove(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(nodeID)
}

func (r *Ring) removeLocked(nodeID string) {
	if _, ok := r.weights[nodeID]; !ok {
		return
	}
	delete(r.weights, nodeID)
	kept := r.vnodes[:0:0]
	for _, v := range r.vnodes {
		if v.nodeID != nodeID {
			kept = append(kept, v)
		}
	}
	r.vnodes = kept
}

// Lookup returns the node owning key: the clockwise-nearest virtual node.
// Returns "" if the ring is empty.
func (r *Ring) Lookup(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.vnodes) == 0 {
		return ""
	}
	h := hashKey(key)
	idx := sort.Search(len(r.vnodes), func(i int) bool { return r.vnodes[i].pos >= h })
	if idx == len(r.vnodes) {
		idx = 0
	}
	return r.vnodes[idx].nodeID
}

// Replicas returns up to n distinct physical nodes responsible for key,
// in clockwise order starting from the primary owner.
func (r *Ring) Replicas(key string, n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.vnodes) == 0 || n <= 0 {
		return nil
	}

	h := hashKey(key)
	start := sort.Search(len(r.vnodes), func(i int) bool { return r.vnodes[i].pos >= h })

	seen := make(map[string]struct{}, n)
	var out []string
	for i := 0; i < len(r.vnodes) && len(out) < n; i++ {
		v := r.vnodes[(start+i)%len(r.vnodes)]
		if _, dup := seen[v.nodeID]; dup {
			continue
		}
		seen[v.nodeID] = struct{}{}
		out = append(out, v.nodeID)
	}
	return out
}

// Nodes returns the current set of physical node ids.
func (r *Ring) Nodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.weights))
	for id := range r.weights {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func vnodeKey(nodeID string, i int) string {
	return nodeID + "#" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

func hashKey(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
