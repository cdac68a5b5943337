package bridge

import "sync"

const defaultDedupCapacity = 1000

// DedupGate admits each distinct message identity exactly once within
// its retention window. The window is a bounded FIFO set: when an
// insertion would exceed capacity the single oldest insertion is
// evicted first. Lookups never refresh an entry's position.
type DedupGate struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
}

func NewDedupGate(capacity int) *DedupGate {
	if capacity <= 0 {
		capacity = defaultDedupCapacity
	}
	return &DedupGate{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

// Admit returns true exactly once per identity: the caller should
// process the message. Repeated identities return false until the
// identity is evicted by newer insertions.
func (g *DedupGate) Admit(identity string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[identity]; ok {
		return false
	}
	if len(g.order) >= g.capacity {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.seen, oldest)
	}
	g.seen[identity] = struct{}{}
	g.order = append(g.order, identity)
	return true
}

// Len reports the current number of retained identities.
func (g *DedupGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
