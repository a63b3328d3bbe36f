package coordinator

import (
	"hash/fnv"
	"io"
	"sync"
	"time"

	"trustmesh/internal/models"
	"trustmesh/pkg/domain"
)

const shardCount = 32

// entry is one active connection. mu serialises mutations of this connection
// only; removed is set under mu by whoever takes the entry out of its shard.
type entry struct {
	mu           sync.Mutex
	removed      bool
	conn         models.SecureConnection
	metrics      models.ConnectionMetrics
	lastActivity time.Time
	channel      io.Closer
}

func (e *entry) status() models.ConnectionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.ConnectionStatus{
		Connection:   e.conn,
		Metrics:      e.metrics,
		LastActivity: e.lastActivity,
	}
}

type shard struct {
	mu      sync.RWMutex
	entries map[domain.ConnectionID]*entry
}

// registry is a sharded map keyed by connection id. Shard locks guard
// membership only.
type registry struct {
	shards [shardCount]*shard
}

func newRegistry() *registry {
	r := &registry{}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[domain.ConnectionID]*entry)}
	}
	return r
}

func (r *registry) shardFor(id domain.ConnectionID) *shard {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return r.shards[h.Sum32()%shardCount]
}

// insert adds e under its connection id. It reports false if the id is taken.
func (r *registry) insert(e *entry) bool {
	s := r.shardFor(e.conn.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[e.conn.ID]; exists {
		return false
	}
	s.entries[e.conn.ID] = e
	return true
}

func (r *registry) get(id domain.ConnectionID) (*entry, bool) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// remove deletes id if it still maps to e. Callers hold e.mu.
func (r *registry) remove(id domain.ConnectionID, e *entry) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[id] == e {
		delete(s.entries, id)
	}
}

func (r *registry) all() []*entry {
	var out []*entry
	for _, s := range r.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			out = append(out, e)
		}
		s.mu.RUnlock()
	}
	return out
}

func (r *registry) len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
