package limiter

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 64

// windowState is the per-key counter. windowStart and count are only read or
// written while mu is held.
type windowState struct {
	mu          sync.Mutex
	windowStart int64 // epoch milliseconds, a multiple of the window length
	count       int
}

type shard struct {
	mu     sync.RWMutex
	states map[string]*windowState
}

// windowStore maps keys to their window state. Keys are spread over shards
// by xxhash so that first-time inserts for unrelated keys rarely share a
// write lock. Entries are never removed.
type windowStore struct {
	shards []shard
	mask   uint64
}

func newWindowStore(n int) *windowStore {
	size := 1
	for size < n {
		size <<= 1
	}
	s := &windowStore{
		shards: make([]shard, size),
		mask:   uint64(size - 1),
	}
	for i := range s.shards {
		s.shards[i].states = make(map[string]*windowState)
	}
	return s
}

func (s *windowStore) shardFor(key string) *shard {
	return &s.shards[xxhash.Sum64String(key)&s.mask]
}

// getOrCreate returns the single state for key, inserting one seeded with
// windowStart if the key has not been seen. Concurrent callers racing on the
// same unseen key all receive the same pointer.
func (s *windowStore) getOrCreate(key string, windowStart int64) *windowState {
	sh := s.shardFor(key)

	sh.mu.RLock()
	st, ok := sh.states[key]
	sh.mu.RUnlock()
	if ok {
		return st
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if st, ok := sh.states[key]; ok {
		return st
	}
	st = &windowState{windowStart: windowStart}
	sh.states[key] = st
	return st
}

func (s *windowStore) len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.states)
		sh.mu.RUnlock()
	}
	return n
}
