package challenge

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/authpay/server/internal/model"
)

const shardCount = 16

// MemoryStore is a thread-safe in-memory Store. Records are sharded by id so
// that verifies for different challenges do not contend on one lock.
// Challenges are lost on restart.
type MemoryStore struct {
	ttl    time.Duration
	shards [shardCount]*memoryShard
}

type memoryShard struct {
	mu   sync.RWMutex
	data map[string]model.Challenge
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory challenge store with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{ttl: ttl}
	for i := range s.shards {
		s.shards[i] = &memoryShard{data: make(map[string]model.Challenge)}
	}
	return s
}

func (s *MemoryStore) shard(id string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return s.shards[h.Sum32()%shardCount]
}

func (s *MemoryStore) Create(_ context.Context, ch model.Challenge) (model.Challenge, error) {
	ch.ID = uuid.NewString()
	ch.CreatedAt = time.Now()
	ch.ExpiresAt = ch.CreatedAt.Add(s.ttl)
	ch.Verified = false
	ch.VerifiedAt = nil

	sh := s.shard(ch.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, exists := sh.data[ch.ID]; exists {
		return model.Challenge{}, ErrIDCollision
	}
	sh.data[ch.ID] = ch
	return ch, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Challenge, error) {
	sh := s.shard(id)
	sh.mu.RLock()
	ch, ok := sh.data[id]
	sh.mu.RUnlock()
	if !ok {
		return model.Challenge{}, ErrNotFound
	}
	return ch, nil
}

func (s *MemoryStore) MarkVerified(_ context.Context, id string, now time.Time) (model.Challenge, error) {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	ch, ok := sh.data[id]
	if !ok {
		return model.Challenge{}, ErrNotFound
	}
	// Expiry strictly precedes the already-verified check: a stale
	// challenge must never be approved, even in a race with the sweeper.
	if ch.Expired(now) {
		delete(sh.data, id)
		return model.Challenge{}, ErrExpired
	}
	if ch.Verified {
		return model.Challenge{}, ErrAlreadyVerified
	}

	verifiedAt := now
	ch.Verified = true
	ch.VerifiedAt = &verifiedAt
	sh.data[id] = ch
	return ch, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	sh := s.shard(id)
	sh.mu.Lock()
	delete(sh.data, id)
	sh.mu.Unlock()
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, ch := range sh.data {
			if ch.Expired(now) {
				delete(sh.data, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.data)
		sh.mu.RUnlock()
	}
	return total, nil
}
