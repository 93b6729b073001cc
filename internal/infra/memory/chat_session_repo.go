package memory

import (
	"context"
	"hash/fnv"
	"sync"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/repository"
)

var _ repository.ChatSessionRepository = (*ChatSessionRepo)(nil)

const sessionShards = 16

type sessionShard struct {
	mu sync.RWMutex
	m  map[string]*model.ChatSession
}

// ChatSessionRepo is the live session registry, sharded by session ID so
// lookups on different sessions don't contend.
type ChatSessionRepo struct {
	shards [sessionShards]*sessionShard
}

func NewChatSessionRepo() *ChatSessionRepo {
	r := &ChatSessionRepo{}
	for i := range r.shards {
		r.shards[i] = &sessionShard{m: make(map[string]*model.ChatSession)}
	}
	return r
}

func (r *ChatSessionRepo) shard(id string) *sessionShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return r.shards[h.Sum32()%sessionShards]
}

func (r *ChatSessionRepo) Save(_ context.Context, s *model.ChatSession) error {
	if s == nil || s.ID == "" {
		return domain.ErrInvalidArgument
	}
	sh := r.shard(s.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.m[s.ID] = s
	return nil
}

func (r *ChatSessionRepo) FindByID(_ context.Context, id string) (*model.ChatSession, error) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.m[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (r *ChatSessionRepo) Delete(_ context.Context, id string) error {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.m, id)
	return nil
}

func (r *ChatSessionRepo) List(_ context.Context) ([]*model.ChatSession, error) {
	var out []*model.ChatSession
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, s := range sh.m {
			out = append(out, s)
		}
		sh.mu.RUnlock()
	}
	return out, nil
}

func (r *ChatSessionRepo) Count(_ context.Context) int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}
