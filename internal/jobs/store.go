// Package jobs tracks background report jobs by identifier.
package jobs

import (
	"context"
	"sync"
	"time"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusNotFound   Status = "not_found"
)

type Kind string

const (
	KindPriorArt Kind = "prior_art"
	KindKeywords Kind = "keywords"
	KindDraft    Kind = "draft"
)

func (k Kind) Valid() bool {
	switch k {
	case KindPriorArt, KindKeywords, KindDraft:
		return true
	}
	return false
}

type Result struct {
	Status    Status    `json:"status"`
	Kind      Kind      `json:"kind,omitempty"`
	Report    string    `json:"report,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is written only by the job that owns an id; readers poll Get.
// Get reports StatusNotFound for unknown ids rather than an error.
type Store interface {
	Put(ctx context.Context, id string, r Result) error
	Get(ctx context.Context, id string) (Result, error)
}

type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]Result
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string]Result)}
}

func (s *MemoryStore) Put(_ context.Context, id string, r Result) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	s.results[id] = r
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return Result{Status: StatusNotFound}, nil
	}
	return r, nil
}
