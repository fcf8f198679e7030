// internal/api/job/store.go
package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newthinker/dzibridge/internal/core"
)

// Status represents job status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Finished reports whether the job reached a terminal state.
func (s Status) Finished() bool {
	return s == StatusComplete || s == StatusFailed
}

// Job represents an async job.
type Job struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Status    Status      `json:"status"`
	Progress  int         `json:"progress"`
	Input     string      `json:"input,omitempty"`
	Result    any         `json:"result,omitempty"`
	Error     *core.Error `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Store manages async jobs. Finished jobs older than the TTL are dropped,
// and when the store is full the oldest finished job is evicted. Jobs still
// pending or running are never evicted.
type Store struct {
	jobs    map[string]*Job
	order   []string // Track insertion order for eviction
	maxSize int
	ttl     time.Duration
	mu      sync.RWMutex
	now     func() time.Time
}

// NewStore creates a new job store.
func NewStore(maxSize int, ttl time.Duration) *Store {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Store{
		jobs:    make(map[string]*Job),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create creates a new job and returns a copy of it. It fails with
// ErrJobStoreFull when the store is full and no job has finished yet.
func (s *Store) Create(jobType, input string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()

	if len(s.jobs) >= s.maxSize && !s.evictFinishedLocked() {
		return Job{}, core.WrapError(core.ErrJobStoreFull, fmt.Errorf("%d jobs unfinished", len(s.jobs)))
	}

	now := s.now()
	job := &Job{
		ID:        "job_" + uuid.NewString(),
		Type:      jobType,
		Status:    StatusPending,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)

	return *job, nil
}

// Get retrieves a job by ID.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok || s.expired(job) {
		return nil, core.WrapError(core.ErrJobNotFound, nil)
	}

	// Return copy to prevent race conditions
	jobCopy := *job
	return &jobCopy, nil
}

// Update modifies a job using an update function.
func (s *Store) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return core.WrapError(core.ErrJobNotFound, nil)
	}

	fn(job)
	job.UpdatedAt = s.now()
	return nil
}

// List returns all live jobs, oldest first.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Job, 0, len(s.jobs))
	for _, id := range s.order {
		if job := s.jobs[id]; !s.expired(job) {
			result = append(result, *job)
		}
	}
	return result
}

// Active counts jobs of jobType that have not finished.
func (s *Store) Active(jobType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, job := range s.jobs {
		if job.Type == jobType && !job.Status.Finished() {
			n++
		}
	}
	return n
}

func (s *Store) expired(job *Job) bool {
	return s.ttl > 0 && job.Status.Finished() && s.now().Sub(job.UpdatedAt) > s.ttl
}

// evictFinishedLocked drops the oldest finished job and reports whether
// there was one.
func (s *Store) evictFinishedLocked() bool {
	for i, id := range s.order {
		if s.jobs[id].Status.Finished() {
			delete(s.jobs, id)
			s.order = append(s.order[:i], s.order[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) expireLocked() {
	kept := s.order[:0]
	for _, id := range s.order {
		if s.expired(s.jobs[id]) {
			delete(s.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}
