// Package status keeps the latest known stage of every task in memory.
//
// The store holds no history. Entries are bounded by an optional TTL and an
// optional capacity; without them the map grows for the life of the
// process.
package status

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/mrsingh-rishi/transcriber/model"
	"github.com/mrsingh-rishi/transcriber/queue"
)

type entry struct {
	status    model.Status
	resultURL *string
	updated   time.Time
	seq       uint64
}

// ticket marks one insertion; a stale ticket no longer matches its entry's seq.
type ticket struct {
	id  string
	seq uint64
}

// Store is a concurrency-safe task id -> status registry. Last write wins.
type Store struct {
	mu       sync.RWMutex
	tasks    map[string]*entry
	order    *queue.Queue[ticket]
	seq      uint64
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL drops entries that have not been written for ttl. Zero disables it.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithCapacity evicts the oldest-inserted entries once more than n are held.
// Zero disables it.
func WithCapacity(n int) Option {
	return func(s *Store) { s.capacity = n }
}

// WithClock overrides time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		tasks: make(map[string]*entry),
		order: queue.New[ticket](),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update sets the status of taskID, creating the entry if needed.
func (s *Store) Update(taskID string, status model.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.upsert(taskID, status)
	e.status = status
	log.Infof("Update status for Task ID %s: %s", taskID, status)
}

// SetResult records the result url of taskID. A task that was never
// initialised gets the Unknown status.
func (s *Store) SetResult(taskID, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.upsert(taskID, model.StatusUnknown)
	e.resultURL = &url
}

// Get returns the current state of taskID, or the Unknown sentinel for ids
// that were never seen or have expired. It never fails.
func (s *Store) Get(taskID string) model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.tasks[taskID]
	if !ok || s.expired(e, s.now()) {
		return model.Task{ID: taskID, Status: model.StatusUnknown}
	}
	task := model.Task{ID: taskID, Status: e.status}
	if e.resultURL != nil {
		url := *e.resultURL
		task.ResultURL = &url
	}
	return task
}

// Len reports how many entries are held, expired ones included until the
// next Sweep.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Sweep removes expired entries and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl <= 0 {
		return 0
	}
	now := s.now()
	removed := 0
	for id, e := range s.tasks {
		if s.expired(e, now) {
			delete(s.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		s.order.Filter(func(t ticket) bool {
			e, ok := s.tasks[t.id]
			return ok && e.seq == t.seq
		})
	}
	return removed
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.updated) > s.ttl
}

// upsert must be called with mu held.
func (s *Store) upsert(taskID string, initial model.Status) *entry {
	now := s.now()
	e, ok := s.tasks[taskID]
	if ok && s.expired(e, now) {
		delete(s.tasks, taskID)
		ok = false
	}
	if !ok {
		s.seq++
		e = &entry{status: initial, seq: s.seq}
		s.tasks[taskID] = e
		s.order.Enqueue(ticket{id: taskID, seq: e.seq})
		s.evict()
	}
	e.updated = now
	return e
}

func (s *Store) evict() {
	if s.capacity <= 0 {
		return
	}
	for len(s.tasks) > s.capacity {
		t, ok := s.order.Dequeue()
		if !ok {
			return
		}
		if e, held := s.tasks[t.id]; held && e.seq == t.seq {
			delete(s.tasks, t.id)
			log.Debugf("Evicted status for Task ID %s", t.id)
		}
	}
}
