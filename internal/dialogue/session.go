package dialogue

import (
	"sync"
	"sync/atomic"

	"github.com/cardio-ai/triage/internal/shared/metrics"
)

// Stage identifies where a session is in the intake script
type Stage string

const (
	StageAskName         Stage = "ask_name"
	StageAskAge          Stage = "ask_age"
	StageAskEmail        Stage = "ask_email"
	StageCollectSymptoms Stage = "collect_symptoms"
	StageFollowups       Stage = "followups"
	StageCompleted       Stage = "completed"
)

// FollowUpItem is one queued follow-up question together with the symptoms it
// was derived from. Items are immutable once enqueued and consumed in order.
type FollowUpItem struct {
	Symptoms []string
	Index    int
	Text     string
}

// Session holds all per-connection dialogue state. Handlers lock the session
// for the duration of one event, so two events for the same session never
// interleave; different sessions are independent.
type Session struct {
	mu     sync.Mutex
	closed atomic.Bool

	ID    string
	Stage Stage

	Name  string
	Age   string
	Email string

	PatientID int
	ConsultID int

	Queue        []FollowUpItem
	LastQuestion *FollowUpItem
	RetryCount   int
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// Closed reports whether the session was purged from the registry. Handlers
// check this after every gateway call so a slow model response cannot
// resurrect state for a disconnected session.
func (s *Session) Closed() bool { return s.closed.Load() }

// PopQuestion removes and returns the next queued item, or nil when the queue
// is drained.
func (s *Session) PopQuestion() *FollowUpItem {
	if len(s.Queue) == 0 {
		return nil
	}
	item := s.Queue[0]
	s.Queue = s.Queue[1:]
	s.LastQuestion = &item
	return &item
}

// Registry maps session ids to their dialogue state. It owns session
// lifetimes: Create on connect, Delete on disconnect or completion.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers a fresh session at the first stage, replacing any stale
// entry under the same id.
func (r *Registry) Create(id string) *Session {
	s := &Session{ID: id, Stage: StageAskName}
	r.mu.Lock()
	prev := r.sessions[id]
	r.sessions[id] = s
	r.mu.Unlock()
	if prev != nil {
		prev.closed.Store(true)
	} else {
		metrics.RecordSessionOpened()
	}
	return s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	return s, ok
}

// Delete purges a session exactly once. Returns false when the id was already
// gone, so a disconnect racing a completion cannot double-count.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.closed.Store(true)
	metrics.RecordSessionClosed()
	return true
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
