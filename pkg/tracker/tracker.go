package tracker

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Pipeline statuses. Transitions only move forward:
// initialized -> processing -> completed | error.
const (
	StatusInitialized = "initialized"
	StatusProcessing  = "processing"
	StatusCompleted   = "completed"
	StatusError       = "error"
)

// Step statuses. pending -> running -> done | error.
const (
	StepPending = "pending"
	StepRunning = "running"
	StepDone    = "done"
	StepError   = "error"
)

var (
	ErrSessionNotFound  = errors.New("pipeline session not found")
	ErrDuplicateSession = errors.New("pipeline session already exists")
)

type Step struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Report struct {
	Content       string    `json:"content"`
	GeneratedAt   time.Time `json:"generated_at"`
	RepositoryURL string    `json:"repository_url"`
	ProjectType   string    `json:"project_type"`
}

// PipelineSession is the tracked state of one job.
type PipelineSession struct {
	SessionID   string
	Status      string
	Steps       []Step
	CreatedAt   time.Time
	CompletedAt *time.Time
	Report      *Report
	Error       string
}

// Status is the read view served by the status endpoint.
type Status struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Steps     []Step `json:"steps"`
	Progress  int    `json:"progress"`
}

// Tracker is the in-memory registry of pipeline sessions, keyed by session
// id. One background worker mutates a given session over its lifetime;
// readers can query concurrently and never observe a torn step update.
type Tracker struct {
	mu    sync.RWMutex
	cache *cache.Cache
}

func New() *Tracker {
	// Records live for the process lifetime; no expiration, no janitor.
	return &Tracker{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

// Create registers a new session with the given steps, all pending.
func (t *Tracker) Create(sessionID string, steps []Step) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, found := t.cache.Get(sessionID); found {
		return ErrDuplicateSession
	}

	copied := make([]Step, len(steps))
	copy(copied, steps)
	for i := range copied {
		if copied[i].Status == "" {
			copied[i].Status = StepPending
		}
	}

	t.cache.Set(sessionID, &PipelineSession{
		SessionID: sessionID,
		Status:    StatusInitialized,
		Steps:     copied,
		CreatedAt: time.Now(),
	}, cache.NoExpiration)
	return nil
}

// UpdateStep sets the status and message of one step. Unknown session or
// step ids are silently ignored: the worker is never blocked on a stale
// update.
func (t *Tracker) UpdateStep(sessionID, stepID, status, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.get(sessionID)
	if !ok {
		return
	}
	for i := range session.Steps {
		if session.Steps[i].ID == stepID {
			session.Steps[i].Status = status
			session.Steps[i].Message = message
			break
		}
	}
}

// SetStatus moves the session to the given pipeline status. Reaching
// completed stamps CompletedAt.
func (t *Tracker) SetStatus(sessionID, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.get(sessionID)
	if !ok {
		return
	}
	session.Status = status
	if status == StatusCompleted {
		now := time.Now()
		session.CompletedAt = &now
	}
}

func (t *Tracker) SetReport(sessionID string, report *Report) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if session, ok := t.get(sessionID); ok {
		session.Report = report
	}
}

func (t *Tracker) SetError(sessionID, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if session, ok := t.get(sessionID); ok {
		session.Error = message
	}
}

// GetStatus returns the session's status view.
func (t *Tracker) GetStatus(sessionID string) (*Status, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	session, ok := t.get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	steps := make([]Step, len(session.Steps))
	copy(steps, session.Steps)

	return &Status{
		SessionID: sessionID,
		Status:    session.Status,
		Steps:     steps,
		Progress:  Progress(steps),
	}, nil
}

// Get returns a snapshot copy of the full session record.
func (t *Tracker) Get(sessionID string) (*PipelineSession, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	session, ok := t.get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	snapshot := *session
	snapshot.Steps = make([]Step, len(session.Steps))
	copy(snapshot.Steps, session.Steps)
	if session.Report != nil {
		report := *session.Report
		snapshot.Report = &report
	}
	if session.CompletedAt != nil {
		completedAt := *session.CompletedAt
		snapshot.CompletedAt = &completedAt
	}
	return &snapshot, nil
}

// Progress is the overall completion percentage: round(100 * done / steps),
// 0 for an empty step list.
func Progress(steps []Step) int {
	if len(steps) == 0 {
		return 0
	}
	done := 0
	for _, step := range steps {
		if step.Status == StepDone {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(steps))))
}

// get assumes the caller holds t.mu.
func (t *Tracker) get(sessionID string) (*PipelineSession, bool) {
	if x, found := t.cache.Get(sessionID); found {
		return x.(*PipelineSession), true
	}
	return nil, false
}
