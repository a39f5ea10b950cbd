package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kozaktomas/face-folio/internal/constants"
	"github.com/kozaktomas/face-folio/internal/facematch"
)

// JobStatus represents the status of a run.
type JobStatus string

// JobStatus constants define the lifecycle states of a run.
const (
	JobStatusPending      JobStatus = "pending"
	JobStatusRunning      JobStatus = "running"
	JobStatusAwaitingTags JobStatus = "awaiting_tags"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
	JobStatusCancelled    JobStatus = "cancelled"
)

// RunKind is the pipeline a run executes.
type RunKind string

const (
	RunKindSort     RunKind = "sort"
	RunKindDiscover RunKind = "discover"
)

var (
	// errRunActive is returned when a run is started while another one is active.
	errRunActive = errors.New("another run is already in progress")

	// errNotAwaitingTags is returned when a run cannot be tagged or resumed.
	errNotAwaitingTags = errors.New("run is not awaiting tags")
)

// RunRequest holds the paths of a run.
type RunRequest struct {
	Reference string `json:"reference,omitempty"`
	Event     string `json:"event"`
	Output    string `json:"output"`
}

// RunResult summarizes a finished sort.
type RunResult struct {
	People    []string       `json:"people"`
	Images    int            `json:"images"`
	Matched   int            `json:"matched"`
	Copied    int            `json:"copied"`
	Skipped   int            `json:"skipped"`
	Unmatched int            `json:"unmatched"`
	PerPerson map[string]int `json:"per_person"`
	Errors    []string       `json:"errors,omitempty"`
}

// RunStatus is the externally visible state of a run.
type RunStatus struct {
	ID          string     `json:"id"`
	Kind        RunKind    `json:"kind"`
	Request     RunRequest `json:"request"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"` // percent
	Message     string     `json:"message,omitempty"`
	Error       string     `json:"error,omitempty"`
	FailedStep  string     `json:"failed_step,omitempty"`
	Portraits   int        `json:"portraits"`
	Result      *RunResult `json:"result,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunJob is one asynchronous pipeline run.
type RunJob struct {
	EventBroadcaster

	state     RunStatus
	portraits []facematch.PortraitRecord
}

// ID returns the run ID.
func (j *RunJob) ID() string {
	return j.state.ID
}

// Kind returns the pipeline the run executes.
func (j *RunJob) Kind() RunKind {
	return j.state.Kind
}

// GetStatus returns the current run status (implements SSEJob).
func (j *RunJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state.Status
}

// Snapshot returns a copy of the run state.
func (j *RunJob) Snapshot() RunStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// update changes the run state under the lock.
func (j *RunJob) update(fn func(s *RunStatus)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.state)
}

// Portrait returns the portrait with the given discovery index.
func (j *RunJob) Portrait(index int) (facematch.PortraitRecord, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, p := range j.portraits {
		if p.Index == index {
			return p, true
		}
	}
	return facematch.PortraitRecord{}, false
}

// PortraitList returns the discovered portraits in discovery order.
func (j *RunJob) PortraitList() []facematch.PortraitRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]facematch.PortraitRecord, len(j.portraits))
	copy(out, j.portraits)
	return out
}

// setPortraits records the portraits of the discovery phase.
func (j *RunJob) setPortraits(portraits []facematch.PortraitRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.portraits = portraits
	j.state.Portraits = len(portraits)
}

// replacePortrait stores a renamed portrait. Portraits whose file it replaced
// are dropped and their indices returned.
func (j *RunJob) replacePortrait(rec facematch.PortraitRecord) []int {
	j.mu.Lock()
	defer j.mu.Unlock()
	var dropped []int
	kept := j.portraits[:0]
	for _, p := range j.portraits {
		switch {
		case p.Index == rec.Index:
			kept = append(kept, rec)
		case p.Path == rec.Path:
			dropped = append(dropped, p.Index)
		default:
			kept = append(kept, p)
		}
	}
	clear(j.portraits[len(kept):])
	j.portraits = kept
	j.state.Portraits = len(kept)
	return dropped
}

// Cancel cancels the run. Finished runs keep their status.
func (j *RunJob) Cancel() {
	j.EventBroadcaster.Cancel()
	j.update(func(s *RunStatus) {
		if !isJobTerminal(s.Status) {
			s.Status = JobStatusCancelled
			now := time.Now()
			s.CompletedAt = &now
		}
	})
}

// JobEvent represents an event from a run.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Run cancelled by user"})
}

// setCancel stores the cancel func of the run's current phase.
func (b *EventBroadcaster) setCancel(cancel context.CancelFunc) {
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// RunManager keeps track of runs. At most one run executes at a time.
type RunManager struct {
	runs   map[string]*RunJob
	active *RunJob
	mu     sync.RWMutex
}

// NewRunManager creates a new run manager.
func NewRunManager() *RunManager {
	return &RunManager{
		runs: make(map[string]*RunJob),
	}
}

// CreateRun registers a new pending run, or returns errRunActive.
func (m *RunManager) CreateRun(id string, kind RunKind, req RunRequest) (*RunJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busyLocked() {
		return nil, errRunActive
	}

	job := &RunJob{state: RunStatus{
		ID:        id,
		Kind:      kind,
		Request:   req,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
	}}
	m.runs[id] = job
	m.active = job
	return job, nil
}

// Reactivate moves a run awaiting tags back to pending and makes it the active run.
func (m *RunManager) Reactivate(job *RunJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busyLocked() {
		return errRunActive
	}

	resumable := false
	job.update(func(s *RunStatus) {
		if s.Status == JobStatusAwaitingTags {
			s.Status = JobStatusPending
			resumable = true
		}
	})
	if !resumable {
		return errNotAwaitingTags
	}
	m.active = job
	return nil
}

func (m *RunManager) busyLocked() bool {
	if m.active == nil {
		return false
	}
	status := m.active.GetStatus()
	return status == JobStatusPending || status == JobStatusRunning
}

// Active returns the run that is pending or running, or nil.
func (m *RunManager) Active() *RunJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.busyLocked() {
		return nil
	}
	return m.active
}

// GetRun retrieves a run by ID.
func (m *RunManager) GetRun(id string) *RunJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runs[id]
}

// ListRuns returns all runs.
func (m *RunManager) ListRuns() []*RunJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runs := make([]*RunJob, 0, len(m.runs))
	for _, job := range m.runs {
		runs = append(runs, job)
	}
	return runs
}
