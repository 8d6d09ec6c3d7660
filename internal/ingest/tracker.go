package ingest

import (
	"errors"
	"sync"
	"time"
)

// ErrUploadInFlight is returned when an upload id is reused while its run is
// still going.
var ErrUploadInFlight = errors.New("upload already in progress")

// State summarises where an ingestion run stands.
type State string

const (
	StateRunning  State = "running"
	StateDone     State = "done"
	StateDegraded State = "degraded"
	StateFailed   State = "failed"
)

// Status is a point-in-time view of one ingestion run.
type Status struct {
	// UploadID is the handle the run is tracked under; the client may pick it.
	UploadID  string    `json:"uploadId"`
	VideoID   string    `json:"videoId"`
	Stage     Stage     `json:"stage"`
	State     State     `json:"state"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type trackerEntry struct {
	status  Status
	expires time.Time
}

// Tracker keeps ingestion progress in memory, keyed by upload id. Finished
// runs are forgotten after the configured TTL; running ones are kept until
// they finish.
type Tracker struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	items map[string]trackerEntry
}

// NewTracker returns a Tracker retaining finished runs for ttl.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Tracker{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]trackerEntry),
	}
}

// Begin records a new run for videoID under uploadID at the received stage.
func (t *Tracker) Begin(uploadID, videoID string) error {
	if t == nil {
		return nil
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.items[uploadID]; ok && entry.status.State == StateRunning {
		return ErrUploadInFlight
	}
	t.putLocked(uploadID, Status{
		UploadID:  uploadID,
		VideoID:   videoID,
		Stage:     StageReceived,
		State:     StateRunning,
		StartedAt: now,
		UpdatedAt: now,
	}, false, now)
	return nil
}

// Advance moves a running entry to stage.
func (t *Tracker) Advance(uploadID string, stage Stage) {
	t.update(uploadID, func(s *Status) {
		s.Stage = stage
	}, false)
}

// Complete marks the run finished; degraded runs kept the video but lost previews.
func (t *Tracker) Complete(uploadID string, degraded bool, cause error) {
	t.update(uploadID, func(s *Status) {
		s.Stage = StagePersisted
		s.State = StateDone
		if degraded {
			s.State = StateDegraded
			if cause != nil {
				s.Error = cause.Error()
			}
		}
	}, true)
}

// Fail marks the run failed while moving into stage.
func (t *Tracker) Fail(uploadID string, stage Stage, err error) {
	t.update(uploadID, func(s *Status) {
		s.Stage = stage
		s.State = StateFailed
		if err != nil {
			s.Error = err.Error()
		}
	}, true)
}

// Get returns the latest status tracked under uploadID.
func (t *Tracker) Get(uploadID string) (Status, bool) {
	if t == nil {
		return Status{}, false
	}
	now := t.now()

	t.mu.RLock()
	entry, ok := t.items[uploadID]
	t.mu.RUnlock()
	if !ok || (!entry.expires.IsZero() && !now.Before(entry.expires)) {
		return Status{}, false
	}
	return entry.status, true
}

func (t *Tracker) update(uploadID string, fn func(*Status), terminal bool) {
	if t == nil {
		return
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.items[uploadID]
	status := entry.status
	if !ok {
		status = Status{UploadID: uploadID, State: StateRunning, StartedAt: now}
	}
	fn(&status)
	status.UpdatedAt = now
	t.putLocked(uploadID, status, terminal, now)
}

func (t *Tracker) putLocked(uploadID string, status Status, terminal bool, now time.Time) {
	entry := trackerEntry{status: status}
	if terminal {
		entry.expires = now.Add(t.ttl)
	}
	for id, existing := range t.items {
		if !existing.expires.IsZero() && !now.Before(existing.expires) {
			delete(t.items, id)
		}
	}
	t.items[uploadID] = entry
}
