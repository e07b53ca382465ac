package backfill

import (
	"sync"
	"time"
)

// State is a backfill run's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is a terminal one.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Counters tracks per-run processing tallies. All counters are monotonically
// non-decreasing for the lifetime of a run.
type Counters struct {
	Fetched    int64 `json:"fetched"`
	Saved      int64 `json:"saved"`
	Duplicates int64 `json:"duplicates"`
	Deleted    int64 `json:"deleted"`
	NonMedia   int64 `json:"nonMedia"`
	Errors     int64 `json:"errors"`
}

// Snapshot is a point-in-time view of a run, used for progress reports and
// the terminal summary. It reflects a prefix of the processed range; exact
// real-time accuracy is not guaranteed.
type Snapshot struct {
	RunID      string        `json:"runId"`
	ChannelID  int64         `json:"channelId"`
	State      State         `json:"state"`
	RangeStart int64         `json:"rangeStart"`
	RangeEnd   int64         `json:"rangeEnd"`
	Counters   Counters      `json:"counters"`
	Elapsed    time.Duration `json:"elapsed"`
	Percent    float64       `json:"percent"`
	ETA        time.Duration `json:"eta"`
	Error      string        `json:"error,omitempty"`
}

// Run is one backfill execution over a message-id range. The range start is
// exclusive (the externally supplied skip offset); the end is inclusive.
type Run struct {
	ID         string    `json:"id"`
	ChannelID  int64     `json:"channelId"`
	RangeStart int64     `json:"rangeStart"`
	RangeEnd   int64     `json:"rangeEnd"`
	StartedAt  time.Time `json:"startedAt"`

	mu       sync.Mutex
	state    State
	counters Counters
	failure  string

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newRun(id string, channelID, skipOffset, lastMessageID int64) *Run {
	return &Run{
		ID:         id,
		ChannelID:  channelID,
		RangeStart: skipOffset,
		RangeEnd:   lastMessageID,
		StartedAt:  time.Now(),
		state:      StatePending,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Cancel requests cancellation. The run stops at the next item boundary; an
// in-flight fetch is allowed to finish.
func (r *Run) Cancel() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Wait blocks until the run reaches a terminal state.
func (r *Run) Wait() {
	<-r.done
}

// State returns the run's current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Counters returns a copy of the current counters.
func (r *Run) CountersSnapshot() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

// Snapshot builds a progress snapshot from the run's current counters.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.StartedAt)
	totalRange := r.RangeEnd - r.RangeStart

	snap := Snapshot{
		RunID:      r.ID,
		ChannelID:  r.ChannelID,
		State:      r.state,
		RangeStart: r.RangeStart,
		RangeEnd:   r.RangeEnd,
		Counters:   r.counters,
		Elapsed:    elapsed,
		Error:      r.failure,
	}

	processed := r.counters.Fetched + r.counters.Deleted + r.counters.Errors
	if totalRange > 0 && processed > 0 {
		snap.Percent = float64(processed) / float64(totalRange) * 100
		remaining := totalRange - processed
		snap.ETA = time.Duration(float64(elapsed) / float64(processed) * float64(remaining))
	}

	return snap
}

func (r *Run) cancelled() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func (r *Run) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Run) fail(err error) {
	r.mu.Lock()
	r.state = StateFailed
	r.failure = err.Error()
	r.mu.Unlock()
}

func (r *Run) bump(fn func(c *Counters)) {
	r.mu.Lock()
	fn(&r.counters)
	r.mu.Unlock()
}
