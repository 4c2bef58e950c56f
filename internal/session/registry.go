package session

import (
	"sync"

	"github.com/foxseedlab/coachcall/internal/convstate"
	"github.com/foxseedlab/coachcall/internal/observability"
	"github.com/foxseedlab/coachcall/internal/rtc"
)

// ActiveCall is the in-memory state of one live call. It exists between
// session_started and session_ended and is never persisted.
type ActiveCall struct {
	Tracker *convstate.Tracker
	Conn    rtc.AgentConnection
}

// Registry maps meeting ids to their active call state. Creation and
// teardown points are explicit (session_started / session_ended) so
// lifetime is bounded rather than implied by a shared mutable table.
type Registry struct {
	metrics *observability.Metrics

	mu    sync.Mutex
	calls map[string]*ActiveCall
}

func NewRegistry(metrics *observability.Metrics) *Registry {
	return &Registry{metrics: metrics, calls: make(map[string]*ActiveCall)}
}

// Register stores the call unless one is already tracked for the meeting;
// reports whether it was stored.
func (r *Registry) Register(meetingID string, call *ActiveCall) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.calls[meetingID]; exists {
		return false
	}
	r.calls[meetingID] = call
	if r.metrics != nil {
		r.metrics.ActiveCalls.Set(float64(len(r.calls)))
	}
	return true
}

func (r *Registry) Lookup(meetingID string) (*ActiveCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[meetingID]
	return call, ok
}

// Remove drops the call and returns it for teardown; nil when untracked.
func (r *Registry) Remove(meetingID string) *ActiveCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[meetingID]
	if !ok {
		return nil
	}
	delete(r.calls, meetingID)
	if r.metrics != nil {
		r.metrics.ActiveCalls.Set(float64(len(r.calls)))
	}
	return call
}
