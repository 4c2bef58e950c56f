package convstate

import (
	"sync"
	"time"
)

type State string

const (
	StateListening     State = "listening"
	StateUserSpeaking  State = "user_speaking"
	StateAgentThinking State = "agent_thinking"
	StateAgentSpeaking State = "agent_speaking"
)

// Telemetry event names emitted over the live agent connection. Only
// these mutate the tracker; everything else is ignored.
const (
	EventUserSpeechStarted    = "input_audio_buffer.speech_started"
	EventUserSpeechStopped    = "input_audio_buffer.speech_stopped"
	EventAgentResponseCreated = "response.created"
	EventAgentAudioDelta      = "response.audio.delta"
	EventAgentFunctionDelta   = "response.function_call_arguments.delta"
	EventAgentResponseDone    = "response.done"
	EventSessionUpdated       = "session.updated"
)

var stateByEvent = map[string]State{
	EventUserSpeechStarted:    StateUserSpeaking,
	EventUserSpeechStopped:    StateListening,
	EventAgentResponseCreated: StateAgentThinking,
	EventAgentAudioDelta:      StateAgentSpeaking,
	EventAgentFunctionDelta:   StateAgentThinking,
	EventAgentResponseDone:    StateListening,
}

// Snapshot is the externally visible conversation state of one call.
type Snapshot struct {
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"timestamp"`
	LastEvent string    `json:"last_event,omitempty"`
}

// Tracker is an in-memory finite-state machine inferring who is speaking
// from low-level telemetry event names. One instance per active call; it
// is never persisted and dies with the call.
type Tracker struct {
	mu        sync.Mutex
	state     State
	updatedAt time.Time
	lastEvent string
}

func NewTracker() *Tracker {
	return &Tracker{state: StateListening, updatedAt: time.Now()}
}

// Tracked reports whether the event name belongs to the tracker's
// allow-list (including events that carry metadata but no state change).
func Tracked(eventName string) bool {
	if _, ok := stateByEvent[eventName]; ok {
		return true
	}
	return eventName == EventSessionUpdated
}

// HandleEvent maps a telemetry event name to a state. Unrecognized names
// are ignored.
func (t *Tracker) HandleEvent(eventName string) {
	if !Tracked(eventName) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastEvent = eventName
	if next, ok := stateByEvent[eventName]; ok {
		t.state = next
		t.updatedAt = time.Now()
	}
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{State: t.state, UpdatedAt: t.updatedAt, LastEvent: t.lastEvent}
}
