package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBadEvent marks a payload that is syntactically or semantically
// malformed. Permanent; the sender should not retry.
var ErrBadEvent = errors.New("bad event payload")

type EventType string

const (
	EventTypeSessionStarted     EventType = "call.session_started"
	EventTypeSessionEnded       EventType = "call.session_ended"
	EventTypeParticipantLeft    EventType = "call.session_participant_left"
	EventTypeTranscriptionReady EventType = "call.transcription_ready"
	EventTypeRecordingReady     EventType = "call.recording_ready"
	EventTypeMessageNew         EventType = "message.new"
)

// Event is one provider telemetry delivery, parsed into a typed variant
// at the ingress boundary so unhandled kinds are visible in the dispatch
// switch instead of being silent string comparisons.
type Event interface {
	Type() EventType
}

type SessionStartedEvent struct {
	MeetingID string
}

func (SessionStartedEvent) Type() EventType { return EventTypeSessionStarted }

type SessionEndedEvent struct {
	MeetingID string
}

func (SessionEndedEvent) Type() EventType { return EventTypeSessionEnded }

type ParticipantLeftEvent struct {
	MeetingID string
}

func (ParticipantLeftEvent) Type() EventType { return EventTypeParticipantLeft }

type TranscriptionReadyEvent struct {
	MeetingID string
	URL       string
}

func (TranscriptionReadyEvent) Type() EventType { return EventTypeTranscriptionReady }

type RecordingReadyEvent struct {
	MeetingID string
	URL       string
}

func (RecordingReadyEvent) Type() EventType { return EventTypeRecordingReady }

type MessageNewEvent struct {
	ChannelID string
	UserID    string
	Text      string
}

func (MessageNewEvent) Type() EventType { return EventTypeMessageNew }

// rawEvent is the provider wire shape: a discriminator plus a union of
// the fields the individual kinds use.
type rawEvent struct {
	Type string `json:"type"`
	Call struct {
		ID string `json:"id"`
	} `json:"call"`
	CallID  string `json:"call_id"`
	URL     string `json:"url"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

func (r *rawEvent) meetingID() string {
	if r.Call.ID != "" {
		return r.Call.ID
	}
	return r.CallID
}

// ParseEvent decodes a webhook body into a typed event. Unknown event
// kinds yield (nil, nil): acknowledged but not dispatched.
func ParseEvent(body []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrBadEvent, err)
	}
	if raw.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrBadEvent)
	}

	switch EventType(raw.Type) {
	case EventTypeSessionStarted, EventTypeSessionEnded, EventTypeParticipantLeft:
		meetingID := raw.meetingID()
		if meetingID == "" {
			return nil, fmt.Errorf("%w: %s without call id", ErrBadEvent, raw.Type)
		}
		switch EventType(raw.Type) {
		case EventTypeSessionStarted:
			return SessionStartedEvent{MeetingID: meetingID}, nil
		case EventTypeSessionEnded:
			return SessionEndedEvent{MeetingID: meetingID}, nil
		default:
			return ParticipantLeftEvent{MeetingID: meetingID}, nil
		}
	case EventTypeTranscriptionReady, EventTypeRecordingReady:
		meetingID := raw.meetingID()
		if meetingID == "" {
			return nil, fmt.Errorf("%w: %s without call id", ErrBadEvent, raw.Type)
		}
		if EventType(raw.Type) == EventTypeTranscriptionReady {
			return TranscriptionReadyEvent{MeetingID: meetingID, URL: raw.URL}, nil
		}
		return RecordingReadyEvent{MeetingID: meetingID, URL: raw.URL}, nil
	case EventTypeMessageNew:
		if raw.Channel.ID == "" {
			return nil, fmt.Errorf("%w: message.new without channel id", ErrBadEvent)
		}
		return MessageNewEvent{ChannelID: raw.Channel.ID, UserID: raw.User.ID, Text: raw.Message.Text}, nil
	default:
		return nil, nil
	}
}
