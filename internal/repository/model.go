package repository

import "time"

type MeetingStatus string

const (
	MeetingStatusUpcoming   MeetingStatus = "upcoming"
	MeetingStatusActive     MeetingStatus = "active"
	MeetingStatusProcessing MeetingStatus = "processing"
	MeetingStatusCompleted  MeetingStatus = "completed"
	MeetingStatusFailed     MeetingStatus = "failed"
	MeetingStatusCancelled  MeetingStatus = "cancelled"
)

type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusPending, SessionStatusInProgress, SessionStatusCompleted:
		return true
	}
	return false
}

type SpeakerType string

const (
	SpeakerTypeUser  SpeakerType = "user"
	SpeakerTypeAgent SpeakerType = "agent"
)

type Meeting struct {
	ID                  string
	UserID              string
	AgentID             string
	Name                string
	Status              MeetingStatus
	Prompt              string
	Summary             string
	Progress            []SessionProgress
	StartedAt           *time.Time
	EndedAt             *time.Time
	ProcessingStartedAt *time.Time
	ErrorMessage        string
	RecordingURL        string
	TranscriptURL       string
	TranscriptCollected bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Agent struct {
	ID                string
	UserID            string
	Name              string
	Instructions      string
	ChatUserID        string
	BlueprintSnapshot *Blueprint
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Blueprint struct {
	Sessions []BlueprintSession `json:"sessions"`
}

type BlueprintSession struct {
	SessionID          string   `json:"session_id"`
	Name               string   `json:"name"`
	CompletionCriteria []string `json:"completion_criteria"`
	Prompt             string   `json:"prompt"`
}

type SessionProgress struct {
	SessionID        string        `json:"session_id"`
	SessionStatus    SessionStatus `json:"session_status"`
	CriteriaMet      []string      `json:"criteria_met"`
	CriteriaPending  []string      `json:"criteria_pending"`
	CompletionNotes  string        `json:"completion_notes,omitempty"`
	ParticipantNotes string        `json:"participant_notes,omitempty"`
	DateCompleted    *time.Time    `json:"date_completed,omitempty"`
}

type TranscriptChunk struct {
	ID        string
	MeetingID string
	Sequence  int
	Speaker   SpeakerType
	Text      string
	SpokenAt  time.Time
	CreatedAt time.Time
}
