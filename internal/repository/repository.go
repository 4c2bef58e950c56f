package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

type CreateMeetingInput struct {
	UserID   string
	AgentID  string
	Name     string
	Prompt   string
	Progress []SessionProgress
}

// TransitionStamps carries the timestamps a status transition sets.
type TransitionStamps struct {
	StartedAt           *time.Time
	EndedAt             *time.Time
	ProcessingStartedAt *time.Time
}

type CompleteMeetingInput struct {
	MeetingID string
	Summary   string
	Progress  []SessionProgress
}

type InsertChunkInput struct {
	MeetingID string
	Sequence  int
	Speaker   SpeakerType
	Text      string
	SpokenAt  time.Time
}

type MeetingRepository interface {
	GetMeeting(ctx context.Context, meetingID string) (*Meeting, error)
	CreateMeeting(ctx context.Context, input CreateMeetingInput) (*Meeting, error)
	// TransitionMeetingStatus updates status only when the current status is
	// one of from; reports whether a row changed. Duplicate webhook
	// deliveries become no-ops through this guard.
	TransitionMeetingStatus(ctx context.Context, meetingID string, from []MeetingStatus, to MeetingStatus, stamps TransitionStamps) (bool, error)
	CompleteMeeting(ctx context.Context, input CompleteMeetingInput) error
	FailMeeting(ctx context.Context, meetingID string, errorMessage string) error
	SetArtifactURLs(ctx context.Context, meetingID string, recordingURL, transcriptURL string) error
	MarkTranscriptCollected(ctx context.Context, meetingID string) error
}

type AgentRepository interface {
	GetAgent(ctx context.Context, agentID string) (*Agent, error)
}

type TranscriptRepository interface {
	InsertChunk(ctx context.Context, input InsertChunkInput) error
	ListChunksByMeetingID(ctx context.Context, meetingID string) ([]TranscriptChunk, error)
}

type Repository interface {
	MeetingRepository
	AgentRepository
	TranscriptRepository
}
