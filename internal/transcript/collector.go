package transcript

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/coachcall/internal/observability"
	"github.com/foxseedlab/coachcall/internal/repository"
	"github.com/google/uuid"
)

const subscriberBufferSize = 64

// ChunkEvent is the lightweight fan-out payload published to live
// transcript subscribers; it mirrors what gets persisted but never waits
// on the store.
type ChunkEvent struct {
	ID        string                 `json:"id"`
	Speaker   repository.SpeakerType `json:"speaker"`
	Text      string                 `json:"text"`
	Sequence  int                    `json:"sequence"`
	Timestamp time.Time              `json:"timestamp"`
}

type meetingState struct {
	nextSequence int
	subscribers  map[string]chan ChunkEvent
}

// Collector keeps the per-meeting transcript order authoritative: sequence
// numbers are assigned here at store time, not by the caller, so duplicate
// or reordered provider deliveries still get internally consistent numbering.
// Store is the slice of the repository the collector needs.
type Store interface {
	repository.TranscriptRepository
	MarkTranscriptCollected(ctx context.Context, meetingID string) error
}

type Collector struct {
	repo    Store
	metrics *observability.Metrics

	mu       sync.Mutex
	meetings map[string]*meetingState
}

func NewCollector(repo Store, metrics *observability.Metrics) *Collector {
	return &Collector{
		repo:     repo,
		metrics:  metrics,
		meetings: make(map[string]*meetingState),
	}
}

func (c *Collector) state(meetingID string) *meetingState {
	st, ok := c.meetings[meetingID]
	if !ok {
		st = &meetingState{nextSequence: 1, subscribers: make(map[string]chan ChunkEvent)}
		c.meetings[meetingID] = st
	}
	return st
}

// StoreChunk assigns the next sequence number, persists the chunk and
// publishes it to subscribers. Persistence failures are logged and
// swallowed; losing one write must not interrupt a live call.
func (c *Collector) StoreChunk(ctx context.Context, meetingID string, speaker repository.SpeakerType, text string) ChunkEvent {
	now := time.Now()

	c.mu.Lock()
	st := c.state(meetingID)
	seq := st.nextSequence
	st.nextSequence++
	c.mu.Unlock()

	event := ChunkEvent{
		ID:        uuid.New().String(),
		Speaker:   speaker,
		Text:      text,
		Sequence:  seq,
		Timestamp: now,
	}

	if err := c.repo.InsertChunk(ctx, repository.InsertChunkInput{
		MeetingID: meetingID,
		Sequence:  seq,
		Speaker:   speaker,
		Text:      text,
		SpokenAt:  now,
	}); err != nil {
		slog.Error("failed to persist transcript chunk", "error", err, "meeting_id", meetingID, "sequence", seq)
	} else if c.metrics != nil {
		c.metrics.TranscriptChunksTotal.WithLabelValues(string(speaker)).Inc()
	}

	// Publish under the mutex. Channels are closed only under the same
	// mutex, so a send can never race a close; sends never block.
	c.mu.Lock()
	if st, ok := c.meetings[meetingID]; ok {
		for _, ch := range st.subscribers {
			select {
			case ch <- event:
			default:
				slog.Warn("transcript subscriber buffer full, dropping chunk event", "meeting_id", meetingID, "sequence", seq)
			}
		}
	}
	c.mu.Unlock()
	return event
}

// GetTranscript returns all stored chunks in sequence order. An
// unavailable store yields an empty transcript, not an error.
func (c *Collector) GetTranscript(ctx context.Context, meetingID string) []repository.TranscriptChunk {
	chunks, err := c.repo.ListChunksByMeetingID(ctx, meetingID)
	if err != nil {
		slog.Error("failed to load transcript", "error", err, "meeting_id", meetingID)
		return nil
	}
	return chunks
}

// MarkCollected flags that no further chunks are expected for the
// meeting. Idempotent.
func (c *Collector) MarkCollected(ctx context.Context, meetingID string) error {
	return c.repo.MarkTranscriptCollected(ctx, meetingID)
}

// Subscribe returns a token and a channel receiving chunk events for the
// meeting in publish order.
func (c *Collector) Subscribe(meetingID string) (string, <-chan ChunkEvent) {
	token := uuid.New().String()
	ch := make(chan ChunkEvent, subscriberBufferSize)

	c.mu.Lock()
	c.state(meetingID).subscribers[token] = ch
	c.mu.Unlock()

	return token, ch
}

// Unsubscribe removes the subscription; calling it twice is safe.
func (c *Collector) Unsubscribe(meetingID, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.meetings[meetingID]
	if !ok {
		return
	}
	ch, ok := st.subscribers[token]
	if !ok {
		return
	}
	delete(st.subscribers, token)
	close(ch)
}

// Cleanup drops the sequence counter and all subscriptions for a meeting.
// Called once the call is known to be over.
func (c *Collector) Cleanup(meetingID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.meetings[meetingID]
	if !ok {
		return
	}
	delete(c.meetings, meetingID)
	for _, ch := range st.subscribers {
		close(ch)
	}
}
