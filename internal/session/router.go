package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/coachcall/internal/analysis"
	"github.com/foxseedlab/coachcall/internal/config"
	"github.com/foxseedlab/coachcall/internal/convstate"
	"github.com/foxseedlab/coachcall/internal/llm"
	"github.com/foxseedlab/coachcall/internal/observability"
	"github.com/foxseedlab/coachcall/internal/repository"
	"github.com/foxseedlab/coachcall/internal/retry"
	"github.com/foxseedlab/coachcall/internal/rtc"
	"github.com/foxseedlab/coachcall/internal/transcript"
)

const (
	storeRetryAttempts = 3
	storeRetryDelay    = 200 * time.Millisecond

	chatReplyMaxTokens = 1024
)

// Router is the single ingress for provider telemetry. It owns the
// meeting status transitions during a call and wires live telemetry into
// the transcript collector and the conversation state tracker.
type Router struct {
	cfg       *config.Config
	repo      repository.Repository
	rtcClient rtc.Client
	llmClient llm.Client
	collector *transcript.Collector
	registry  *Registry
	runner    *analysis.Runner
	metrics   *observability.Metrics
}

func NewRouter(cfg *config.Config, repo repository.Repository, rtcClient rtc.Client, llmClient llm.Client, collector *transcript.Collector, registry *Registry, runner *analysis.Runner, metrics *observability.Metrics) *Router {
	return &Router{
		cfg:       cfg,
		repo:      repo,
		rtcClient: rtcClient,
		llmClient: llmClient,
		collector: collector,
		registry:  registry,
		runner:    runner,
		metrics:   metrics,
	}
}

// HandleEvent dispatches one parsed webhook event. Not-found and
// duplicate deliveries are acknowledged no-ops; only genuine processing
// failures return an error.
func (r *Router) HandleEvent(ctx context.Context, evt Event) error {
	err := r.dispatch(ctx, evt)
	if r.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		r.metrics.WebhookEventsTotal.WithLabelValues(string(evt.Type()), outcome).Inc()
	}
	return err
}

func (r *Router) dispatch(ctx context.Context, evt Event) error {
	switch e := evt.(type) {
	case SessionStartedEvent:
		return r.handleSessionStarted(ctx, e)
	case SessionEndedEvent:
		return r.handleSessionEnded(ctx, e)
	case ParticipantLeftEvent:
		return r.handleParticipantLeft(ctx, e)
	case TranscriptionReadyEvent:
		return r.handleArtifactReady(ctx, e.MeetingID, "", e.URL)
	case RecordingReadyEvent:
		return r.handleArtifactReady(ctx, e.MeetingID, e.URL, "")
	case MessageNewEvent:
		return r.handleMessageNew(ctx, e)
	default:
		slog.Warn("unhandled event variant", "type", evt.Type())
		return nil
	}
}

func (r *Router) handleSessionStarted(ctx context.Context, evt SessionStartedEvent) error {
	meeting, err := retry.Do(ctx, storeRetryAttempts, storeRetryDelay, "load meeting", func(ctx context.Context) (*repository.Meeting, error) {
		m, err := r.repo.GetMeeting(ctx, evt.MeetingID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, retry.Permanent(err)
		}
		return m, err
	})
	if err != nil {
		return err
	}

	now := time.Now()
	changed, err := r.repo.TransitionMeetingStatus(ctx, meeting.ID,
		[]repository.MeetingStatus{repository.MeetingStatusUpcoming},
		repository.MeetingStatusActive,
		repository.TransitionStamps{StartedAt: &now})
	if err != nil {
		return fmt.Errorf("activate meeting: %w", err)
	}
	if !changed {
		slog.Info("session_started for non-upcoming meeting, ignoring", "meeting_id", meeting.ID, "status", meeting.Status)
		return nil
	}

	if !strings.Contains(meeting.Prompt, analysis.CurriculumStateMarker) {
		configErr := fmt.Errorf("meeting prompt is missing the %s block", analysis.CurriculumStateMarker)
		slog.Error("refusing to bridge agent with malformed prompt", "meeting_id", meeting.ID)
		if failErr := r.repo.FailMeeting(ctx, meeting.ID, configErr.Error()); failErr != nil {
			slog.Error("failed to mark misconfigured meeting as failed", "error", failErr, "meeting_id", meeting.ID)
		}
		return configErr
	}

	conn, err := r.rtcClient.ConnectAgent(ctx, meeting.ID, meeting.Prompt)
	if err != nil {
		bridgeErr := fmt.Errorf("bridge agent into call: %w", err)
		if failErr := r.repo.FailMeeting(ctx, meeting.ID, bridgeErr.Error()); failErr != nil {
			slog.Error("failed to mark meeting as failed after bridge error", "error", failErr, "meeting_id", meeting.ID)
		}
		return bridgeErr
	}

	call := &ActiveCall{Tracker: convstate.NewTracker(), Conn: conn}
	if !r.registry.Register(meeting.ID, call) {
		// Status CAS should make this unreachable; close the extra bridge.
		slog.Warn("call already tracked for meeting, closing duplicate connection", "meeting_id", meeting.ID)
		_ = conn.Close()
		return nil
	}

	go r.consumeRealtimeEvents(meeting.ID, call)
	slog.Info("call activated", "meeting_id", meeting.ID)
	return nil
}

// consumeRealtimeEvents routes live telemetry from the agent connection:
// finished transcript fragments go to the collector tagged by speaker,
// allow-listed event names feed the conversation state tracker.
func (r *Router) consumeRealtimeEvents(meetingID string, call *ActiveCall) {
	for evt := range call.Conn.Events() {
		switch evt.Type {
		case rtc.EventUserTranscriptDone:
			r.collector.StoreChunk(context.Background(), meetingID, repository.SpeakerTypeUser, evt.Text)
		case rtc.EventAgentTranscriptDone:
			r.collector.StoreChunk(context.Background(), meetingID, repository.SpeakerTypeAgent, evt.Text)
		}
		if convstate.Tracked(evt.Type) {
			call.Tracker.HandleEvent(evt.Type)
		}
	}
	slog.Info("realtime event stream ended", "meeting_id", meetingID)
}

func (r *Router) handleSessionEnded(ctx context.Context, evt SessionEndedEvent) error {
	now := time.Now()
	changed, err := r.repo.TransitionMeetingStatus(ctx, evt.MeetingID,
		[]repository.MeetingStatus{repository.MeetingStatusActive},
		repository.MeetingStatusProcessing,
		repository.TransitionStamps{EndedAt: &now, ProcessingStartedAt: &now})
	if err != nil {
		return fmt.Errorf("transition meeting to processing: %w", err)
	}
	if !changed {
		slog.Info("session_ended for non-active meeting, ignoring", "meeting_id", evt.MeetingID)
		return nil
	}

	if err := r.collector.MarkCollected(ctx, evt.MeetingID); err != nil {
		slog.Error("failed to mark transcript collected", "error", err, "meeting_id", evt.MeetingID)
	}

	r.runner.Enqueue(evt.MeetingID)

	r.collector.Cleanup(evt.MeetingID)
	if call := r.registry.Remove(evt.MeetingID); call != nil {
		_ = call.Conn.Close()
	}
	slog.Info("call ended, analysis queued", "meeting_id", evt.MeetingID)
	return nil
}

func (r *Router) handleParticipantLeft(ctx context.Context, evt ParticipantLeftEvent) error {
	if err := r.rtcClient.EndCall(ctx, evt.MeetingID); err != nil {
		slog.Warn("failed to end call after participant left", "error", err, "meeting_id", evt.MeetingID)
	}
	return nil
}

func (r *Router) handleArtifactReady(ctx context.Context, meetingID, recordingURL, transcriptURL string) error {
	err := r.repo.SetArtifactURLs(ctx, meetingID, recordingURL, transcriptURL)
	if err == repository.ErrNotFound {
		slog.Warn("artifact ready for unknown meeting", "meeting_id", meetingID)
		return nil
	}
	return err
}

func (r *Router) handleMessageNew(ctx context.Context, evt MessageNewEvent) error {
	meeting, err := retry.Do(ctx, storeRetryAttempts, storeRetryDelay, "load meeting", func(ctx context.Context) (*repository.Meeting, error) {
		m, err := r.repo.GetMeeting(ctx, evt.ChannelID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, retry.Permanent(err)
		}
		return m, err
	})
	if err != nil {
		return err
	}
	if meeting.Status != repository.MeetingStatusCompleted {
		slog.Info("chat message for non-completed meeting, ignoring", "meeting_id", meeting.ID, "status", meeting.Status)
		return nil
	}

	agent, err := retry.Do(ctx, storeRetryAttempts, storeRetryDelay, "load agent", func(ctx context.Context) (*repository.Agent, error) {
		a, err := r.repo.GetAgent(ctx, meeting.AgentID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, retry.Permanent(err)
		}
		return a, err
	})
	if err != nil {
		return err
	}
	if evt.UserID != "" && evt.UserID == agent.ChatUserID {
		return nil
	}

	history, err := r.rtcClient.ListChannelMessages(ctx, evt.ChannelID, r.cfg.ChatHistoryWindow)
	if err != nil {
		slog.Warn("failed to load chat history, replying without it", "error", err, "meeting_id", meeting.ID)
	}

	resp, err := r.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildChatSystemPrompt(meeting, history),
		Prompt:       evt.Text,
		MaxTokens:    chatReplyMaxTokens,
		Temperature:  0.7,
	})
	if err != nil {
		return fmt.Errorf("chat completion: %w", err)
	}

	if err := r.rtcClient.SendChannelMessage(ctx, evt.ChannelID, agent.ChatUserID, resp.Content); err != nil {
		return fmt.Errorf("post chat reply: %w", err)
	}
	return nil
}

func buildChatSystemPrompt(meeting *repository.Meeting, history []rtc.ChatMessage) string {
	var b strings.Builder
	b.WriteString("You are the coach from a voice coaching call that has ended. ")
	b.WriteString("Answer follow-up questions in the same voice you used on the call.\n\n")
	b.WriteString("ORIGINAL CALL INSTRUCTIONS:\n")
	b.WriteString(meeting.Prompt)
	b.WriteString("\n\nCALL SUMMARY:\n")
	b.WriteString(meeting.Summary)
	if len(history) > 0 {
		b.WriteString("\n\nRECENT CHAT HISTORY:\n")
		for _, m := range history {
			b.WriteString(fmt.Sprintf("%s: %s\n", m.UserID, m.Text))
		}
	}
	return b.String()
}
