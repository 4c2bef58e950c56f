package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/coachcall/internal/config"
	"github.com/foxseedlab/coachcall/internal/llm"
	"github.com/foxseedlab/coachcall/internal/repository"
	"github.com/foxseedlab/coachcall/internal/retry"
)

const (
	storeRetryAttempts = 3
	storeRetryDelay    = 250 * time.Millisecond

	// LLM calls are costly; fewer attempts, longer backoff.
	llmRetryAttempts = 2
	llmRetryDelay    = 3 * time.Second
)

// Pipeline turns a finished call's transcript into curriculum progress
// and, when the curriculum is unfinished, the next upcoming meeting.
type Pipeline struct {
	cfg  *config.Config
	repo repository.Repository
	llm  llm.Client
}

func NewPipeline(cfg *config.Config, repo repository.Repository, llmClient llm.Client) *Pipeline {
	return &Pipeline{cfg: cfg, repo: repo, llm: llmClient}
}

// Run executes one analysis pass for an ended meeting. Every failure
// after the meeting is known to exist ends in a best-effort terminal
// `failed` write; if even that write fails, the meeting is left in
// `processing` and surfaces through processing_started_at staleness.
func (p *Pipeline) Run(ctx context.Context, meetingID string) error {
	slog.Info("analysis run started", "meeting_id", meetingID)

	meeting, err := retry.Do(ctx, storeRetryAttempts, storeRetryDelay, "load meeting", func(ctx context.Context) (*repository.Meeting, error) {
		m, err := p.repo.GetMeeting(ctx, meetingID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, retry.Permanent(err)
		}
		return m, err
	})
	if err != nil {
		slog.Error("analysis aborted: meeting unavailable", "error", err, "meeting_id", meetingID)
		return err
	}

	if err := p.analyze(ctx, meeting); err != nil {
		slog.Error("analysis failed", "error", err, "meeting_id", meetingID)
		if failErr := retry.DoVoid(ctx, 2, storeRetryDelay, "mark meeting failed", func(ctx context.Context) error {
			return p.repo.FailMeeting(ctx, meetingID, err.Error())
		}); failErr != nil {
			slog.Error("failed to record terminal failure; meeting remains in processing", "error", failErr, "meeting_id", meetingID)
		}
		return err
	}

	slog.Info("analysis run completed", "meeting_id", meetingID)
	return nil
}

func (p *Pipeline) analyze(ctx context.Context, meeting *repository.Meeting) error {
	agent, err := retry.Do(ctx, storeRetryAttempts, storeRetryDelay, "load agent", func(ctx context.Context) (*repository.Agent, error) {
		a, err := p.repo.GetAgent(ctx, meeting.AgentID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, retry.Permanent(err)
		}
		return a, err
	})
	if err != nil {
		return fmt.Errorf("load agent: %w", err)
	}

	chunks, err := retry.Do(ctx, storeRetryAttempts, storeRetryDelay, "load transcript", func(ctx context.Context) ([]repository.TranscriptChunk, error) {
		return p.repo.ListChunksByMeetingID(ctx, meeting.ID)
	})
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	transcript := FormatTranscript(chunks)

	if agent.BlueprintSnapshot != nil && len(agent.BlueprintSnapshot.Sessions) > 0 {
		return p.analyzeWithBlueprint(ctx, meeting, agent.BlueprintSnapshot, transcript)
	}
	return p.summarizeOnly(ctx, meeting, transcript)
}

func (p *Pipeline) analyzeWithBlueprint(ctx context.Context, meeting *repository.Meeting, blueprint *repository.Blueprint, transcript string) error {
	prompt, err := buildAnalysisPrompt(blueprint, meeting.Progress, transcript)
	if err != nil {
		return err
	}

	result, err := retry.Do(ctx, llmRetryAttempts, llmRetryDelay, "curriculum analysis", func(ctx context.Context) (*analysisResult, error) {
		var r analysisResult
		if err := p.llm.CompleteStructured(ctx, llm.CompletionRequest{
			SystemPrompt: analysisSystemPrompt,
			Prompt:       prompt,
			MaxTokens:    p.cfg.LLMAnalysisMaxTok,
			Temperature:  0.2,
		}, &r); err != nil {
			return nil, err
		}
		return &r, nil
	})
	if err != nil {
		return fmt.Errorf("analysis model call: %w", err)
	}
	if err := result.validate(); err != nil {
		return err
	}
	if regressed := clampProgressRegressions(meeting.Progress, result.UpdatedProgress); len(regressed) > 0 {
		slog.Warn("model moved session status backward, keeping stored progress", "meeting_id", meeting.ID, "session_ids", regressed)
	}
	// date_completed is stamped here, not trusted to the model.
	completedAt := time.Now()
	for i := range result.UpdatedProgress {
		p := &result.UpdatedProgress[i]
		if p.SessionStatus == repository.SessionStatusCompleted && p.DateCompleted == nil {
			p.DateCompleted = &completedAt
		}
	}
	if missing := missingMarkers(result.NextSessionPrompt); len(missing) > 0 {
		slog.Warn("generated next-session prompt is missing section markers", "meeting_id", meeting.ID, "missing", missing)
	}

	if err := retry.DoVoid(ctx, storeRetryAttempts, storeRetryDelay, "complete meeting", func(ctx context.Context) error {
		return p.repo.CompleteMeeting(ctx, repository.CompleteMeetingInput{
			MeetingID: meeting.ID,
			Summary:   result.ProgressSummary,
			Progress:  result.UpdatedProgress,
		})
	}); err != nil {
		return fmt.Errorf("persist analysis result: %w", err)
	}

	next := nextSession(blueprint, result.UpdatedProgress)
	if next == nil {
		slog.Info("curriculum finished, no next meeting created", "meeting_id", meeting.ID)
		return nil
	}

	livePrompt, err := composeLivePrompt(result.NextSessionPrompt, result.UpdatedProgress)
	if err != nil {
		return err
	}
	created, err := retry.Do(ctx, storeRetryAttempts, storeRetryDelay, "create next meeting", func(ctx context.Context) (*repository.Meeting, error) {
		return p.repo.CreateMeeting(ctx, repository.CreateMeetingInput{
			UserID:   meeting.UserID,
			AgentID:  meeting.AgentID,
			Name:     next.Name,
			Prompt:   livePrompt,
			Progress: result.UpdatedProgress,
		})
	})
	if err != nil {
		return fmt.Errorf("create next meeting: %w", err)
	}
	slog.Info("next meeting created", "meeting_id", meeting.ID, "next_meeting_id", created.ID, "session_id", next.SessionID, "session_name", next.Name)
	return nil
}

func (p *Pipeline) summarizeOnly(ctx context.Context, meeting *repository.Meeting, transcript string) error {
	resp, err := retry.Do(ctx, llmRetryAttempts, llmRetryDelay, "transcript summary", func(ctx context.Context) (*llm.CompletionResponse, error) {
		return p.llm.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: summarySystemPrompt,
			Prompt:       transcript,
			MaxTokens:    p.cfg.LLMAnalysisMaxTok,
			Temperature:  0.3,
		})
	})
	if err != nil {
		return fmt.Errorf("summary model call: %w", err)
	}

	if err := retry.DoVoid(ctx, storeRetryAttempts, storeRetryDelay, "complete meeting", func(ctx context.Context) error {
		return p.repo.CompleteMeeting(ctx, repository.CompleteMeetingInput{
			MeetingID: meeting.ID,
			Summary:   resp.Content,
		})
	}); err != nil {
		return fmt.Errorf("persist summary: %w", err)
	}
	return nil
}

// nextSession returns the first blueprint session, in curriculum order,
// whose progress is not completed. Sessions without a progress entry have
// not been encountered yet and count as not completed.
func nextSession(blueprint *repository.Blueprint, progress []repository.SessionProgress) *repository.BlueprintSession {
	statusByID := make(map[string]repository.SessionStatus, len(progress))
	for _, p := range progress {
		statusByID[p.SessionID] = p.SessionStatus
	}
	for i := range blueprint.Sessions {
		s := &blueprint.Sessions[i]
		if statusByID[s.SessionID] != repository.SessionStatusCompleted {
			return s
		}
	}
	return nil
}
