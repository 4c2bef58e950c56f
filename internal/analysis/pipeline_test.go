package analysis

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/foxseedlab/coachcall/internal/config"
	"github.com/foxseedlab/coachcall/internal/llm"
	"github.com/foxseedlab/coachcall/internal/repository"
)

type mockRepo struct {
	meeting         *repository.Meeting
	agent           *repository.Agent
	chunks          []repository.TranscriptChunk
	completed       []repository.CompleteMeetingInput
	created         []repository.CreateMeetingInput
	failed          []string
	failMessages    []string
	getMeetingCalls int
}

func (m *mockRepo) GetMeeting(_ context.Context, meetingID string) (*repository.Meeting, error) {
	m.getMeetingCalls++
	if m.meeting == nil || m.meeting.ID != meetingID {
		return nil, repository.ErrNotFound
	}
	return m.meeting, nil
}

func (m *mockRepo) CreateMeeting(_ context.Context, input repository.CreateMeetingInput) (*repository.Meeting, error) {
	m.created = append(m.created, input)
	return &repository.Meeting{ID: "next-meeting", Status: repository.MeetingStatusUpcoming}, nil
}

func (m *mockRepo) TransitionMeetingStatus(_ context.Context, _ string, _ []repository.MeetingStatus, _ repository.MeetingStatus, _ repository.TransitionStamps) (bool, error) {
	return false, nil
}

func (m *mockRepo) CompleteMeeting(_ context.Context, input repository.CompleteMeetingInput) error {
	m.completed = append(m.completed, input)
	return nil
}

func (m *mockRepo) FailMeeting(_ context.Context, meetingID string, errorMessage string) error {
	m.failed = append(m.failed, meetingID)
	m.failMessages = append(m.failMessages, errorMessage)
	return nil
}

func (m *mockRepo) SetArtifactURLs(_ context.Context, _ string, _, _ string) error { return nil }
func (m *mockRepo) MarkTranscriptCollected(_ context.Context, _ string) error      { return nil }

func (m *mockRepo) GetAgent(_ context.Context, agentID string) (*repository.Agent, error) {
	if m.agent == nil || m.agent.ID != agentID {
		return nil, repository.ErrNotFound
	}
	return m.agent, nil
}

func (m *mockRepo) InsertChunk(_ context.Context, _ repository.InsertChunkInput) error { return nil }

func (m *mockRepo) ListChunksByMeetingID(_ context.Context, _ string) ([]repository.TranscriptChunk, error) {
	return m.chunks, nil
}

type mockLLM struct {
	structuredJSON string
	completionText string
	structuredReqs []llm.CompletionRequest
	completeReqs   []llm.CompletionRequest
}

func (m *mockLLM) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.completeReqs = append(m.completeReqs, req)
	return &llm.CompletionResponse{Content: m.completionText}, nil
}

func (m *mockLLM) CompleteStructured(_ context.Context, req llm.CompletionRequest, target any) error {
	m.structuredReqs = append(m.structuredReqs, req)
	return json.Unmarshal([]byte(m.structuredJSON), target)
}

func twoSessionBlueprint() *repository.Blueprint {
	return &repository.Blueprint{Sessions: []repository.BlueprintSession{
		{SessionID: "s1", Name: "Goal Setting", CompletionCriteria: []string{"states goal", "names one obstacle"}, Prompt: "Coach the participant to set a goal."},
		{SessionID: "s2", Name: "Obstacle Planning", CompletionCriteria: []string{"plans around obstacle"}, Prompt: "Coach the participant to plan."},
	}}
}

func testMeeting() *repository.Meeting {
	return &repository.Meeting{
		ID:      "meeting-1",
		UserID:  "user-1",
		AgentID: "agent-1",
		Status:  repository.MeetingStatusProcessing,
	}
}

func newTestPipeline(repo *mockRepo, llmClient llm.Client) *Pipeline {
	cfg := &config.Config{LLMAnalysisMaxTok: 1024, ChatHistoryWindow: 10, ShutdownDrainPeriod: time.Second}
	return NewPipeline(cfg, repo, llmClient)
}

const nextPrompt = "[PERSONA & TONE]\nWarm coach.\n[SESSION GUIDELINES]\nWork the plan.\n[CONVERSATION STATES]\n1. Greet."

func TestRun_CompletedSessionChainsNextMeeting(t *testing.T) {
	repo := &mockRepo{
		meeting: testMeeting(),
		agent:   &repository.Agent{ID: "agent-1", BlueprintSnapshot: twoSessionBlueprint()},
		chunks: []repository.TranscriptChunk{
			{Sequence: 1, Speaker: repository.SpeakerTypeUser, Text: "My goal is to run a marathon, but my knee keeps acting up."},
		},
	}
	model := &mockLLM{structuredJSON: `{
		"progressSummary": "Participant stated a goal and named an obstacle.",
		"updatedProgress": [{
			"session_id": "s1",
			"session_status": "completed",
			"criteria_met": ["states goal", "names one obstacle"],
			"criteria_pending": []
		}],
		"nextSessionPrompt": ` + jsonString(nextPrompt) + `
	}`}
	p := newTestPipeline(repo, model)

	if err := p.Run(context.Background(), "meeting-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(repo.completed) != 1 {
		t.Fatalf("expected one completion, got %d", len(repo.completed))
	}
	done := repo.completed[0]
	if done.Summary != "Participant stated a goal and named an obstacle." {
		t.Fatalf("unexpected summary: %q", done.Summary)
	}
	if len(done.Progress) != 1 || done.Progress[0].SessionStatus != repository.SessionStatusCompleted {
		t.Fatalf("unexpected persisted progress: %+v", done.Progress)
	}
	if len(done.Progress[0].CriteriaMet) != 2 || len(done.Progress[0].CriteriaPending) != 0 {
		t.Fatalf("unexpected criteria partition: %+v", done.Progress[0])
	}
	if done.Progress[0].DateCompleted == nil {
		t.Fatal("completed session missing date_completed")
	}

	if len(repo.created) != 1 {
		t.Fatalf("expected one new meeting, got %d", len(repo.created))
	}
	next := repo.created[0]
	if next.Name != "Obstacle Planning" {
		t.Fatalf("expected next meeting for second session, got %q", next.Name)
	}
	if !strings.Contains(next.Prompt, CurriculumStateMarker) {
		t.Fatal("next meeting prompt missing curriculum state block")
	}
	if !strings.Contains(next.Prompt, "[PERSONA & TONE]") {
		t.Fatal("next meeting prompt missing generated sections")
	}
	if len(next.Progress) != 1 {
		t.Fatalf("expected progress carried to next meeting, got %+v", next.Progress)
	}
}

func TestRun_ContinuationStaysOnSameSession(t *testing.T) {
	repo := &mockRepo{
		meeting: testMeeting(),
		agent:   &repository.Agent{ID: "agent-1", BlueprintSnapshot: twoSessionBlueprint()},
	}
	model := &mockLLM{structuredJSON: `{
		"progressSummary": "Partial progress on goal setting.",
		"updatedProgress": [{
			"session_id": "s1",
			"session_status": "in_progress",
			"criteria_met": ["states goal"],
			"criteria_pending": ["names one obstacle"]
		}],
		"nextSessionPrompt": ` + jsonString(nextPrompt) + `
	}`}
	p := newTestPipeline(repo, model)

	if err := p.Run(context.Background(), "meeting-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(repo.created) != 1 || repo.created[0].Name != "Goal Setting" {
		t.Fatalf("expected continuation meeting for first session, got %+v", repo.created)
	}
}

func TestRun_RegressedSessionStatusKeepsStoredProgress(t *testing.T) {
	meeting := testMeeting()
	meeting.Progress = []repository.SessionProgress{
		{SessionID: "s1", SessionStatus: repository.SessionStatusCompleted, CriteriaMet: []string{"states goal", "names one obstacle"}},
	}
	repo := &mockRepo{
		meeting: meeting,
		agent:   &repository.Agent{ID: "agent-1", BlueprintSnapshot: twoSessionBlueprint()},
	}
	model := &mockLLM{structuredJSON: `{
		"progressSummary": "Revisited the goal.",
		"updatedProgress": [
			{"session_id": "s1", "session_status": "in_progress", "criteria_met": ["states goal"], "criteria_pending": ["names one obstacle"]},
			{"session_id": "s2", "session_status": "in_progress"}
		],
		"nextSessionPrompt": ` + jsonString(nextPrompt) + `
	}`}
	p := newTestPipeline(repo, model)

	if err := p.Run(context.Background(), "meeting-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(repo.completed) != 1 {
		t.Fatalf("expected completion, got %d", len(repo.completed))
	}
	persisted := repo.completed[0].Progress
	if persisted[0].SessionStatus != repository.SessionStatusCompleted {
		t.Fatalf("completed session must not move backward, got %s", persisted[0].SessionStatus)
	}
	if len(persisted[0].CriteriaMet) != 2 {
		t.Fatalf("expected stored criteria kept, got %+v", persisted[0])
	}
	if len(repo.created) != 1 || repo.created[0].Name != "Obstacle Planning" {
		t.Fatalf("expected next meeting for the unfinished session, got %+v", repo.created)
	}
}

func TestRun_CurriculumFinishedCreatesNoMeeting(t *testing.T) {
	repo := &mockRepo{
		meeting: testMeeting(),
		agent:   &repository.Agent{ID: "agent-1", BlueprintSnapshot: twoSessionBlueprint()},
	}
	model := &mockLLM{structuredJSON: `{
		"progressSummary": "Everything done.",
		"updatedProgress": [
			{"session_id": "s1", "session_status": "completed", "criteria_met": ["states goal", "names one obstacle"], "criteria_pending": []},
			{"session_id": "s2", "session_status": "completed", "criteria_met": ["plans around obstacle"], "criteria_pending": []}
		],
		"nextSessionPrompt": ` + jsonString(nextPrompt) + `
	}`}
	p := newTestPipeline(repo, model)

	if err := p.Run(context.Background(), "meeting-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(repo.completed) != 1 {
		t.Fatalf("expected completion, got %d", len(repo.completed))
	}
	if len(repo.created) != 0 {
		t.Fatalf("expected no new meeting, got %d", len(repo.created))
	}
}

func TestRun_NoBlueprintFallsBackToSummary(t *testing.T) {
	repo := &mockRepo{
		meeting: testMeeting(),
		agent:   &repository.Agent{ID: "agent-1"},
		chunks: []repository.TranscriptChunk{
			{Sequence: 1, Speaker: repository.SpeakerTypeUser, Text: "Hello"},
		},
	}
	model := &mockLLM{completionText: "A short friendly chat."}
	p := newTestPipeline(repo, model)

	if err := p.Run(context.Background(), "meeting-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(model.structuredReqs) != 0 {
		t.Fatal("fallback path must not call structured analysis")
	}
	if len(repo.completed) != 1 || repo.completed[0].Summary != "A short friendly chat." {
		t.Fatalf("unexpected completion: %+v", repo.completed)
	}
	if len(repo.created) != 0 {
		t.Fatal("fallback path must not chain meetings")
	}
}

func TestRun_MissingSummaryFailsMeeting(t *testing.T) {
	repo := &mockRepo{
		meeting: testMeeting(),
		agent:   &repository.Agent{ID: "agent-1", BlueprintSnapshot: twoSessionBlueprint()},
	}
	model := &mockLLM{structuredJSON: `{"updatedProgress": [], "nextSessionPrompt": "x"}`}
	p := newTestPipeline(repo, model)

	if err := p.Run(context.Background(), "meeting-1"); err == nil {
		t.Fatal("expected error for missing progressSummary")
	}
	if len(repo.failed) != 1 || repo.failed[0] != "meeting-1" {
		t.Fatalf("expected meeting marked failed, got %+v", repo.failed)
	}
	if len(repo.completed) != 0 {
		t.Fatal("meeting must not be completed on invalid analysis output")
	}
}

func TestRun_MissingNextPromptFailsMeeting(t *testing.T) {
	repo := &mockRepo{
		meeting: testMeeting(),
		agent:   &repository.Agent{ID: "agent-1", BlueprintSnapshot: twoSessionBlueprint()},
	}
	model := &mockLLM{structuredJSON: `{
		"progressSummary": "ok",
		"updatedProgress": [{"session_id": "s1", "session_status": "in_progress"}]
	}`}
	p := newTestPipeline(repo, model)

	if err := p.Run(context.Background(), "meeting-1"); err == nil {
		t.Fatal("expected error for missing nextSessionPrompt")
	}
	if len(repo.failed) != 1 {
		t.Fatalf("expected meeting marked failed, got %+v", repo.failed)
	}
	if len(repo.created) != 0 {
		t.Fatal("no meeting may be chained from an invalid analysis result")
	}
}

func TestRun_InvalidSessionStatusFailsMeeting(t *testing.T) {
	repo := &mockRepo{
		meeting: testMeeting(),
		agent:   &repository.Agent{ID: "agent-1", BlueprintSnapshot: twoSessionBlueprint()},
	}
	model := &mockLLM{structuredJSON: `{
		"progressSummary": "ok",
		"updatedProgress": [{"session_id": "s1", "session_status": "almost_done"}],
		"nextSessionPrompt": "x"
	}`}
	p := newTestPipeline(repo, model)

	if err := p.Run(context.Background(), "meeting-1"); err == nil {
		t.Fatal("expected error for invalid session_status")
	}
	if len(repo.failed) != 1 {
		t.Fatalf("expected meeting marked failed, got %+v", repo.failed)
	}
}

func TestRun_MissingMeetingAborts(t *testing.T) {
	repo := &mockRepo{}
	p := newTestPipeline(repo, &mockLLM{})

	if err := p.Run(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for missing meeting")
	}
	if len(repo.failed) != 0 {
		t.Fatal("missing meeting must not produce a failure write")
	}
	if repo.getMeetingCalls != 1 {
		t.Fatalf("a missing meeting must not be retried, got %d lookups", repo.getMeetingCalls)
	}
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
