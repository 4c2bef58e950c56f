package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/foxseedlab/coachcall/internal/repository"
)

// Section markers a generated next-session prompt is expected to carry.
// Missing markers degrade the next call but do not fail the run.
const (
	MarkerPersona     = "[PERSONA & TONE]"
	MarkerGuidelines  = "[SESSION GUIDELINES]"
	MarkerStateScript = "[CONVERSATION STATES]"
)

// CurriculumStateMarker labels the progress block appended to every live
// agent prompt. The event router refuses to bridge an agent whose prompt
// lacks it.
const CurriculumStateMarker = "[CURRICULUM STATE]"

const analysisSystemPrompt = `You are a coaching curriculum analyst. You receive the full curriculum,
the participant's progress so far, and the transcript of the coaching call
that just ended. Evaluate which completion criteria the participant
demonstrably met during this call.

Respond with a single JSON object with exactly these fields:
- "progressSummary": a concise summary of what happened and what advanced.
- "updatedProgress": the full progress array, one entry per session the
  participant has encountered, each with "session_id", "session_status"
  (one of "pending", "in_progress", "completed"), "criteria_met",
  "criteria_pending", "completion_notes" and "participant_notes".
  criteria_met and criteria_pending must partition the session's criteria.
  A session status never moves backward.
- "nextSessionPrompt": the instruction prompt for the next call. It must
  contain the sections ` + MarkerPersona + `, ` + MarkerGuidelines + ` and ` + MarkerStateScript + `.
  If the participant is mid-session, write a continuation prompt for that
  same session; if they finished one, write the prompt for the next.`

const summarySystemPrompt = `You summarize coaching call transcripts. Write a short summary of the
conversation: what was discussed, what the participant worked on, and any
commitments made. Plain prose, no headings.`

// FormatTranscript renders stored chunks as speaker-labeled lines for the
// language model.
func FormatTranscript(chunks []repository.TranscriptChunk) string {
	if len(chunks) == 0 {
		return "(no transcript was captured for this call)"
	}
	lines := make([]string, 0, len(chunks))
	for _, c := range chunks {
		label := "Participant"
		if c.Speaker == repository.SpeakerTypeAgent {
			label = "Coach"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", label, c.Text))
	}
	return strings.Join(lines, "\n")
}

func buildAnalysisPrompt(blueprint *repository.Blueprint, progress []repository.SessionProgress, transcript string) (string, error) {
	sessionsJSON, err := json.MarshalIndent(blueprint.Sessions, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode blueprint sessions: %w", err)
	}
	if progress == nil {
		progress = []repository.SessionProgress{}
	}
	progressJSON, err := json.MarshalIndent(progress, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode current progress: %w", err)
	}

	var b strings.Builder
	b.WriteString("CURRICULUM SESSIONS:\n")
	b.Write(sessionsJSON)
	b.WriteString("\n\nCURRENT PROGRESS:\n")
	b.Write(progressJSON)
	b.WriteString("\n\nCALL TRANSCRIPT:\n")
	b.WriteString(transcript)
	return b.String(), nil
}

// analysisResult is the structured output contract with the model.
type analysisResult struct {
	ProgressSummary   string                       `json:"progressSummary"`
	UpdatedProgress   []repository.SessionProgress `json:"updatedProgress"`
	NextSessionPrompt string                       `json:"nextSessionPrompt"`
}

func (r *analysisResult) validate() error {
	if strings.TrimSpace(r.ProgressSummary) == "" {
		return fmt.Errorf("analysis result missing progressSummary")
	}
	if r.UpdatedProgress == nil {
		return fmt.Errorf("analysis result missing updatedProgress")
	}
	if strings.TrimSpace(r.NextSessionPrompt) == "" {
		return fmt.Errorf("analysis result missing nextSessionPrompt")
	}
	for i, p := range r.UpdatedProgress {
		if p.SessionID == "" {
			return fmt.Errorf("updatedProgress[%d] missing session_id", i)
		}
		if !p.SessionStatus.Valid() {
			return fmt.Errorf("updatedProgress[%d] has invalid session_status %q", i, p.SessionStatus)
		}
	}
	return nil
}

var sessionStatusRank = map[repository.SessionStatus]int{
	repository.SessionStatusPending:    0,
	repository.SessionStatusInProgress: 1,
	repository.SessionStatusCompleted:  2,
}

// clampProgressRegressions restores the stored entry wherever the model
// moved a session status backward; a session status only advances.
// Returns the ids of the sessions that were clamped.
func clampProgressRegressions(prev, updated []repository.SessionProgress) []string {
	prevByID := make(map[string]repository.SessionProgress, len(prev))
	for _, p := range prev {
		prevByID[p.SessionID] = p
	}
	var regressed []string
	for i := range updated {
		before, ok := prevByID[updated[i].SessionID]
		if !ok {
			continue
		}
		if sessionStatusRank[updated[i].SessionStatus] < sessionStatusRank[before.SessionStatus] {
			updated[i] = before
			regressed = append(regressed, before.SessionID)
		}
	}
	return regressed
}

// missingMarkers lists prompt section markers absent from the generated
// next-session prompt.
func missingMarkers(prompt string) []string {
	var missing []string
	for _, marker := range []string{MarkerPersona, MarkerGuidelines, MarkerStateScript} {
		if !strings.Contains(prompt, marker) {
			missing = append(missing, marker)
		}
	}
	return missing
}

// composeLivePrompt appends the curriculum-state block to a generated
// prompt so the next call always carries its progress context.
func composeLivePrompt(nextSessionPrompt string, progress []repository.SessionProgress) (string, error) {
	if progress == nil {
		progress = []repository.SessionProgress{}
	}
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return "", fmt.Errorf("encode progress for live prompt: %w", err)
	}
	return strings.TrimSpace(nextSessionPrompt) + "\n\n" + CurriculumStateMarker + "\n" + string(progressJSON), nil
}
