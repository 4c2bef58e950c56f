package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/foxseedlab/coachcall/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

const meetingColumns = `id, user_id, agent_id, name, status, prompt, summary, progress,
	started_at, ended_at, processing_started_at, error_message,
	recording_url, transcript_url, transcript_collected, created_at, updated_at`

func scanMeeting(row pgx.Row) (*repository.Meeting, error) {
	var m repository.Meeting
	var progressJSON []byte
	err := row.Scan(&m.ID, &m.UserID, &m.AgentID, &m.Name, &m.Status, &m.Prompt, &m.Summary, &progressJSON,
		&m.StartedAt, &m.EndedAt, &m.ProcessingStartedAt, &m.ErrorMessage,
		&m.RecordingURL, &m.TranscriptURL, &m.TranscriptCollected, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if len(progressJSON) > 0 {
		if err := json.Unmarshal(progressJSON, &m.Progress); err != nil {
			return nil, fmt.Errorf("decode meeting progress: %w", err)
		}
	}
	return &m, nil
}

func (r *PostgresRepository) GetMeeting(ctx context.Context, meetingID string) (*repository.Meeting, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, meetingID)
	return scanMeeting(row)
}

func (r *PostgresRepository) CreateMeeting(ctx context.Context, input repository.CreateMeetingInput) (*repository.Meeting, error) {
	progress := input.Progress
	if progress == nil {
		progress = []repository.SessionProgress{}
	}
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return nil, fmt.Errorf("encode meeting progress: %w", err)
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO meetings (user_id, agent_id, name, prompt, progress, status)
		 VALUES ($1, $2, $3, $4, $5, 'upcoming')
		 RETURNING `+meetingColumns,
		input.UserID, input.AgentID, input.Name, input.Prompt, progressJSON)
	return scanMeeting(row)
}

func (r *PostgresRepository) TransitionMeetingStatus(ctx context.Context, meetingID string, from []repository.MeetingStatus, to repository.MeetingStatus, stamps repository.TransitionStamps) (bool, error) {
	fromValues := make([]string, 0, len(from))
	for _, s := range from {
		fromValues = append(fromValues, string(s))
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE meetings SET
			status = $2,
			started_at = COALESCE($3, started_at),
			ended_at = COALESCE($4, ended_at),
			processing_started_at = COALESCE($5, processing_started_at),
			updated_at = NOW()
		 WHERE id = $1 AND status = ANY($6)`,
		meetingID, string(to), stamps.StartedAt, stamps.EndedAt, stamps.ProcessingStartedAt, fromValues)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) CompleteMeeting(ctx context.Context, input repository.CompleteMeetingInput) error {
	progress := input.Progress
	if progress == nil {
		progress = []repository.SessionProgress{}
	}
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("encode meeting progress: %w", err)
	}
	// Guarded like TransitionMeetingStatus: only one analysis run may
	// move a meeting out of processing, a second write is a no-op.
	_, err = r.pool.Exec(ctx,
		`UPDATE meetings SET status = 'completed', summary = $2, progress = $3, error_message = '', updated_at = NOW()
		 WHERE id = $1 AND status = 'processing'`,
		input.MeetingID, input.Summary, progressJSON)
	return err
}

func (r *PostgresRepository) FailMeeting(ctx context.Context, meetingID string, errorMessage string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE meetings SET status = 'failed', error_message = $2, updated_at = NOW()
		 WHERE id = $1 AND status IN ('active', 'processing')`,
		meetingID, errorMessage)
	return err
}

func (r *PostgresRepository) SetArtifactURLs(ctx context.Context, meetingID string, recordingURL, transcriptURL string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE meetings SET
			recording_url = CASE WHEN $2 <> '' THEN $2 ELSE recording_url END,
			transcript_url = CASE WHEN $3 <> '' THEN $3 ELSE transcript_url END,
			updated_at = NOW()
		 WHERE id = $1`,
		meetingID, recordingURL, transcriptURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkTranscriptCollected(ctx context.Context, meetingID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE meetings SET transcript_collected = TRUE, updated_at = NOW() WHERE id = $1`,
		meetingID)
	return err
}

func (r *PostgresRepository) GetAgent(ctx context.Context, agentID string) (*repository.Agent, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, name, instructions, chat_user_id, blueprint_snapshot, created_at, updated_at
		 FROM agents WHERE id = $1`, agentID)
	var a repository.Agent
	var blueprintJSON []byte
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Instructions, &a.ChatUserID, &blueprintJSON, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if len(blueprintJSON) > 0 {
		var b repository.Blueprint
		if err := json.Unmarshal(blueprintJSON, &b); err != nil {
			return nil, fmt.Errorf("decode blueprint snapshot: %w", err)
		}
		a.BlueprintSnapshot = &b
	}
	return &a, nil
}

func (r *PostgresRepository) InsertChunk(ctx context.Context, input repository.InsertChunkInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transcript_chunks (meeting_id, sequence, speaker, text, spoken_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		input.MeetingID, input.Sequence, input.Speaker, input.Text, input.SpokenAt)
	return err
}

func (r *PostgresRepository) ListChunksByMeetingID(ctx context.Context, meetingID string) ([]repository.TranscriptChunk, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, meeting_id, sequence, speaker, text, spoken_at, created_at
		 FROM transcript_chunks WHERE meeting_id = $1 ORDER BY sequence ASC`,
		meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.TranscriptChunk
	for rows.Next() {
		var c repository.TranscriptChunk
		if err := rows.Scan(&c.ID, &c.MeetingID, &c.Sequence, &c.Speaker, &c.Text, &c.SpokenAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
