package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE meeting_status AS ENUM ('upcoming', 'active', 'processing', 'completed', 'failed', 'cancelled'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN CREATE TYPE speaker_type AS ENUM ('user', 'agent'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS agents (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		instructions TEXT NOT NULL DEFAULT '',
		chat_user_id TEXT NOT NULL DEFAULT '',
		blueprint_snapshot JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS meetings (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id TEXT NOT NULL,
		agent_id UUID NOT NULL REFERENCES agents(id),
		name TEXT NOT NULL DEFAULT '',
		status meeting_status NOT NULL DEFAULT 'upcoming',
		prompt TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		progress JSONB NOT NULL DEFAULT '[]'::jsonb,
		started_at TIMESTAMPTZ,
		ended_at TIMESTAMPTZ,
		processing_started_at TIMESTAMPTZ,
		error_message TEXT NOT NULL DEFAULT '',
		recording_url TEXT NOT NULL DEFAULT '',
		transcript_url TEXT NOT NULL DEFAULT '',
		transcript_collected BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_meetings_status ON meetings (status)`,
	`CREATE INDEX IF NOT EXISTS idx_meetings_processing_age ON meetings (processing_started_at) WHERE status = 'processing'`,
	`CREATE TABLE IF NOT EXISTS transcript_chunks (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		meeting_id UUID NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
		sequence INTEGER NOT NULL,
		speaker speaker_type NOT NULL,
		text TEXT NOT NULL,
		spoken_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(meeting_id, sequence)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transcript_chunks_meeting ON transcript_chunks (meeting_id, sequence)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
