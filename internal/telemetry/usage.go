// Package telemetry records per-invocation model usage to sqlite. This is
// operational telemetry, distinct from conversation state, which stays in
// memory only.
package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/casefile-ai/chatrelay/internal/chat"
)

const schema = `
CREATE TABLE IF NOT EXISTS model_invocations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at INTEGER NOT NULL,
	conversation_id TEXT NOT NULL,
	model_id TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	outcome TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invocations_recorded_at ON model_invocations(recorded_at);
`

// Recorder is a sqlite-backed chat.UsageRecorder.
type Recorder struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open creates (or opens) the usage database and ensures the schema.
func Open(path string, logger zerolog.Logger) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening usage db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating usage schema: %w", err)
	}
	return &Recorder{db: db, logger: logger}, nil
}

// RecordInvocation persists one usage row. Failures are logged, never
// surfaced: telemetry must not fail a turn.
func (r *Recorder) RecordInvocation(ctx context.Context, rec chat.UsageRecord) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO model_invocations (recorded_at, conversation_id, model_id, input_tokens, output_tokens, duration_ms, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, time.Now().Unix(), rec.ConversationID, rec.ModelID, rec.InputTokens, rec.OutputTokens, rec.Duration.Milliseconds(), rec.Outcome)
	if err != nil {
		r.logger.Warn().Err(err).Msg("recording usage failed")
	}
}

// TotalTokens returns the summed input/output tokens across all recorded
// invocations.
func (r *Recorder) TotalTokens(ctx context.Context) (input, output int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0) FROM model_invocations
	`).Scan(&input, &output)
	if err != nil {
		return 0, 0, fmt.Errorf("querying usage totals: %w", err)
	}
	return input, output, nil
}

// Close releases the database handle.
func (r *Recorder) Close() error {
	return r.db.Close()
}
