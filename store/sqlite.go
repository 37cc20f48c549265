package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aios-native/orchestrator/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			turn_id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			persona TEXT,
			status TEXT NOT NULL,
			fail_reason TEXT,
			final_answer TEXT,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_user ON turns(user_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS rounds (
			turn_id TEXT NOT NULL,
			round_index INTEGER NOT NULL,
			prompt TEXT,
			final_text TEXT,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at DATETIME,
			PRIMARY KEY (turn_id, round_index),
			FOREIGN KEY (turn_id) REFERENCES turns(turn_id)
		)`,
		`CREATE TABLE IF NOT EXISTS tool_calls (
			call_id TEXT PRIMARY KEY,
			turn_id TEXT NOT NULL,
			round_index INTEGER NOT NULL,
			tool_name TEXT NOT NULL,
			args TEXT,
			status TEXT,
			output TEXT,
			error TEXT,
			duration_ms INTEGER,
			requested_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (turn_id) REFERENCES turns(turn_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_calls_turn ON tool_calls(turn_id, round_index)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			turn_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (turn_id) REFERENCES turns(turn_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_turn ON events(turn_id, ts)`,
		`CREATE TABLE IF NOT EXISTS conversation_records (
			record_id TEXT PRIMARY KEY,
			turn_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			input TEXT NOT NULL,
			output TEXT NOT NULL,
			tags TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_user ON conversation_records(user_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Add new columns for existing DBs (SQLite has limited ALTER TABLE support).
	if err := s.ensureColumn("turns", "persona", "ALTER TABLE turns ADD COLUMN persona TEXT"); err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTurn creates a new turn.
func (s *SQLiteStore) CreateTurn(ctx context.Context, turn *domain.Turn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (turn_id, message_id, channel_id, user_id, persona, status, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.TurnID, turn.MessageID, turn.ChannelID, turn.UserID, turn.Persona, turn.Status, turn.StartedAt)
	return err
}

// GetTurn retrieves a turn by ID.
func (s *SQLiteStore) GetTurn(ctx context.Context, turnID string) (*domain.Turn, error) {
	var turn domain.Turn
	var persona, failReason, finalAnswer, errData sql.NullString
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT turn_id, message_id, channel_id, user_id, persona, status, fail_reason, final_answer, started_at, ended_at, error FROM turns WHERE turn_id = ?`,
		turnID).Scan(&turn.TurnID, &turn.MessageID, &turn.ChannelID, &turn.UserID, &persona,
		&turn.Status, &failReason, &finalAnswer, &turn.StartedAt, &endedAt, &errData)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if persona.Valid {
		turn.Persona = persona.String
	}
	if failReason.Valid {
		turn.FailReason = domain.FailReason(failReason.String)
	}
	if finalAnswer.Valid {
		turn.FinalAnswer = finalAnswer.String
	}
	if endedAt.Valid {
		turn.EndedAt = &endedAt.Time
	}
	if errData.Valid {
		turn.Error = json.RawMessage(errData.String)
	}
	return &turn, nil
}

// UpdateTurnStatus updates the status of a turn.
func (s *SQLiteStore) UpdateTurnStatus(ctx context.Context, turnID string, status domain.TurnStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE turns SET status = ? WHERE turn_id = ?`,
		status, turnID)
	return err
}

// UpdateTurnCompleted moves a turn to a terminal state.
func (s *SQLiteStore) UpdateTurnCompleted(ctx context.Context, turnID string, status domain.TurnStatus, reason domain.FailReason, finalAnswer string, errData []byte) error {
	var errStr sql.NullString
	if len(errData) > 0 {
		errStr = sql.NullString{String: string(errData), Valid: true}
	}
	var reasonStr sql.NullString
	if reason != "" {
		reasonStr = sql.NullString{String: string(reason), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE turns SET status = ?, fail_reason = ?, final_answer = ?, ended_at = ?, error = ? WHERE turn_id = ?`,
		status, reasonStr, finalAnswer, time.Now(), errStr, turnID)
	return err
}

// CreateRound records a closed round's prompt snapshot and outcome.
func (s *SQLiteStore) CreateRound(ctx context.Context, round *domain.Round) error {
	var finishedAt sql.NullTime
	if round.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *round.FinishedAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rounds (turn_id, round_index, prompt, final_text, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?)`,
		round.TurnID, round.Index, round.Prompt, round.FinalText, round.StartedAt, finishedAt)
	return err
}

// GetRounds retrieves the rounds of a turn in order.
func (s *SQLiteStore) GetRounds(ctx context.Context, turnID string) ([]domain.Round, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_id, round_index, prompt, final_text, started_at, finished_at FROM rounds WHERE turn_id = ? ORDER BY round_index ASC`,
		turnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []domain.Round
	for rows.Next() {
		var r domain.Round
		var prompt, finalText sql.NullString
		var finishedAt sql.NullTime
		if err := rows.Scan(&r.TurnID, &r.Index, &prompt, &finalText, &r.StartedAt, &finishedAt); err != nil {
			return nil, err
		}
		if prompt.Valid {
			r.Prompt = prompt.String
		}
		if finalText.Valid {
			r.FinalText = finalText.String
		}
		if finishedAt.Valid {
			r.FinishedAt = &finishedAt.Time
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// CreateToolCall records a tool call and, when already resolved, its result.
func (s *SQLiteStore) CreateToolCall(ctx context.Context, call *domain.ToolCall, result *domain.ToolResult) error {
	var status, output, errDetail sql.NullString
	var durationMs sql.NullInt64
	if result != nil {
		status = sql.NullString{String: string(result.Status), Valid: true}
		output = sql.NullString{String: result.Output, Valid: true}
		if result.Error != "" {
			errDetail = sql.NullString{String: result.Error, Valid: true}
		}
		durationMs = sql.NullInt64{Int64: result.Duration.Milliseconds(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (call_id, turn_id, round_index, tool_name, args, status, output, error, duration_ms, requested_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.CallID, call.TurnID, call.RoundIndex, call.ToolName, string(call.Args), status, output, errDetail, durationMs, call.RequestedAt)
	return err
}

// GetToolCalls retrieves all tool calls and their results for a turn.
func (s *SQLiteStore) GetToolCalls(ctx context.Context, turnID string) ([]domain.ToolCall, []domain.ToolResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT call_id, turn_id, round_index, tool_name, args, status, output, error, duration_ms, requested_at FROM tool_calls WHERE turn_id = ? ORDER BY round_index ASC, requested_at ASC`,
		turnID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var calls []domain.ToolCall
	var results []domain.ToolResult
	for rows.Next() {
		var call domain.ToolCall
		var args, status, output, errDetail sql.NullString
		var durationMs sql.NullInt64
		if err := rows.Scan(&call.CallID, &call.TurnID, &call.RoundIndex, &call.ToolName,
			&args, &status, &output, &errDetail, &durationMs, &call.RequestedAt); err != nil {
			return nil, nil, err
		}
		if args.Valid {
			call.Args = json.RawMessage(args.String)
		}
		calls = append(calls, call)

		if status.Valid {
			result := domain.ToolResult{
				CallID:   call.CallID,
				ToolName: call.ToolName,
				Status:   domain.ToolResultStatus(status.String),
				Output:   output.String,
			}
			if errDetail.Valid {
				result.Error = errDetail.String
			}
			if durationMs.Valid {
				result.Duration = time.Duration(durationMs.Int64) * time.Millisecond
			}
			results = append(results, result)
		}
	}
	return calls, results, rows.Err()
}

// CreateEvent records a trace event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, turn_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.TurnID, event.Ts, event.Type, string(event.Payload))
	return err
}

// GetEvents retrieves events for a turn.
func (s *SQLiteStore) GetEvents(ctx context.Context, turnID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, turn_id, ts, type, payload FROM events WHERE turn_id = ?`
	args := []interface{}{turnID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}
	if len(types) > 0 {
		placeholders := strings.Repeat("?,", len(types))
		query += ` AND type IN (` + placeholders[:len(placeholders)-1] + `)`
		for _, t := range types {
			args = append(args, t)
		}
	}

	query += ` ORDER BY ts ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var evt domain.Event
		var payload sql.NullString
		if err := rows.Scan(&evt.EventID, &evt.TurnID, &evt.Ts, &evt.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			evt.Payload = json.RawMessage(payload.String)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// AppendConversationRecord appends one record. Records are never updated,
// so concurrent appends cannot race on shared rows.
func (s *SQLiteStore) AppendConversationRecord(ctx context.Context, record *domain.ConversationRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_records (record_id, turn_id, user_id, channel_id, input, output, tags, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RecordID, record.TurnID, record.UserID, record.ChannelID, record.Input, record.Output, record.Tags, record.CreatedAt)
	return err
}

// ListConversationRecords retrieves a user's records, newest first.
func (s *SQLiteStore) ListConversationRecords(ctx context.Context, userID string, limit int) ([]domain.ConversationRecord, error) {
	query := `SELECT record_id, turn_id, user_id, channel_id, input, output, tags, created_at FROM conversation_records WHERE user_id = ? ORDER BY created_at DESC, record_id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ConversationRecord
	for rows.Next() {
		var r domain.ConversationRecord
		var tags sql.NullString
		if err := rows.Scan(&r.RecordID, &r.TurnID, &r.UserID, &r.ChannelID, &r.Input, &r.Output, &tags, &r.CreatedAt); err != nil {
			return nil, err
		}
		if tags.Valid {
			r.Tags = tags.String
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
