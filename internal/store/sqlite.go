package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at path. The schema is
// created automatically; parent directories are created if needed.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for concurrent readers during imports.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("sqlite store initialized", zap.String("path", path))
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS patterns (
			id                TEXT PRIMARY KEY,
			type              TEXT NOT NULL,
			trigger_text      TEXT NOT NULL,
			response_template TEXT NOT NULL,
			confidence        REAL NOT NULL,
			auto_executable   INTEGER NOT NULL DEFAULT 0,
			auto_override     TEXT NOT NULL DEFAULT '',
			execution_count   INTEGER NOT NULL DEFAULT 0,
			success_count     INTEGER NOT NULL DEFAULT 0,
			active            INTEGER NOT NULL DEFAULT 1,
			created_at        DATETIME NOT NULL,
			updated_at        DATETIME NOT NULL,
			last_used_at      DATETIME,
			deleted_at        DATETIME,

			CHECK (type IN ('gift_cards', 'hours', 'booking', 'tech_issue',
			                'membership', 'access', 'faq', 'general')),
			CHECK (auto_override IN ('', 'auto', 'manual')),
			CHECK (confidence >= 0.0 AND confidence <= 1.0),
			CHECK (execution_count >= success_count)
		);

		CREATE INDEX IF NOT EXISTS idx_patterns_type ON patterns(type);
		CREATE INDEX IF NOT EXISTS idx_patterns_active ON patterns(active, deleted_at);

		CREATE TABLE IF NOT EXISTS trigger_examples (
			id         TEXT PRIMARY KEY,
			pattern_id TEXT NOT NULL,
			text       TEXT NOT NULL,
			source     TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (pattern_id) REFERENCES patterns(id)
		);

		CREATE INDEX IF NOT EXISTS idx_trigger_examples_pattern
			ON trigger_examples(pattern_id);

		CREATE TABLE IF NOT EXISTS suggestions (
			id              TEXT PRIMARY KEY,
			message_id      TEXT NOT NULL,
			conversation_id TEXT,
			phone_number    TEXT NOT NULL,
			pattern_id      TEXT NOT NULL,
			suggested_reply TEXT NOT NULL,
			similarity      REAL NOT NULL,
			status          TEXT NOT NULL DEFAULT 'pending',
			resolved_reply  TEXT,
			created_at      DATETIME NOT NULL,
			expires_at      DATETIME NOT NULL,
			resolved_at     DATETIME,
			FOREIGN KEY (pattern_id) REFERENCES patterns(id),

			CHECK (status IN ('pending', 'approved', 'modified', 'rejected', 'expired'))
		);

		CREATE INDEX IF NOT EXISTS idx_suggestions_status
			ON suggestions(status, expires_at);

		CREATE TABLE IF NOT EXISTS executions (
			id              TEXT PRIMARY KEY,
			message_id      TEXT NOT NULL,
			conversation_id TEXT,
			phone_number    TEXT NOT NULL,
			pattern_id      TEXT,
			mode            TEXT NOT NULL,
			similarity      REAL NOT NULL DEFAULT 0,
			confidence      REAL NOT NULL DEFAULT 0,
			reason          TEXT,
			created_at      DATETIME NOT NULL,

			CHECK (mode IN ('auto', 'suggest', 'shadow', 'escalate'))
		);

		CREATE INDEX IF NOT EXISTS idx_executions_created ON executions(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_executions_pattern ON executions(pattern_id);

		CREATE TABLE IF NOT EXISTS import_jobs (
			id                 TEXT PRIMARY KEY,
			status             TEXT NOT NULL DEFAULT 'pending',
			source             TEXT NOT NULL,
			conversations_seen INTEGER NOT NULL DEFAULT 0,
			patterns_created   INTEGER NOT NULL DEFAULT 0,
			patterns_merged    INTEGER NOT NULL DEFAULT 0,
			skipped            INTEGER NOT NULL DEFAULT 0,
			error_count        INTEGER NOT NULL DEFAULT 0,
			error              TEXT,
			created_at         DATETIME NOT NULL,
			started_at         DATETIME,
			finished_at        DATETIME,

			CHECK (status IN ('pending', 'running', 'completed', 'failed'))
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreatePattern inserts a new pattern row.
func (s *SQLiteStore) CreatePattern(ctx context.Context, p *Pattern) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patterns (id, type, trigger_text, response_template, confidence,
			auto_executable, auto_override, execution_count, success_count, active,
			created_at, updated_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Type, p.TriggerText, p.ResponseTemplate, p.Confidence,
		p.AutoExecutable, p.AutoOverride, p.ExecutionCount, p.SuccessCount, p.Active,
		p.CreatedAt, p.UpdatedAt, nullableTime(p.LastUsedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: pattern %s", ErrConflict, p.ID)
		}
		return fmt.Errorf("inserting pattern: %w", err)
	}
	return nil
}

// GetPattern returns the pattern by ID, including soft-deleted rows.
func (s *SQLiteStore) GetPattern(ctx context.Context, id string) (*Pattern, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, trigger_text, response_template, confidence,
			auto_executable, auto_override, execution_count, success_count, active,
			created_at, updated_at, last_used_at, deleted_at
		FROM patterns WHERE id = ?`, id)
	return scanPattern(row)
}

// UpdatePattern persists all mutable pattern fields.
func (s *SQLiteStore) UpdatePattern(ctx context.Context, p *Pattern) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE patterns SET type = ?, trigger_text = ?, response_template = ?,
			confidence = ?, auto_executable = ?, auto_override = ?,
			execution_count = ?, success_count = ?, active = ?,
			updated_at = ?, last_used_at = ?
		WHERE id = ?`,
		p.Type, p.TriggerText, p.ResponseTemplate, p.Confidence,
		p.AutoExecutable, p.AutoOverride, p.ExecutionCount, p.SuccessCount, p.Active,
		p.UpdatedAt, nullableTime(p.LastUsedAt), p.ID)
	if err != nil {
		return fmt.Errorf("updating pattern: %w", err)
	}
	return requireRow(res, p.ID)
}

// ListPatterns returns patterns matching the filter, newest first.
func (s *SQLiteStore) ListPatterns(ctx context.Context, filter PatternFilter) ([]*Pattern, error) {
	query := `
		SELECT id, type, trigger_text, response_template, confidence,
			auto_executable, auto_override, execution_count, success_count, active,
			created_at, updated_at, last_used_at, deleted_at
		FROM patterns`
	var conds []string
	var args []any

	if !filter.IncludeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Active != nil {
		conds = append(conds, "active = ?")
		args = append(args, *filter.Active)
	}
	if filter.AutoExecutable != nil {
		conds = append(conds, "auto_executable = ?")
		args = append(args, *filter.AutoExecutable)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// SoftDeletePattern marks the pattern deleted and inactive. History rows
// keep their foreign keys.
func (s *SQLiteStore) SoftDeletePattern(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE patterns SET deleted_at = ?, active = 0, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deleting pattern: %w", err)
	}
	return requireRow(res, id)
}

// AddTriggerExample attaches an example phrasing to a pattern.
func (s *SQLiteStore) AddTriggerExample(ctx context.Context, example *TriggerExample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trigger_examples (id, pattern_id, text, source, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		example.ID, example.PatternID, example.Text, example.Source, example.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting trigger example: %w", err)
	}
	return nil
}

// ListTriggerExamples returns examples for a pattern, oldest first.
func (s *SQLiteStore) ListTriggerExamples(ctx context.Context, patternID string) ([]*TriggerExample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pattern_id, text, source, created_at
		FROM trigger_examples WHERE pattern_id = ? ORDER BY created_at`, patternID)
	if err != nil {
		return nil, fmt.Errorf("listing trigger examples: %w", err)
	}
	defer rows.Close()

	var examples []*TriggerExample
	for rows.Next() {
		var e TriggerExample
		var source sql.NullString
		if err := rows.Scan(&e.ID, &e.PatternID, &e.Text, &source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning trigger example: %w", err)
		}
		e.Source = source.String
		examples = append(examples, &e)
	}
	return examples, rows.Err()
}

// CreateSuggestion inserts a pending suggestion.
func (s *SQLiteStore) CreateSuggestion(ctx context.Context, sg *Suggestion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suggestions (id, message_id, conversation_id, phone_number,
			pattern_id, suggested_reply, similarity, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sg.ID, sg.MessageID, sg.ConversationID, sg.PhoneNumber,
		sg.PatternID, sg.SuggestedReply, sg.Similarity, sg.Status,
		sg.CreatedAt, sg.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting suggestion: %w", err)
	}
	return nil
}

// GetSuggestion returns the suggestion by ID.
func (s *SQLiteStore) GetSuggestion(ctx context.Context, id string) (*Suggestion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, message_id, conversation_id, phone_number, pattern_id,
			suggested_reply, similarity, status, resolved_reply,
			created_at, expires_at, resolved_at
		FROM suggestions WHERE id = ?`, id)

	var sg Suggestion
	var conversationID, resolvedReply sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&sg.ID, &sg.MessageID, &conversationID, &sg.PhoneNumber,
		&sg.PatternID, &sg.SuggestedReply, &sg.Similarity, &sg.Status,
		&resolvedReply, &sg.CreatedAt, &sg.ExpiresAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: suggestion %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning suggestion: %w", err)
	}
	sg.ConversationID = conversationID.String
	sg.ResolvedReply = resolvedReply.String
	if resolvedAt.Valid {
		sg.ResolvedAt = &resolvedAt.Time
	}
	return &sg, nil
}

// ListSuggestions returns suggestions with the given status, newest first.
// Empty status means all statuses.
func (s *SQLiteStore) ListSuggestions(ctx context.Context, status string, limit int) ([]*Suggestion, error) {
	query := `
		SELECT id, message_id, conversation_id, phone_number, pattern_id,
			suggested_reply, similarity, status, resolved_reply,
			created_at, expires_at, resolved_at
		FROM suggestions`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []*Suggestion
	for rows.Next() {
		var sg Suggestion
		var conversationID, resolvedReply sql.NullString
		var resolvedAt sql.NullTime
		if err := rows.Scan(&sg.ID, &sg.MessageID, &conversationID, &sg.PhoneNumber,
			&sg.PatternID, &sg.SuggestedReply, &sg.Similarity, &sg.Status,
			&resolvedReply, &sg.CreatedAt, &sg.ExpiresAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scanning suggestion: %w", err)
		}
		sg.ConversationID = conversationID.String
		sg.ResolvedReply = resolvedReply.String
		if resolvedAt.Valid {
			sg.ResolvedAt = &resolvedAt.Time
		}
		suggestions = append(suggestions, &sg)
	}
	return suggestions, rows.Err()
}

// ResolveSuggestion moves a pending suggestion to a terminal status.
func (s *SQLiteStore) ResolveSuggestion(ctx context.Context, id, status, resolvedReply string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE suggestions SET status = ?, resolved_reply = ?, resolved_at = ?
		WHERE id = ? AND status = 'pending'`,
		status, resolvedReply, at, id)
	if err != nil {
		return fmt.Errorf("resolving suggestion: %w", err)
	}
	return requireRow(res, id)
}

// ExpirePendingSuggestions marks pending suggestions past their TTL as
// expired, returning the number affected.
func (s *SQLiteStore) ExpirePendingSuggestions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE suggestions SET status = 'expired', resolved_at = ?
		WHERE status = 'pending' AND expires_at <= ?`, now, now)
	if err != nil {
		return 0, fmt.Errorf("expiring suggestions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// RecordExecution inserts one decision record.
func (s *SQLiteStore) RecordExecution(ctx context.Context, e *Execution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (id, message_id, conversation_id, phone_number,
			pattern_id, mode, similarity, confidence, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.MessageID, e.ConversationID, e.PhoneNumber,
		nullableString(e.PatternID), e.Mode, e.Similarity, e.Confidence,
		e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// ListRecentExecutions returns the most recent decisions.
func (s *SQLiteStore) ListRecentExecutions(ctx context.Context, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, conversation_id, phone_number, pattern_id,
			mode, similarity, confidence, reason, created_at
		FROM executions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		var e Execution
		var conversationID, patternID, reason sql.NullString
		if err := rows.Scan(&e.ID, &e.MessageID, &conversationID, &e.PhoneNumber,
			&patternID, &e.Mode, &e.Similarity, &e.Confidence, &reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		e.ConversationID = conversationID.String
		e.PatternID = patternID.String
		e.Reason = reason.String
		executions = append(executions, &e)
	}
	return executions, rows.Err()
}

// CreateImportJob inserts a new job row.
func (s *SQLiteStore) CreateImportJob(ctx context.Context, job *ImportJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_jobs (id, status, source, created_at)
		VALUES (?, ?, ?, ?)`,
		job.ID, job.Status, job.Source, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting import job: %w", err)
	}
	return nil
}

// UpdateImportJob persists job progress and status.
func (s *SQLiteStore) UpdateImportJob(ctx context.Context, job *ImportJob) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_jobs SET status = ?, conversations_seen = ?,
			patterns_created = ?, patterns_merged = ?, skipped = ?,
			error_count = ?, error = ?, started_at = ?, finished_at = ?
		WHERE id = ?`,
		job.Status, job.ConversationsSeen, job.PatternsCreated,
		job.PatternsMerged, job.Skipped, job.ErrorCount, job.Error,
		nullableTime(job.StartedAt), nullableTime(job.FinishedAt), job.ID)
	if err != nil {
		return fmt.Errorf("updating import job: %w", err)
	}
	return requireRow(res, job.ID)
}

// GetImportJob returns the job by ID.
func (s *SQLiteStore) GetImportJob(ctx context.Context, id string) (*ImportJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, source, conversations_seen, patterns_created,
			patterns_merged, skipped, error_count, error,
			created_at, started_at, finished_at
		FROM import_jobs WHERE id = ?`, id)

	var job ImportJob
	var jobErr sql.NullString
	var startedAt, finishedAt sql.NullTime
	err := row.Scan(&job.ID, &job.Status, &job.Source, &job.ConversationsSeen,
		&job.PatternsCreated, &job.PatternsMerged, &job.Skipped, &job.ErrorCount,
		&jobErr, &job.CreatedAt, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: import job %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning import job: %w", err)
	}
	job.Error = jobErr.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	return &job, nil
}

// GetStats aggregates pattern and decision counts.
func (s *SQLiteStore) GetStats(ctx context.Context, topN int) (*Stats, error) {
	stats := &Stats{DecisionsByMode: make(map[string]int)}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN active = 1 AND deleted_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN auto_executable = 1 AND active = 1 AND deleted_at IS NULL THEN 1 ELSE 0 END), 0)
		FROM patterns`)
	if err := row.Scan(&stats.PatternsTotal, &stats.PatternsActive, &stats.PatternsAuto); err != nil {
		return nil, fmt.Errorf("counting patterns: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT mode, COUNT(*) FROM executions GROUP BY mode`)
	if err != nil {
		return nil, fmt.Errorf("counting executions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var mode string
		var count int
		if err := rows.Scan(&mode, &count); err != nil {
			return nil, fmt.Errorf("scanning execution count: %w", err)
		}
		stats.DecisionsByMode[mode] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM suggestions WHERE status = 'pending'`)
	if err := row.Scan(&stats.PendingSuggested); err != nil {
		return nil, fmt.Errorf("counting pending suggestions: %w", err)
	}

	if topN > 0 {
		topRows, err := s.db.QueryContext(ctx, `
			SELECT id, type, trigger_text, response_template, confidence,
				auto_executable, auto_override, execution_count, success_count, active,
				created_at, updated_at, last_used_at, deleted_at
			FROM patterns WHERE deleted_at IS NULL
			ORDER BY execution_count DESC, confidence DESC LIMIT ?`, topN)
		if err != nil {
			return nil, fmt.Errorf("listing top patterns: %w", err)
		}
		defer topRows.Close()
		var top []*Pattern
		for topRows.Next() {
			p, err := scanPattern(topRows)
			if err != nil {
				return nil, err
			}
			top = append(top, p)
		}
		if err := topRows.Err(); err != nil {
			return nil, err
		}
		stats.TopPatterns = top
	}

	return stats, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPattern(row scanner) (*Pattern, error) {
	var p Pattern
	var lastUsedAt, deletedAt sql.NullTime
	err := row.Scan(&p.ID, &p.Type, &p.TriggerText, &p.ResponseTemplate,
		&p.Confidence, &p.AutoExecutable, &p.AutoOverride, &p.ExecutionCount,
		&p.SuccessCount, &p.Active, &p.CreatedAt, &p.UpdatedAt, &lastUsedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: pattern", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning pattern: %w", err)
	}
	if lastUsedAt.Valid {
		p.LastUsedAt = &lastUsedAt.Time
	}
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Time
	}
	return &p, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ Store = (*SQLiteStore)(nil)
