// Package store persists patterns, suggestions, executions, and import
// jobs in SQLite.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned on unique constraint violations.
	ErrConflict = errors.New("record already exists")
)

// Auto override states. Operators can pin a pattern's
// auto-executability through the API; the promotion gate leaves pinned
// patterns alone until the pin changes.
const (
	AutoOverrideNone   = ""
	AutoOverrideAuto   = "auto"
	AutoOverrideManual = "manual"
)

// Pattern is a learned question→answer template.
type Pattern struct {
	ID               string     `json:"id"`
	Type             string     `json:"type"`
	TriggerText      string     `json:"trigger_text"`
	ResponseTemplate string     `json:"response_template"`
	Confidence       float64    `json:"confidence"`
	AutoExecutable   bool       `json:"auto_executable"`
	AutoOverride     string     `json:"auto_override,omitempty"`
	ExecutionCount   int        `json:"execution_count"`
	SuccessCount     int        `json:"success_count"`
	Active           bool       `json:"active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	DeletedAt        *time.Time `json:"-"`
}

// TriggerExample is an additional trigger phrasing attached to a pattern.
type TriggerExample struct {
	ID        string    `json:"id"`
	PatternID string    `json:"pattern_id"`
	Text      string    `json:"text"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Suggestion statuses.
const (
	SuggestionPending  = "pending"
	SuggestionApproved = "approved"
	SuggestionModified = "modified"
	SuggestionRejected = "rejected"
	SuggestionExpired  = "expired"
)

// Suggestion is a proposed reply awaiting an operator verdict.
type Suggestion struct {
	ID             string     `json:"id"`
	MessageID      string     `json:"message_id"`
	ConversationID string     `json:"conversation_id,omitempty"`
	PhoneNumber    string     `json:"phone_number"`
	PatternID      string     `json:"pattern_id"`
	SuggestedReply string     `json:"suggested_reply"`
	Similarity     float64    `json:"similarity"`
	Status         string     `json:"status"`
	ResolvedReply  string     `json:"resolved_reply,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// Execution modes.
const (
	ModeAuto     = "auto"
	ModeSuggest  = "suggest"
	ModeShadow   = "shadow"
	ModeEscalate = "escalate"
)

// Execution records one decision made for an inbound message.
type Execution struct {
	ID             string    `json:"id"`
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	PhoneNumber    string    `json:"phone_number"`
	PatternID      string    `json:"pattern_id,omitempty"`
	Mode           string    `json:"mode"`
	Similarity     float64   `json:"similarity"`
	Confidence     float64   `json:"confidence"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Import job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// ImportJob tracks one historical CSV import.
type ImportJob struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	Source            string     `json:"source"`
	ConversationsSeen int        `json:"conversations_seen"`
	PatternsCreated   int        `json:"patterns_created"`
	PatternsMerged    int        `json:"patterns_merged"`
	Skipped           int        `json:"skipped"`
	ErrorCount        int        `json:"error_count"`
	Error             string     `json:"error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

// PatternFilter narrows ListPatterns results.
type PatternFilter struct {
	Type           string
	Active         *bool
	AutoExecutable *bool
	IncludeDeleted bool
	Limit          int
}

// Stats summarizes automation activity.
type Stats struct {
	PatternsTotal    int            `json:"patterns_total"`
	PatternsActive   int            `json:"patterns_active"`
	PatternsAuto     int            `json:"patterns_auto"`
	DecisionsByMode  map[string]int `json:"decisions_by_mode"`
	PendingSuggested int            `json:"pending_suggestions"`
	TopPatterns      []*Pattern     `json:"top_patterns"`
}

// Store is the persistence interface used by the engine and API.
type Store interface {
	// Patterns.
	CreatePattern(ctx context.Context, p *Pattern) error
	GetPattern(ctx context.Context, id string) (*Pattern, error)
	UpdatePattern(ctx context.Context, p *Pattern) error
	ListPatterns(ctx context.Context, filter PatternFilter) ([]*Pattern, error)
	SoftDeletePattern(ctx context.Context, id string) error
	AddTriggerExample(ctx context.Context, example *TriggerExample) error
	ListTriggerExamples(ctx context.Context, patternID string) ([]*TriggerExample, error)

	// Suggestions.
	CreateSuggestion(ctx context.Context, s *Suggestion) error
	GetSuggestion(ctx context.Context, id string) (*Suggestion, error)
	ListSuggestions(ctx context.Context, status string, limit int) ([]*Suggestion, error)
	ResolveSuggestion(ctx context.Context, id, status, resolvedReply string, at time.Time) error
	ExpirePendingSuggestions(ctx context.Context, now time.Time) (int, error)

	// Executions.
	RecordExecution(ctx context.Context, e *Execution) error
	ListRecentExecutions(ctx context.Context, limit int) ([]*Execution, error)

	// Import jobs.
	CreateImportJob(ctx context.Context, job *ImportJob) error
	UpdateImportJob(ctx context.Context, job *ImportJob) error
	GetImportJob(ctx context.Context, id string) (*ImportJob, error)

	// Operational queries.
	GetStats(ctx context.Context, topN int) (*Stats, error)

	Close() error
}
