// Package extraction turns answered customer questions into pattern
// candidates. A heuristic signal pass screens conversations and assigns
// an initial confidence; candidates below the refine threshold are sent
// to an LLM (Anthropic or OpenAI) for trigger normalization and template
// variable extraction.
package extraction

import (
	"context"

	"github.com/fairwayops/patternd/internal/conversation"
)

// PatternType categorizes what a pattern answers.
type PatternType string

const (
	TypeGiftCards  PatternType = "gift_cards"
	TypeHours      PatternType = "hours"
	TypeBooking    PatternType = "booking"
	TypeTechIssue  PatternType = "tech_issue"
	TypeMembership PatternType = "membership"
	TypeAccess     PatternType = "access"
	TypeFAQ        PatternType = "faq"
	TypeGeneral    PatternType = "general"
)

// PatternTypes lists all valid pattern types.
func PatternTypes() []PatternType {
	return []PatternType{
		TypeGiftCards, TypeHours, TypeBooking, TypeTechIssue,
		TypeMembership, TypeAccess, TypeFAQ, TypeGeneral,
	}
}

// ValidPatternType reports whether t is a known pattern type.
func ValidPatternType(t PatternType) bool {
	for _, known := range PatternTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Signal is a weighted regex that classifies customer questions.
type Signal struct {
	Name   string      `json:"name"`
	Regex  string      `json:"regex"`
	Type   PatternType `json:"type"`
	Weight float64     `json:"weight"`
}

// PatternCandidate is a potential pattern extracted from a conversation.
type PatternCandidate struct {
	ConversationID   string      `json:"conversation_id"`
	PhoneNumber      string      `json:"phone_number,omitempty"`
	TriggerText      string      `json:"trigger_text"`
	ResponseTemplate string      `json:"response_template"`
	Type             PatternType `json:"type"`
	Confidence       float64     `json:"confidence"`
	SignalMatched    string      `json:"signal_matched,omitempty"`
	Context          []string    `json:"context,omitempty"`
	NeedsLLMRefine   bool        `json:"needs_llm_refine"`
}

// Extractor finds pattern candidates in grouped conversations.
type Extractor interface {
	// Extract returns candidates for the conversation's answered questions.
	Extract(conv conversation.Conversation) ([]PatternCandidate, error)
}

// Refiner improves a candidate's trigger and template, typically via LLM.
type Refiner interface {
	// Refine returns an improved candidate. On degraded output the input
	// candidate comes back unchanged rather than an error.
	Refine(ctx context.Context, candidate PatternCandidate) (PatternCandidate, error)

	// Available returns true if the refiner is configured and ready.
	Available() bool
}

// ExtractionConfig holds configuration for extraction operations.
type ExtractionConfig struct {
	Enabled  bool   `json:"enabled"`
	Provider string `json:"provider"` // "disabled", "heuristic", "anthropic", "openai"

	Signals               []Signal `json:"signals,omitempty"`
	ConfidenceFloor       float64  `json:"confidence_floor"`
	LLMRefineThreshold    float64  `json:"llm_refine_threshold"`
	ContextWindowMessages int      `json:"context_window_messages"`

	// LLM provider settings, used when Provider is anthropic or openai.
	Model     string `json:"model,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	Timeout   int    `json:"timeout,omitempty"`
}

// DefaultConfig returns a default extraction configuration.
func DefaultConfig() ExtractionConfig {
	return ExtractionConfig{
		Enabled:               true,
		Provider:              "heuristic",
		ConfidenceFloor:       0.5,
		LLMRefineThreshold:    0.8,
		ContextWindowMessages: 3,
		Signals:               DefaultSignals(),
	}
}

// DefaultSignals returns the built-in question classification signals.
func DefaultSignals() []Signal {
	return []Signal{
		{Name: "gift_card", Regex: `(?i)gift\s*(card|certificate)`, Type: TypeGiftCards, Weight: 0.9},
		{Name: "hours_open", Regex: `(?i)(what time|hours|are you open|do you (open|close)|closing time)`, Type: TypeHours, Weight: 0.85},
		{Name: "booking", Regex: `(?i)(book(ing)?|reserv(e|ation)|tee time|sim(ulator)? time|reschedule|cancel my)`, Type: TypeBooking, Weight: 0.8},
		{Name: "tech_issue", Regex: `(?i)(frozen|stuck|not working|broken|restart|won'?t (start|load|turn)|trackman|projector|screen is)`, Type: TypeTechIssue, Weight: 0.8},
		{Name: "membership", Regex: `(?i)(member(ship)?|monthly (plan|pass)|subscription|sign(ing)? up)`, Type: TypeMembership, Weight: 0.8},
		{Name: "door_access", Regex: `(?i)(door code|access code|locked out|can'?t get in|entry code|key ?pad)`, Type: TypeAccess, Weight: 0.85},
		{Name: "how_question", Regex: `(?i)(how (do|much|many|late|early)|can i|do you|where (is|are))`, Type: TypeFAQ, Weight: 0.6},
		{Name: "any_question", Regex: `\?`, Type: TypeGeneral, Weight: 0.5},
	}
}
