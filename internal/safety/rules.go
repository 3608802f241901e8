// Package safety screens inbound messages and candidate replies before
// any automated response leaves the system. Rules live in a TOML file
// that can be hot-reloaded without a restart.
package safety

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

var (
	ErrInvalidTOML  = errors.New("invalid rules TOML")
	ErrInvalidRegex = errors.New("invalid rule regex")
	ErrInvalidRule  = errors.New("invalid rule")
)

// Outcome is the screening decision for a piece of text.
type Outcome string

const (
	// OutcomeAllow lets the pipeline proceed unchanged.
	OutcomeAllow Outcome = "allow"

	// OutcomeSuggestOnly blocks auto-send but still surfaces the reply
	// as an operator suggestion.
	OutcomeSuggestOnly Outcome = "suggest_only"

	// OutcomeEscalate routes the conversation to a human immediately.
	OutcomeEscalate Outcome = "escalate"
)

// BlacklistRule is a named regex with an action taken on match.
type BlacklistRule struct {
	Name    string `toml:"name"`
	Pattern string `toml:"pattern"`
	Action  string `toml:"action"` // suggest_only or escalate
}

// SentimentRules configures the negative-sentiment screen. A message
// containing at least Threshold distinct negative words is downgraded
// to suggest-only.
type SentimentRules struct {
	Enabled       bool     `toml:"enabled"`
	NegativeWords []string `toml:"negative_words"`
	Threshold     int      `toml:"threshold"`
}

// Rules is the full rule set loaded from TOML.
type Rules struct {
	Blacklist          []BlacklistRule `toml:"blacklist"`
	EscalationKeywords []string        `toml:"escalation_keywords"`
	Sentiment          SentimentRules  `toml:"sentiment"`
}

// LoadRules parses and validates a rules file. A missing file returns
// the built-in defaults so the daemon is safe out of the box.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return nil, fmt.Errorf("stat rules file: %w", err)
	}

	var rules Rules
	if _, err := toml.DecodeFile(path, &rules); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &rules, nil
}

// Validate checks rule names, actions, and regex patterns fail-fast.
func (r *Rules) Validate() error {
	for _, rule := range r.Blacklist {
		if rule.Name == "" {
			return fmt.Errorf("%w: blacklist rule missing name", ErrInvalidRule)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("%w: rule %q missing pattern", ErrInvalidRule, rule.Name)
		}
		switch rule.Action {
		case string(OutcomeSuggestOnly), string(OutcomeEscalate):
		default:
			return fmt.Errorf("%w: rule %q action must be suggest_only or escalate, got %q",
				ErrInvalidRule, rule.Name, rule.Action)
		}
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("%w: rule %q: %v", ErrInvalidRegex, rule.Name, err)
		}
	}
	if r.Sentiment.Enabled && r.Sentiment.Threshold < 1 {
		return fmt.Errorf("%w: sentiment.threshold must be at least 1", ErrInvalidRule)
	}
	return nil
}

// DefaultRules returns the built-in rule set used when no rules file is
// configured. Money, legal, and account topics never auto-send.
func DefaultRules() *Rules {
	return &Rules{
		Blacklist: []BlacklistRule{
			{Name: "payment", Pattern: `(?i)(refund|charge|charged|payment|invoice|billing)`, Action: string(OutcomeEscalate)},
			{Name: "legal", Pattern: `(?i)(lawyer|attorney|lawsuit|sue|legal action)`, Action: string(OutcomeEscalate)},
			{Name: "injury", Pattern: `(?i)(injur|hurt myself|accident|bleeding)`, Action: string(OutcomeEscalate)},
			{Name: "cancellation", Pattern: `(?i)cancel (my )?(membership|account|subscription)`, Action: string(OutcomeEscalate)},
			{Name: "door_code", Pattern: `(?i)(door|gate|access|entry)\s*code`, Action: string(OutcomeSuggestOnly)},
			{Name: "pricing", Pattern: `(?i)(discount|price match|cheaper|free month)`, Action: string(OutcomeSuggestOnly)},
		},
		EscalationKeywords: []string{
			"manager", "complaint", "unacceptable", "ridiculous", "emergency",
		},
		Sentiment: SentimentRules{
			Enabled: true,
			NegativeWords: []string{
				"angry", "furious", "terrible", "awful", "worst",
				"horrible", "disgusted", "scam", "never again", "pissed",
			},
			Threshold: 2,
		},
	}
}
