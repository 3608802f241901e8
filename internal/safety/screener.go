package safety

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Result is a screening decision and the rule that produced it.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Rule    string  `json:"rule,omitempty"`
}

type compiledRule struct {
	name    string
	re      *regexp.Regexp
	outcome Outcome
}

// Screener evaluates text against the loaded rule set. Safe for
// concurrent use; Reload swaps the rule set atomically.
type Screener struct {
	mu        sync.RWMutex
	blacklist []compiledRule
	keywords  []string
	sentiment SentimentRules
	logger    *zap.Logger
}

// NewScreener compiles the given rules.
func NewScreener(rules *Rules, logger *zap.Logger) (*Screener, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Screener{logger: logger}
	if err := s.Reload(rules); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload validates and swaps in a new rule set. On error the previous
// rules stay active.
func (s *Screener) Reload(rules *Rules) error {
	if rules == nil {
		rules = DefaultRules()
	}
	if err := rules.Validate(); err != nil {
		return err
	}

	compiled := make([]compiledRule, 0, len(rules.Blacklist))
	for _, rule := range rules.Blacklist {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("%w: rule %q: %v", ErrInvalidRegex, rule.Name, err)
		}
		compiled = append(compiled, compiledRule{
			name:    rule.Name,
			re:      re,
			outcome: Outcome(rule.Action),
		})
	}

	keywords := make([]string, len(rules.EscalationKeywords))
	for i, kw := range rules.EscalationKeywords {
		keywords[i] = strings.ToLower(kw)
	}

	s.mu.Lock()
	s.blacklist = compiled
	s.keywords = keywords
	s.sentiment = rules.Sentiment
	s.mu.Unlock()

	s.logger.Info("safety rules loaded",
		zap.Int("blacklist_rules", len(compiled)),
		zap.Int("escalation_keywords", len(keywords)),
		zap.Bool("sentiment_enabled", rules.Sentiment.Enabled),
	)
	return nil
}

// Screen evaluates text and returns the most severe matching outcome.
// Escalation beats suggest-only; sentiment only ever downgrades to
// suggest-only.
func (s *Screener) Screen(text string) Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := strings.ToLower(text)

	for _, kw := range s.keywords {
		if strings.Contains(lower, kw) {
			observeScreen(string(OutcomeEscalate), "escalation_keyword")
			return Result{Outcome: OutcomeEscalate, Rule: "escalation_keyword:" + kw}
		}
	}

	var downgrade *Result
	for _, rule := range s.blacklist {
		if !rule.re.MatchString(text) {
			continue
		}
		if rule.outcome == OutcomeEscalate {
			observeScreen(string(OutcomeEscalate), rule.name)
			return Result{Outcome: OutcomeEscalate, Rule: rule.name}
		}
		if downgrade == nil {
			downgrade = &Result{Outcome: OutcomeSuggestOnly, Rule: rule.name}
		}
	}
	if downgrade != nil {
		observeScreen(string(OutcomeSuggestOnly), downgrade.Rule)
		return *downgrade
	}

	if s.sentiment.Enabled && s.negativeHits(lower) >= s.sentiment.Threshold {
		observeScreen(string(OutcomeSuggestOnly), "negative_sentiment")
		return Result{Outcome: OutcomeSuggestOnly, Rule: "negative_sentiment"}
	}

	return Result{Outcome: OutcomeAllow}
}

// negativeHits counts distinct negative words present in the text.
func (s *Screener) negativeHits(lower string) int {
	hits := 0
	for _, word := range s.sentiment.NegativeWords {
		if strings.Contains(lower, strings.ToLower(word)) {
			hits++
		}
	}
	return hits
}
