package extraction

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fairwayops/patternd/internal/conversation"
)

// HeuristicExtractor finds candidates using weighted regex signals.
type HeuristicExtractor struct {
	signals         []*compiledSignal
	confidenceFloor float64
	refineThreshold float64
	contextWindow   int
}

type compiledSignal struct {
	Signal
	regex *regexp.Regexp
}

// NewHeuristicExtractor creates a heuristic extractor from configuration.
func NewHeuristicExtractor(cfg ExtractionConfig) (*HeuristicExtractor, error) {
	signals := cfg.Signals
	if len(signals) == 0 {
		signals = DefaultSignals()
	}

	compiled := make([]*compiledSignal, 0, len(signals))
	for _, s := range signals {
		re, err := regexp.Compile(s.Regex)
		if err != nil {
			// Skip invalid signals rather than failing startup.
			continue
		}
		compiled = append(compiled, &compiledSignal{Signal: s, regex: re})
	}
	if len(compiled) == 0 {
		return nil, fmt.Errorf("no valid signals configured")
	}

	confidenceFloor := cfg.ConfidenceFloor
	if confidenceFloor == 0 {
		confidenceFloor = 0.5
	}
	refineThreshold := cfg.LLMRefineThreshold
	if refineThreshold == 0 {
		refineThreshold = 0.8
	}
	contextWindow := cfg.ContextWindowMessages
	if contextWindow == 0 {
		contextWindow = 3
	}

	return &HeuristicExtractor{
		signals:         compiled,
		confidenceFloor: confidenceFloor,
		refineThreshold: refineThreshold,
		contextWindow:   contextWindow,
	}, nil
}

// Extract returns one candidate per answered customer question that
// matches a signal at or above the confidence floor.
func (h *HeuristicExtractor) Extract(conv conversation.Conversation) ([]PatternCandidate, error) {
	var candidates []PatternCandidate

	for _, pair := range conv.QAPairs(h.contextWindow) {
		signal := h.findBestSignal(pair.Question.Body)
		if signal == nil || signal.Weight < h.confidenceFloor {
			continue
		}

		candidates = append(candidates, PatternCandidate{
			ConversationID:   conv.ID,
			PhoneNumber:      conv.PhoneNumber,
			TriggerText:      NormalizeTrigger(pair.Question.Body),
			ResponseTemplate: templatize(pair.Answer.Body, conv.CustomerName),
			Type:             signal.Type,
			Confidence:       signal.Weight,
			SignalMatched:    signal.Name,
			Context:          formatContext(pair.Context),
			NeedsLLMRefine:   signal.Weight < h.refineThreshold,
		})
	}

	return candidates, nil
}

// findBestSignal returns the highest-weight signal matching the text.
func (h *HeuristicExtractor) findBestSignal(text string) *compiledSignal {
	var best *compiledSignal
	var bestWeight float64
	for _, s := range h.signals {
		if s.regex.MatchString(text) && s.Weight > bestWeight {
			best = s
			bestWeight = s.Weight
		}
	}
	return best
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeTrigger canonicalizes a customer question for embedding and
// dedup: lowercase, collapsed whitespace, trailing punctuation stripped.
func NormalizeTrigger(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimRight(s, " .!?,;")
	return s
}

// templatize substitutes known concrete values in the operator answer
// with template variables.
func templatize(answer, customerName string) string {
	result := answer
	if customerName != "" {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(customerName) + `\b`)
		if err == nil {
			result = re.ReplaceAllString(result, "{{customer_name}}")
		}
	}
	return result
}

// formatContext renders surrounding messages for LLM context.
func formatContext(messages []conversation.Message) []string {
	context := make([]string, 0, len(messages))
	for _, msg := range messages {
		body := msg.Body
		if len(body) > 200 {
			body = body[:200] + "..."
		}
		context = append(context, string(msg.SenderType)+": "+body)
	}
	return context
}

var _ Extractor = (*HeuristicExtractor)(nil)
