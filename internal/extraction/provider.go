package extraction

import (
	"context"
	"fmt"

	"github.com/fairwayops/patternd/internal/conversation"
)

// NewExtractor creates a candidate extractor based on configuration.
func NewExtractor(cfg ExtractionConfig) (Extractor, error) {
	if !cfg.Enabled {
		return &NoOpExtractor{}, nil
	}
	return NewHeuristicExtractor(cfg)
}

// NewRefiner creates a refiner based on configuration.
func NewRefiner(cfg ExtractionConfig) (Refiner, error) {
	if !cfg.Enabled || cfg.Provider == "disabled" || cfg.Provider == "heuristic" || cfg.Provider == "" {
		return &NoOpRefiner{}, nil
	}

	switch cfg.Provider {
	case "anthropic":
		return newAnthropicRefiner(cfg)
	case "openai":
		return newOpenAIRefiner(cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// NoOpExtractor is a no-op implementation of Extractor.
type NoOpExtractor struct{}

// Extract returns an empty slice.
func (n *NoOpExtractor) Extract(_ conversation.Conversation) ([]PatternCandidate, error) {
	return []PatternCandidate{}, nil
}

var _ Extractor = (*NoOpExtractor)(nil)

// NoOpRefiner passes candidates through unchanged.
type NoOpRefiner struct{}

// Refine returns the candidate as-is. Strong heuristic matches are
// accepted without LLM refinement when no provider is configured.
func (n *NoOpRefiner) Refine(_ context.Context, candidate PatternCandidate) (PatternCandidate, error) {
	return candidate, nil
}

// Available returns false for NoOpRefiner.
func (n *NoOpRefiner) Available() bool {
	return false
}

var _ Refiner = (*NoOpRefiner)(nil)
