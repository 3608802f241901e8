// Package pattern implements the learned-pattern engine: dedup-aware
// learning, similarity matching, and confidence evolution driven by
// operator verdicts.
package pattern

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fairwayops/patternd/internal/extraction"
	"github.com/fairwayops/patternd/internal/store"
	"github.com/fairwayops/patternd/internal/vectorstore"
)

// Confidence bounds and verdict deltas.
const (
	ConfidenceMin = 0.05
	ConfidenceMax = 0.99

	DeltaApprove     = 0.05
	DeltaModify      = 0.02
	DeltaReject      = -0.10
	DeltaAutoSuccess = 0.01

	// mergeBonus is the confidence bump when a candidate merges into an
	// existing pattern.
	mergeBonus = 0.02
)

// Verdict is an operator or system judgement on a pattern use.
type Verdict string

const (
	VerdictApprove     Verdict = "approve"
	VerdictModify      Verdict = "modify"
	VerdictReject      Verdict = "reject"
	VerdictAutoSuccess Verdict = "auto_success"
)

// Config holds engine thresholds.
type Config struct {
	// DedupThreshold is the similarity at which a candidate merges into
	// an existing pattern instead of creating a new one.
	DedupThreshold float64

	// MatchFloor is the minimum similarity for a match to be returned.
	MatchFloor float64

	// AutoThreshold is the confidence needed for auto-execution.
	AutoThreshold float64

	// AutoMinExecutions gates promotion: a pattern must have been used
	// at least this many times before it can auto-execute.
	AutoMinExecutions int

	// DecayStep is the confidence drop per idle period.
	DecayStep float64

	// DecayIdle is the idle duration after which a pattern decays.
	DecayIdle time.Duration

	// DecayFloor is the lowest confidence decay can reach.
	DecayFloor float64
}

// applyDefaults fills unset fields.
func (c *Config) applyDefaults() {
	if c.DedupThreshold == 0 {
		c.DedupThreshold = 0.90
	}
	if c.MatchFloor == 0 {
		c.MatchFloor = 0.60
	}
	if c.AutoThreshold == 0 {
		c.AutoThreshold = 0.85
	}
	if c.AutoMinExecutions == 0 {
		c.AutoMinExecutions = 5
	}
	if c.DecayStep == 0 {
		c.DecayStep = 0.01
	}
	if c.DecayIdle == 0 {
		c.DecayIdle = 7 * 24 * time.Hour
	}
	if c.DecayFloor == 0 {
		c.DecayFloor = 0.40
	}
}

// Engine ties the SQL store and the vector store together.
type Engine struct {
	store   store.Store
	vectors vectorstore.Store
	config  Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewEngine creates a pattern engine.
func NewEngine(st store.Store, vectors vectorstore.Store, config Config, logger *zap.Logger) *Engine {
	config.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   st,
		vectors: vectors,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// LearnResult describes the outcome of learning one candidate.
type LearnResult struct {
	Pattern *store.Pattern `json:"pattern"`
	Merged  bool           `json:"merged"`
}

// Learn embeds the candidate trigger and either merges it into a
// sufficiently similar existing pattern or creates a new one.
func (e *Engine) Learn(ctx context.Context, candidate extraction.PatternCandidate) (*LearnResult, error) {
	if candidate.TriggerText == "" || candidate.ResponseTemplate == "" {
		return nil, fmt.Errorf("candidate missing trigger or template")
	}

	hits, err := e.vectors.Search(ctx, candidate.TriggerText, 1, nil)
	if err != nil {
		return nil, fmt.Errorf("dedup search: %w", err)
	}

	if len(hits) > 0 && float64(hits[0].Score) >= e.config.DedupThreshold {
		if patternID := hits[0].Metadata["pattern_id"]; patternID != "" {
			result, err := e.merge(ctx, patternID, candidate)
			if err == nil {
				return result, nil
			}
			e.logger.Warn("merge failed, creating new pattern",
				zap.String("pattern_id", patternID),
				zap.Error(err),
			)
		}
	}

	return e.create(ctx, candidate)
}

// merge folds a candidate into an existing pattern: new trigger example,
// new vector, confidence bumped. Merge never lowers confidence.
func (e *Engine) merge(ctx context.Context, patternID string, candidate extraction.PatternCandidate) (*LearnResult, error) {
	p, err := e.store.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}
	if p.DeletedAt != nil {
		return nil, fmt.Errorf("pattern %s is deleted", patternID)
	}

	now := e.now().UTC()
	example := &store.TriggerExample{
		ID:        uuid.NewString(),
		PatternID: p.ID,
		Text:      candidate.TriggerText,
		Source:    candidate.ConversationID,
		CreatedAt: now,
	}
	if err := e.store.AddTriggerExample(ctx, example); err != nil {
		return nil, err
	}

	// Index the new phrasing only when it differs from the canonical
	// trigger, identical text adds nothing.
	if candidate.TriggerText != p.TriggerText {
		_, err = e.vectors.AddDocuments(ctx, []vectorstore.Document{{
			ID:       example.ID,
			Content:  candidate.TriggerText,
			Metadata: vectorMetadata(p),
		}})
		if err != nil {
			return nil, fmt.Errorf("indexing trigger example: %w", err)
		}
	}

	p.Confidence = clampConfidence(p.Confidence + mergeBonus)
	p.UpdatedAt = now
	e.recomputeAuto(p)
	if err := e.store.UpdatePattern(ctx, p); err != nil {
		return nil, err
	}

	observeLearned("merged", string(p.Type))
	e.logger.Debug("merged candidate into pattern",
		zap.String("pattern_id", p.ID),
		zap.Float64("confidence", p.Confidence),
	)
	return &LearnResult{Pattern: p, Merged: true}, nil
}

// create persists a brand-new pattern and its trigger vector.
func (e *Engine) create(ctx context.Context, candidate extraction.PatternCandidate) (*LearnResult, error) {
	now := e.now().UTC()
	p := &store.Pattern{
		ID:               uuid.NewString(),
		Type:             string(candidate.Type),
		TriggerText:      candidate.TriggerText,
		ResponseTemplate: candidate.ResponseTemplate,
		Confidence:       clampConfidence(candidate.Confidence),
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if p.Type == "" {
		p.Type = string(extraction.TypeGeneral)
	}

	if err := e.store.CreatePattern(ctx, p); err != nil {
		return nil, err
	}

	_, err := e.vectors.AddDocuments(ctx, []vectorstore.Document{{
		ID:       p.ID,
		Content:  p.TriggerText,
		Metadata: vectorMetadata(p),
	}})
	if err != nil {
		return nil, fmt.Errorf("indexing pattern trigger: %w", err)
	}

	observeLearned("created", p.Type)
	e.logger.Info("learned new pattern",
		zap.String("pattern_id", p.ID),
		zap.String("type", p.Type),
		zap.Float64("confidence", p.Confidence),
	)
	return &LearnResult{Pattern: p, Merged: false}, nil
}

// MatchResult pairs a pattern with its trigger similarity.
type MatchResult struct {
	Pattern    *store.Pattern `json:"pattern"`
	Similarity float64        `json:"similarity"`
}

// Match returns active patterns similar to the inbound text, best first.
// Results below the match floor are discarded; inactive and deleted
// patterns never match.
func (e *Engine) Match(ctx context.Context, text string) ([]MatchResult, error) {
	normalized := extraction.NormalizeTrigger(text)
	if normalized == "" {
		return nil, nil
	}

	hits, err := e.vectors.Search(ctx, normalized, 5, nil)
	if err != nil {
		return nil, fmt.Errorf("match search: %w", err)
	}

	// A pattern can hit through multiple trigger examples; keep its best.
	bestByPattern := make(map[string]float64)
	for _, hit := range hits {
		score := float64(hit.Score)
		if score < e.config.MatchFloor {
			continue
		}
		patternID := hit.Metadata["pattern_id"]
		if patternID == "" {
			continue
		}
		if score > bestByPattern[patternID] {
			bestByPattern[patternID] = score
		}
	}

	results := make([]MatchResult, 0, len(bestByPattern))
	for patternID, score := range bestByPattern {
		p, err := e.store.GetPattern(ctx, patternID)
		if err != nil {
			e.logger.Warn("match hit references missing pattern",
				zap.String("pattern_id", patternID),
				zap.Error(err),
			)
			continue
		}
		if !p.Active || p.DeletedAt != nil {
			continue
		}
		observeMatchSimilarity(score)
		results = append(results, MatchResult{Pattern: p, Similarity: score})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	return results, nil
}

// ApplyVerdict evolves a pattern's confidence and usage counters, then
// recomputes auto-executability.
func (e *Engine) ApplyVerdict(ctx context.Context, patternID string, verdict Verdict) (*store.Pattern, error) {
	p, err := e.store.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	switch verdict {
	case VerdictApprove:
		p.Confidence = clampConfidence(p.Confidence + DeltaApprove)
		p.ExecutionCount++
		p.SuccessCount++
	case VerdictModify:
		p.Confidence = clampConfidence(p.Confidence + DeltaModify)
		p.ExecutionCount++
		p.SuccessCount++
	case VerdictReject:
		p.Confidence = clampConfidence(p.Confidence + DeltaReject)
		p.ExecutionCount++
	case VerdictAutoSuccess:
		p.Confidence = clampConfidence(p.Confidence + DeltaAutoSuccess)
		p.ExecutionCount++
		p.SuccessCount++
	default:
		return nil, fmt.Errorf("unknown verdict %q", verdict)
	}

	p.LastUsedAt = &now
	p.UpdatedAt = now
	e.recomputeAuto(p)

	if err := e.store.UpdatePattern(ctx, p); err != nil {
		return nil, err
	}

	observeVerdict(string(verdict))
	e.logger.Debug("applied verdict",
		zap.String("pattern_id", p.ID),
		zap.String("verdict", string(verdict)),
		zap.Float64("confidence", p.Confidence),
		zap.Bool("auto_executable", p.AutoExecutable),
	)
	return p, nil
}

// recomputeAuto promotes or demotes based on the confidence gate and the
// minimum executions gate. A reject that drops confidence below the auto
// threshold demotes immediately. Operator pins win over the gate.
func (e *Engine) recomputeAuto(p *store.Pattern) {
	switch p.AutoOverride {
	case store.AutoOverrideAuto:
		p.AutoExecutable = true
	case store.AutoOverrideManual:
		p.AutoExecutable = false
	default:
		p.AutoExecutable = p.Confidence >= e.config.AutoThreshold &&
			p.ExecutionCount >= e.config.AutoMinExecutions
	}
}

// DecaySweep lowers confidence for patterns idle longer than the decay
// window, down to the decay floor. Returns the number of patterns decayed.
func (e *Engine) DecaySweep(ctx context.Context) (int, error) {
	patterns, err := e.store.ListPatterns(ctx, store.PatternFilter{})
	if err != nil {
		return 0, err
	}

	now := e.now().UTC()
	decayed := 0
	for _, p := range patterns {
		if p.Confidence <= e.config.DecayFloor {
			continue
		}
		lastActivity := p.UpdatedAt
		if p.LastUsedAt != nil && p.LastUsedAt.After(lastActivity) {
			lastActivity = *p.LastUsedAt
		}
		if now.Sub(lastActivity) < e.config.DecayIdle {
			continue
		}

		p.Confidence = p.Confidence - e.config.DecayStep
		if p.Confidence < e.config.DecayFloor {
			p.Confidence = e.config.DecayFloor
		}
		// Touching UpdatedAt makes the next decay eligible one idle
		// window from now.
		p.UpdatedAt = now
		e.recomputeAuto(p)
		if err := e.store.UpdatePattern(ctx, p); err != nil {
			return decayed, err
		}
		decayed++
	}

	if decayed > 0 {
		e.logger.Info("decayed idle patterns", zap.Int("count", decayed))
	}
	return decayed, nil
}

// Delete soft-deletes the pattern and removes its vectors so it can
// never match again.
func (e *Engine) Delete(ctx context.Context, patternID string) error {
	examples, err := e.store.ListTriggerExamples(ctx, patternID)
	if err != nil {
		return err
	}
	if err := e.store.SoftDeletePattern(ctx, patternID); err != nil {
		return err
	}

	ids := make([]string, 0, len(examples)+1)
	ids = append(ids, patternID)
	for _, example := range examples {
		ids = append(ids, example.ID)
	}
	if err := e.vectors.DeleteDocuments(ctx, ids); err != nil {
		// The store row is already gone; matching filters on it, so a
		// stale vector is harmless. Log and move on.
		e.logger.Warn("failed to delete pattern vectors",
			zap.String("pattern_id", patternID),
			zap.Error(err),
		)
	}
	return nil
}

// clampConfidence bounds confidence to [ConfidenceMin, ConfidenceMax].
func clampConfidence(c float64) float64 {
	if c < ConfidenceMin {
		return ConfidenceMin
	}
	if c > ConfidenceMax {
		return ConfidenceMax
	}
	return c
}

func vectorMetadata(p *store.Pattern) map[string]string {
	return map[string]string{
		"pattern_id": p.ID,
		"type":       p.Type,
	}
}
