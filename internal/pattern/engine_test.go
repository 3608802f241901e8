package pattern

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fairwayops/patternd/internal/extraction"
	"github.com/fairwayops/patternd/internal/store"
	"github.com/fairwayops/patternd/internal/vectorstore"
)

// fakeVectors is an in-memory vector store scoring by word overlap, so
// identical text scores 1.0 and unrelated text scores near 0.
type fakeVectors struct {
	docs map[string]vectorstore.Document
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{docs: make(map[string]vectorstore.Document)}
}

func (f *fakeVectors) AddDocuments(_ context.Context, docs []vectorstore.Document) ([]string, error) {
	ids := make([]string, len(docs))
	for i, doc := range docs {
		f.docs[doc.ID] = doc
		ids[i] = doc.ID
	}
	return ids, nil
}

func (f *fakeVectors) Search(_ context.Context, query string, k int, _ map[string]string) ([]vectorstore.SearchResult, error) {
	var results []vectorstore.SearchResult
	for _, doc := range f.docs {
		results = append(results, vectorstore.SearchResult{
			ID:       doc.ID,
			Content:  doc.Content,
			Score:    float32(jaccard(query, doc.Content)),
			Metadata: doc.Metadata,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (f *fakeVectors) DeleteDocuments(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func (f *fakeVectors) Info(context.Context) (*vectorstore.CollectionInfo, error) {
	return &vectorstore.CollectionInfo{Name: "fake", PointCount: len(f.docs)}, nil
}

func (f *fakeVectors) Close() error { return nil }

func jaccard(a, b string) float64 {
	wordsA := strings.Fields(strings.ToLower(a))
	wordsB := strings.Fields(strings.ToLower(b))
	setA := make(map[string]bool, len(wordsA))
	for _, w := range wordsA {
		setA[w] = true
	}
	setB := make(map[string]bool, len(wordsB))
	for _, w := range wordsB {
		setB[w] = true
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func newTestEngine(t *testing.T) (*Engine, *store.SQLiteStore, *fakeVectors) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "engine.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	vectors := newFakeVectors()
	engine := NewEngine(st, vectors, Config{}, zap.NewNop())
	return engine, st, vectors
}

func giftCardCandidate() extraction.PatternCandidate {
	return extraction.PatternCandidate{
		ConversationID:   "conv-1",
		TriggerText:      "do you sell gift cards",
		ResponseTemplate: "Yes! Buy them online or at the front desk.",
		Type:             extraction.TypeGiftCards,
		Confidence:       0.8,
	}
}

func TestLearnCreatesPattern(t *testing.T) {
	engine, st, vectors := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Learn(ctx, giftCardCandidate())
	require.NoError(t, err)
	assert.False(t, result.Merged)
	assert.Equal(t, "gift_cards", result.Pattern.Type)
	assert.True(t, result.Pattern.Active)
	assert.InDelta(t, 0.8, result.Pattern.Confidence, 0.001)

	persisted, err := st.GetPattern(ctx, result.Pattern.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Pattern.TriggerText, persisted.TriggerText)

	_, indexed := vectors.docs[result.Pattern.ID]
	assert.True(t, indexed)
}

func TestLearnClampsConfidence(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	high := giftCardCandidate()
	high.Confidence = 1.5
	result, err := engine.Learn(context.Background(), high)
	require.NoError(t, err)
	assert.InDelta(t, ConfidenceMax, result.Pattern.Confidence, 0.001)
}

func TestLearnMergesDuplicate(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.Learn(ctx, giftCardCandidate())
	require.NoError(t, err)

	second, err := engine.Learn(ctx, giftCardCandidate())
	require.NoError(t, err)
	assert.True(t, second.Merged)
	assert.Equal(t, first.Pattern.ID, second.Pattern.ID)
	// Merge bumps confidence, never lowers it.
	assert.Greater(t, second.Pattern.Confidence, first.Pattern.Confidence)

	examples, err := st.ListTriggerExamples(ctx, first.Pattern.ID)
	require.NoError(t, err)
	assert.Len(t, examples, 1)
}

func TestLearnDistinctTriggersStaySeparate(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Learn(ctx, giftCardCandidate())
	require.NoError(t, err)

	hours := extraction.PatternCandidate{
		TriggerText:      "what time do you close tonight",
		ResponseTemplate: "We're open until 11pm.",
		Type:             extraction.TypeHours,
		Confidence:       0.8,
	}
	result, err := engine.Learn(ctx, hours)
	require.NoError(t, err)
	assert.False(t, result.Merged)

	patterns, err := st.ListPatterns(ctx, store.PatternFilter{})
	require.NoError(t, err)
	assert.Len(t, patterns, 2)
}

func TestMatchRanksAndFloors(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	gift, err := engine.Learn(ctx, giftCardCandidate())
	require.NoError(t, err)
	_, err = engine.Learn(ctx, extraction.PatternCandidate{
		TriggerText:      "what time do you close tonight",
		ResponseTemplate: "Open until 11pm.",
		Type:             extraction.TypeHours,
		Confidence:       0.8,
	})
	require.NoError(t, err)

	matches, err := engine.Match(ctx, "Do you sell gift cards?")
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, gift.Pattern.ID, matches[0].Pattern.ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 0.001)

	// Unrelated text falls below the match floor.
	matches, err = engine.Match(ctx, "completely unrelated topic here")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatchSkipsInactive(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Learn(ctx, giftCardCandidate())
	require.NoError(t, err)

	p := result.Pattern
	p.Active = false
	p.UpdatedAt = time.Now().UTC()
	require.NoError(t, st.UpdatePattern(ctx, p))

	matches, err := engine.Match(ctx, "do you sell gift cards")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestApplyVerdictDeltas(t *testing.T) {
	tests := []struct {
		verdict     Verdict
		wantDelta   float64
		wantExec    int
		wantSuccess int
	}{
		{VerdictApprove, DeltaApprove, 1, 1},
		{VerdictModify, DeltaModify, 1, 1},
		{VerdictReject, DeltaReject, 1, 0},
		{VerdictAutoSuccess, DeltaAutoSuccess, 1, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.verdict), func(t *testing.T) {
			engine, _, _ := newTestEngine(t)
			ctx := context.Background()

			result, err := engine.Learn(ctx, giftCardCandidate())
			require.NoError(t, err)
			before := result.Pattern.Confidence

			p, err := engine.ApplyVerdict(ctx, result.Pattern.ID, tt.verdict)
			require.NoError(t, err)
			assert.InDelta(t, before+tt.wantDelta, p.Confidence, 0.001)
			assert.Equal(t, tt.wantExec, p.ExecutionCount)
			assert.Equal(t, tt.wantSuccess, p.SuccessCount)
			assert.GreaterOrEqual(t, p.ExecutionCount, p.SuccessCount)
			assert.NotNil(t, p.LastUsedAt)
		})
	}
}

func TestApplyVerdictClampsLow(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	low := giftCardCandidate()
	low.Confidence = 0.10
	result, err := engine.Learn(ctx, low)
	require.NoError(t, err)

	p, err := engine.ApplyVerdict(ctx, result.Pattern.ID, VerdictReject)
	require.NoError(t, err)
	assert.InDelta(t, ConfidenceMin, p.Confidence, 0.001)
}

func TestPromotionRequiresExecutionGate(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	candidate := giftCardCandidate()
	candidate.Confidence = 0.84
	result, err := engine.Learn(ctx, candidate)
	require.NoError(t, err)

	// One approval pushes confidence past the auto threshold, but the
	// execution gate holds promotion back.
	p, err := engine.ApplyVerdict(ctx, result.Pattern.ID, VerdictApprove)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.Confidence, 0.85)
	assert.False(t, p.AutoExecutable)

	for i := 0; i < 4; i++ {
		p, err = engine.ApplyVerdict(ctx, result.Pattern.ID, VerdictApprove)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, p.ExecutionCount)
	assert.True(t, p.AutoExecutable)
}

func TestManualPinBlocksPromotion(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	candidate := giftCardCandidate()
	candidate.Confidence = 0.88
	result, err := engine.Learn(ctx, candidate)
	require.NoError(t, err)

	p := result.Pattern
	p.AutoOverride = store.AutoOverrideManual
	require.NoError(t, st.UpdatePattern(ctx, p))

	// Approvals past both gates leave a manually pinned pattern alone.
	for i := 0; i < 6; i++ {
		p, err = engine.ApplyVerdict(ctx, result.Pattern.ID, VerdictApprove)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, p.Confidence, 0.85)
	assert.GreaterOrEqual(t, p.ExecutionCount, 5)
	assert.False(t, p.AutoExecutable)

	// Releasing the pin hands control back to the gate.
	p.AutoOverride = store.AutoOverrideNone
	require.NoError(t, st.UpdatePattern(ctx, p))
	p, err = engine.ApplyVerdict(ctx, result.Pattern.ID, VerdictApprove)
	require.NoError(t, err)
	assert.True(t, p.AutoExecutable)
}

func TestAutoPinSurvivesReject(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Learn(ctx, giftCardCandidate())
	require.NoError(t, err)

	p := result.Pattern
	p.AutoOverride = store.AutoOverrideAuto
	p.AutoExecutable = true
	require.NoError(t, st.UpdatePattern(ctx, p))

	p, err = engine.ApplyVerdict(ctx, result.Pattern.ID, VerdictReject)
	require.NoError(t, err)
	assert.True(t, p.AutoExecutable, "pinned-auto pattern stays auto until an operator unpins it")
}

func TestRejectDemotes(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	candidate := giftCardCandidate()
	candidate.Confidence = 0.88
	result, err := engine.Learn(ctx, candidate)
	require.NoError(t, err)

	var p *store.Pattern
	for i := 0; i < 5; i++ {
		p, err = engine.ApplyVerdict(ctx, result.Pattern.ID, VerdictApprove)
		require.NoError(t, err)
	}
	require.True(t, p.AutoExecutable)

	p, err = engine.ApplyVerdict(ctx, result.Pattern.ID, VerdictReject)
	require.NoError(t, err)
	assert.Less(t, p.Confidence, 0.90)
	if p.Confidence < 0.85 {
		assert.False(t, p.AutoExecutable)
	}
}

func TestDecaySweep(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Learn(ctx, giftCardCandidate())
	require.NoError(t, err)

	// Backdate activity past the idle window.
	p := result.Pattern
	p.UpdatedAt = time.Now().UTC().Add(-8 * 24 * time.Hour)
	require.NoError(t, st.UpdatePattern(ctx, p))

	decayed, err := engine.DecaySweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, decayed)

	got, err := st.GetPattern(ctx, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.79, got.Confidence, 0.001)

	// The sweep touched UpdatedAt, so an immediate second sweep is a no-op.
	decayed, err = engine.DecaySweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, decayed)
}

func TestDecayRespectsFloor(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	candidate := giftCardCandidate()
	candidate.Confidence = 0.405
	result, err := engine.Learn(ctx, candidate)
	require.NoError(t, err)

	p := result.Pattern
	p.UpdatedAt = time.Now().UTC().Add(-8 * 24 * time.Hour)
	require.NoError(t, st.UpdatePattern(ctx, p))

	_, err = engine.DecaySweep(ctx)
	require.NoError(t, err)

	got, err := st.GetPattern(ctx, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.40, got.Confidence, 0.001)

	// At the floor, patterns stop decaying entirely.
	got.UpdatedAt = time.Now().UTC().Add(-8 * 24 * time.Hour)
	require.NoError(t, st.UpdatePattern(ctx, got))
	decayed, err := engine.DecaySweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, decayed)
}

func TestDeleteRemovesVectorsAndMatches(t *testing.T) {
	engine, st, vectors := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Learn(ctx, giftCardCandidate())
	require.NoError(t, err)
	_, err = engine.Learn(ctx, giftCardCandidate()) // adds a trigger example
	require.NoError(t, err)

	require.NoError(t, engine.Delete(ctx, result.Pattern.ID))

	assert.Empty(t, vectors.docs)

	matches, err := engine.Match(ctx, "do you sell gift cards")
	require.NoError(t, err)
	assert.Empty(t, matches)

	got, err := st.GetPattern(ctx, result.Pattern.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.DeletedAt)
}
