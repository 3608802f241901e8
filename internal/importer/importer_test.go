package importer

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

	"github.com/fairwayops/patternd/internal/conversation"
	"github.com/fairwayops/patternd/internal/extraction"
	"github.com/fairwayops/patternd/internal/pattern"
	"github.com/fairwayops/patternd/internal/store"
	"github.com/fairwayops/patternd/internal/vectorstore"
)

type fakeVectors struct {
	docs map[string]vectorstore.Document
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
		score := 0.0
		if strings.EqualFold(query, doc.Content) {
			score = 1.0
		}
		results = append(results, vectorstore.SearchResult{
			ID:       doc.ID,
			Content:  doc.Content,
			Score:    float32(score),
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

func newTestImporter(t *testing.T) (*Importer, *store.SQLiteStore) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "importer.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	engine := pattern.NewEngine(st, &fakeVectors{docs: map[string]vectorstore.Document{}}, pattern.Config{}, zap.NewNop())

	extractor, err := extraction.NewHeuristicExtractor(extraction.DefaultConfig())
	require.NoError(t, err)

	// Single worker keeps merge ordering deterministic for assertions.
	imp := New(st, engine, conversation.NewGrouper(time.Hour), extractor, &extraction.NoOpRefiner{}, nil, 1, zap.NewNop())
	t.Cleanup(imp.Close)
	return imp, st
}

// waitForJob blocks until the job leaves the running states.
func waitForJob(t *testing.T, imp *Importer, id string) *store.ImportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := imp.GetJob(context.Background(), id)
		require.NoError(t, err)
		if job.Status == store.JobCompleted || job.Status == store.JobFailed {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("import job did not finish in time")
	return nil
}

const historyCSV = `phone,direction,body,sent_at,sender
+15551111111,in,Do you sell gift cards?,2026-01-10 10:00:00,
+15551111111,out,Yes! You can buy them online.,2026-01-10 10:02:00,mara
+15552222222,in,What time do you close tonight?,2026-01-10 11:00:00,
+15552222222,out,We're open until 11pm.,2026-01-10 11:01:00,mara
`

func TestImportLearnsPatterns(t *testing.T) {
	imp, st := newTestImporter(t)

	job, err := imp.StartImport(context.Background(), "history.csv", strings.NewReader(historyCSV))
	require.NoError(t, err)
	assert.Equal(t, "history.csv", job.Source)

	finished := waitForJob(t, imp, job.ID)
	assert.Equal(t, store.JobCompleted, finished.Status)
	assert.Equal(t, 2, finished.ConversationsSeen)
	assert.Equal(t, 2, finished.PatternsCreated)
	assert.Zero(t, finished.PatternsMerged)
	assert.NotNil(t, finished.StartedAt)
	assert.NotNil(t, finished.FinishedAt)

	patterns, err := st.ListPatterns(context.Background(), store.PatternFilter{})
	require.NoError(t, err)
	assert.Len(t, patterns, 2)
}

func TestImportMergesDuplicates(t *testing.T) {
	imp, st := newTestImporter(t)

	csv := `phone,direction,body,sent_at,sender
+15551111111,in,Do you sell gift cards?,2026-01-10 10:00:00,
+15551111111,out,Yes! Online or at the desk.,2026-01-10 10:02:00,mara
+15553333333,in,Do you sell gift cards?,2026-01-11 09:00:00,
+15553333333,out,Yes we do!,2026-01-11 09:05:00,mara
`
	job, err := imp.StartImport(context.Background(), "dupes.csv", strings.NewReader(csv))
	require.NoError(t, err)

	finished := waitForJob(t, imp, job.ID)
	assert.Equal(t, store.JobCompleted, finished.Status)
	assert.Equal(t, finished.PatternsCreated+finished.PatternsMerged, 2)
	assert.Equal(t, 1, finished.PatternsMerged)

	patterns, err := st.ListPatterns(context.Background(), store.PatternFilter{})
	require.NoError(t, err)
	assert.Len(t, patterns, 1)
}

func TestImportSkipsUnansweredConversations(t *testing.T) {
	imp, _ := newTestImporter(t)

	csv := `phone,direction,body,sent_at,sender
+15554444444,in,Anyone there?,2026-01-10 10:00:00,
`
	job, err := imp.StartImport(context.Background(), "quiet.csv", strings.NewReader(csv))
	require.NoError(t, err)

	finished := waitForJob(t, imp, job.ID)
	assert.Equal(t, store.JobCompleted, finished.Status)
	assert.Equal(t, 1, finished.ConversationsSeen)
	assert.Equal(t, 1, finished.Skipped)
	assert.Zero(t, finished.PatternsCreated)
}

func TestImportRejectsMalformedCSV(t *testing.T) {
	imp, _ := newTestImporter(t)

	_, err := imp.StartImport(context.Background(), "bad.csv", strings.NewReader("not,a,real\nheader,at,all\n"))
	assert.Error(t, err)
}

func TestImportCountsRowErrors(t *testing.T) {
	imp, _ := newTestImporter(t)

	csv := `phone,direction,body,sent_at,sender
+15551111111,in,Do you sell gift cards?,2026-01-10 10:00:00,
+15551111111,sideways,bad direction,2026-01-10 10:01:00,
+15551111111,out,Yes! You can buy them online.,2026-01-10 10:02:00,mara
`
	job, err := imp.StartImport(context.Background(), "rows.csv", strings.NewReader(csv))
	require.NoError(t, err)

	finished := waitForJob(t, imp, job.ID)
	assert.Equal(t, store.JobCompleted, finished.Status)
	assert.Equal(t, 1, finished.ErrorCount)
	assert.Equal(t, 1, finished.PatternsCreated)
}
