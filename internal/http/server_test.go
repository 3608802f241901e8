package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fairwayops/patternd/internal/conversation"
	"github.com/fairwayops/patternd/internal/dedupe"
	"github.com/fairwayops/patternd/internal/extraction"
	"github.com/fairwayops/patternd/internal/importer"
	"github.com/fairwayops/patternd/internal/pattern"
	"github.com/fairwayops/patternd/internal/responder"
	"github.com/fairwayops/patternd/internal/safety"
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

type testServer struct {
	server *Server
	store  *store.SQLiteStore
	engine *pattern.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	engine := pattern.NewEngine(st, &fakeVectors{docs: map[string]vectorstore.Document{}}, pattern.Config{}, zap.NewNop())

	screener, err := safety.NewScreener(safety.DefaultRules(), zap.NewNop())
	require.NoError(t, err)

	cache := dedupe.New(time.Minute, 100)
	t.Cleanup(cache.Close)

	rsp := responder.New(
		st, engine, screener,
		safety.NewBudget(3),
		cache,
		conversation.NewTracker(10*time.Minute),
		nil,
		responder.Config{ShadowMode: true},
		zap.NewNop(),
	)

	extractor, err := extraction.NewHeuristicExtractor(extraction.DefaultConfig())
	require.NoError(t, err)
	imp := importer.New(st, engine, conversation.NewGrouper(time.Hour), extractor, &extraction.NoOpRefiner{}, nil, 1, zap.NewNop())
	t.Cleanup(imp.Close)

	server, err := NewServer(rsp, imp, engine, st, zap.NewNop(), &Config{Host: "localhost", Port: 0})
	require.NoError(t, err)
	return &testServer{server: server, store: st, engine: engine}
}

func (ts *testServer) learnPattern(t *testing.T, trigger, reply string) *store.Pattern {
	t.Helper()
	result, err := ts.engine.Learn(context.Background(), extraction.PatternCandidate{
		TriggerText:      trigger,
		ResponseTemplate: reply,
		Type:             extraction.TypeFAQ,
		Confidence:       0.80,
	})
	require.NoError(t, err)
	return result.Pattern
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	ts.server.echo.ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInboundMessageSuggests(t *testing.T) {
	ts := newTestServer(t)
	p := ts.learnPattern(t, "do you sell gift cards", "Yes! At the front desk.")

	rec := ts.do(t, http.MethodPost, "/api/v1/messages", MessageRequest{
		ID:          "msg-1",
		PhoneNumber: "+15551234567",
		Body:        "Do you sell gift cards?",
		Direction:   "in",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[MessageResponse](t, rec)
	require.NotNil(t, resp.Decision)
	assert.Equal(t, store.ModeSuggest, resp.Decision.Mode)
	assert.Equal(t, p.ID, resp.Decision.PatternID)
}

func TestDuplicateInboundFlagged(t *testing.T) {
	ts := newTestServer(t)
	ts.learnPattern(t, "do you sell gift cards", "Yes! At the front desk.")

	msg := MessageRequest{PhoneNumber: "+15551234567", Body: "Do you sell gift cards?", Direction: "in"}
	rec := ts.do(t, http.MethodPost, "/api/v1/messages", msg)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/messages", msg)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[MessageResponse](t, rec)
	assert.True(t, resp.Duplicate)
}

func TestOperatorOutboundLocksOutAutomation(t *testing.T) {
	ts := newTestServer(t)
	ts.learnPattern(t, "do you sell gift cards", "Yes! At the front desk.")

	rec := ts.do(t, http.MethodPost, "/api/v1/messages", MessageRequest{
		PhoneNumber: "+15551234567",
		Body:        "Happy to help with that!",
		Direction:   "out",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[MessageResponse](t, rec).Recorded)

	rec = ts.do(t, http.MethodPost, "/api/v1/messages", MessageRequest{
		PhoneNumber: "+15551234567",
		Body:        "Do you sell gift cards?",
		Direction:   "in",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[MessageResponse](t, rec)
	require.NotNil(t, resp.Decision)
	assert.Equal(t, store.ModeEscalate, resp.Decision.Mode)
	assert.Equal(t, "operator_active", resp.Decision.Reason)
}

func TestMessageValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/messages", MessageRequest{Direction: "in"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/messages", MessageRequest{
		PhoneNumber: "+15551234567", Body: "hi", Direction: "sideways",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatternCRUD(t *testing.T) {
	ts := newTestServer(t)
	p := ts.learnPattern(t, "do you sell gift cards", "Yes {{customer_name}}!")

	rec := ts.do(t, http.MethodGet, "/api/v1/patterns", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/patterns/"+p.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[PatternDetail](t, rec)
	assert.Equal(t, []string{"customer_name"}, detail.Variables)

	inactive := false
	newTemplate := "Yes, online or at the desk!"
	rec = ts.do(t, http.MethodPatch, "/api/v1/patterns/"+p.ID, UpdatePatternRequest{
		Active:           &inactive,
		ResponseTemplate: &newTemplate,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := ts.store.GetPattern(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, newTemplate, got.ResponseTemplate)

	rec = ts.do(t, http.MethodDelete, "/api/v1/patterns/"+p.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/patterns/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatternForceAutoAndManual(t *testing.T) {
	ts := newTestServer(t)
	p := ts.learnPattern(t, "do you sell gift cards", "Yes!")
	require.False(t, p.AutoExecutable)

	// Force auto: a fresh pattern that has never cleared the promotion
	// gate can still be pinned auto by an operator.
	forceAuto := true
	rec := ts.do(t, http.MethodPatch, "/api/v1/patterns/"+p.ID, UpdatePatternRequest{AutoExecutable: &forceAuto})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := ts.store.GetPattern(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, got.AutoExecutable)
	assert.Equal(t, store.AutoOverrideAuto, got.AutoOverride)

	// Force manual: the pin holds even when a later verdict would
	// qualify the pattern for promotion.
	forceManual := false
	rec = ts.do(t, http.MethodPatch, "/api/v1/patterns/"+p.ID, UpdatePatternRequest{AutoExecutable: &forceManual})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err = ts.store.GetPattern(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, got.AutoExecutable)
	assert.Equal(t, store.AutoOverrideManual, got.AutoOverride)

	for i := 0; i < 6; i++ {
		_, err = ts.engine.ApplyVerdict(context.Background(), p.ID, pattern.VerdictApprove)
		require.NoError(t, err)
	}
	got, err = ts.store.GetPattern(context.Background(), p.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.Confidence, 0.85)
	assert.False(t, got.AutoExecutable, "manual pin is not undone by the promotion gate")
}

func TestPatternUpdateValidation(t *testing.T) {
	ts := newTestServer(t)
	p := ts.learnPattern(t, "do you sell gift cards", "Yes!")

	badType := "not_a_type"
	rec := ts.do(t, http.MethodPatch, "/api/v1/patterns/"+p.ID, UpdatePatternRequest{Type: &badType})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	empty := ""
	rec = ts.do(t, http.MethodPatch, "/api/v1/patterns/"+p.ID, UpdatePatternRequest{ResponseTemplate: &empty})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggestionReviewFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.learnPattern(t, "do you sell gift cards", "Yes! At the front desk.")

	rec := ts.do(t, http.MethodPost, "/api/v1/messages", MessageRequest{
		PhoneNumber: "+15551234567",
		Body:        "Do you sell gift cards?",
		Direction:   "in",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	suggestionID := decode[MessageResponse](t, rec).Decision.SuggestionID
	require.NotEmpty(t, suggestionID)

	rec = ts.do(t, http.MethodGet, "/api/v1/suggestions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/suggestions/%s/approve", suggestionID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decode[store.Suggestion](t, rec)
	assert.Equal(t, store.SuggestionApproved, resolved.Status)

	// Second resolution conflicts.
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/suggestions/%s/approve", suggestionID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestModifySuggestionRequiresReply(t *testing.T) {
	ts := newTestServer(t)
	ts.learnPattern(t, "do you sell gift cards", "Yes! At the front desk.")

	rec := ts.do(t, http.MethodPost, "/api/v1/messages", MessageRequest{
		PhoneNumber: "+15551234567",
		Body:        "Do you sell gift cards?",
		Direction:   "in",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	suggestionID := decode[MessageResponse](t, rec).Decision.SuggestionID

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/suggestions/%s/modify", suggestionID), ModifySuggestionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/suggestions/%s/modify", suggestionID), ModifySuggestionRequest{
		Reply: "Yes, online or in person!",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decode[store.Suggestion](t, rec)
	assert.Equal(t, store.SuggestionModified, resolved.Status)
	assert.Equal(t, "Yes, online or in person!", resolved.ResolvedReply)
}

func TestImportUpload(t *testing.T) {
	ts := newTestServer(t)

	csv := `phone,direction,body,sent_at,sender
+15551111111,in,Do you sell gift cards?,2026-01-10 10:00:00,
+15551111111,out,Yes! You can buy them online.,2026-01-10 10:02:00,mara
`
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "history.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", &buf)
	req.Header.Set(echoHeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.server.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	job := decode[store.ImportJob](t, rec)
	require.NotEmpty(t, job.ID)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec = ts.do(t, http.MethodGet, "/api/v1/import/"+job.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		current := decode[store.ImportJob](t, rec)
		if current.Status == store.JobCompleted {
			assert.Equal(t, 1, current.PatternsCreated)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("import did not complete")
}

func TestImportMissingInput(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/import", StartImportRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)
	ts.learnPattern(t, "do you sell gift cards", "Yes! At the front desk.")

	rec := ts.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[store.Stats](t, rec)
	assert.Equal(t, 1, stats.PatternsTotal)
}
