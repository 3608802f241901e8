package extraction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairwayops/patternd/internal/conversation"
)

func testConversation(name string, messages ...conversation.Message) conversation.Conversation {
	return conversation.Conversation{
		ID:           "conv-1",
		PhoneNumber:  "+15551234567",
		CustomerName: name,
		Messages:     messages,
	}
}

func custMsg(id, body string, at time.Time) conversation.Message {
	return conversation.Message{
		ID: id, Direction: conversation.DirectionIn,
		SenderType: conversation.SenderCustomer, Body: body, CreatedAt: at,
	}
}

func opMsg(id, body string, at time.Time) conversation.Message {
	return conversation.Message{
		ID: id, Direction: conversation.DirectionOut,
		SenderType: conversation.SenderOperator, Body: body, CreatedAt: at,
	}
}

func TestHeuristicExtractGiftCard(t *testing.T) {
	extractor, err := NewHeuristicExtractor(DefaultConfig())
	require.NoError(t, err)

	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	conv := testConversation("",
		custMsg("m1", "Do you sell gift cards?", base),
		opMsg("m2", "Yes! You can buy them online or at the front desk.", base.Add(time.Minute)),
	)

	candidates, err := extractor.Extract(conv)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, TypeGiftCards, c.Type)
	assert.Equal(t, "do you sell gift cards", c.TriggerText)
	assert.Equal(t, "Yes! You can buy them online or at the front desk.", c.ResponseTemplate)
	assert.InDelta(t, 0.9, c.Confidence, 0.001)
	assert.Equal(t, "gift_card", c.SignalMatched)
	// Strong matches skip the LLM by default.
	assert.False(t, c.NeedsLLMRefine)
}

func TestHeuristicExtractBestSignalWins(t *testing.T) {
	extractor, err := NewHeuristicExtractor(DefaultConfig())
	require.NoError(t, err)

	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	// Matches both "how_question" (0.6) and "door_access" (0.85).
	conv := testConversation("",
		custMsg("m1", "How do I get in? I'm locked out", base),
		opMsg("m2", "The door code is on your booking confirmation.", base.Add(time.Minute)),
	)

	candidates, err := extractor.Extract(conv)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, TypeAccess, candidates[0].Type)
}

func TestHeuristicExtractNeedsRefine(t *testing.T) {
	extractor, err := NewHeuristicExtractor(DefaultConfig())
	require.NoError(t, err)

	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	conv := testConversation("",
		custMsg("m1", "Where is the parking?", base),
		opMsg("m2", "Right behind the building.", base.Add(time.Minute)),
	)

	candidates, err := extractor.Extract(conv)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, TypeFAQ, candidates[0].Type)
	assert.True(t, candidates[0].NeedsLLMRefine)
}

func TestHeuristicExtractUnansweredQuestion(t *testing.T) {
	extractor, err := NewHeuristicExtractor(DefaultConfig())
	require.NoError(t, err)

	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	conv := testConversation("",
		custMsg("m1", "Do you sell gift cards?", base),
	)

	candidates, err := extractor.Extract(conv)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestHeuristicExtractBelowFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfidenceFloor = 0.7
	extractor, err := NewHeuristicExtractor(cfg)
	require.NoError(t, err)

	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	// Only the generic "any_question" signal (0.5) matches.
	conv := testConversation("",
		custMsg("m1", "ok?", base),
		opMsg("m2", "yep", base.Add(time.Minute)),
	)

	candidates, err := extractor.Extract(conv)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestHeuristicTemplatizesCustomerName(t *testing.T) {
	extractor, err := NewHeuristicExtractor(DefaultConfig())
	require.NoError(t, err)

	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	conv := testConversation("Jordan",
		custMsg("m1", "Can I book a bay for tomorrow?", base),
		opMsg("m2", "Hi Jordan, yes! Grab a slot at our booking page.", base.Add(time.Minute)),
	)

	candidates, err := extractor.Extract(conv)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Hi {{customer_name}}, yes! Grab a slot at our booking page.", candidates[0].ResponseTemplate)
}

func TestNormalizeTrigger(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Do you sell GIFT cards??", "do you sell gift cards"},
		{"  what   time do you close?  ", "what time do you close"},
		{"hello!!!", "hello"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTrigger(tt.in))
	}
}

func TestInvalidSignalSkipped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Signals = []Signal{
		{Name: "broken", Regex: "([", Type: TypeGeneral, Weight: 0.9},
		{Name: "ok", Regex: `\?`, Type: TypeGeneral, Weight: 0.5},
	}
	extractor, err := NewHeuristicExtractor(cfg)
	require.NoError(t, err)
	assert.Len(t, extractor.signals, 1)
}

func TestAllInvalidSignalsError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Signals = []Signal{{Name: "broken", Regex: "([", Type: TypeGeneral, Weight: 0.9}}
	_, err := NewHeuristicExtractor(cfg)
	require.Error(t, err)
}
