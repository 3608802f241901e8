package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgAt(id, phone string, dir Direction, sender SenderType, body string, at time.Time) Message {
	return Message{ID: id, From: phone, Direction: dir, SenderType: sender, Body: body, CreatedAt: at}
}

func TestGroupSplitsOnGap(t *testing.T) {
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	msgs := []Message{
		msgAt("m1", "+1555", DirectionIn, SenderCustomer, "hi", base),
		msgAt("m2", "+1555", DirectionOut, SenderOperator, "hello", base.Add(2*time.Minute)),
		// 3h gap starts a new conversation.
		msgAt("m3", "+1555", DirectionIn, SenderCustomer, "back again", base.Add(3*time.Hour)),
	}

	conversations := NewGrouper(time.Hour).Group(msgs)
	require.Len(t, conversations, 2)
	assert.Len(t, conversations[0].Messages, 2)
	assert.Len(t, conversations[1].Messages, 1)
	assert.NotEqual(t, conversations[0].ID, conversations[1].ID)
	assert.Equal(t, conversations[0].ID, conversations[0].Messages[0].ConversationID)
}

func TestGroupSeparatesPhones(t *testing.T) {
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	msgs := []Message{
		msgAt("m1", "+1555", DirectionIn, SenderCustomer, "a", base),
		msgAt("m2", "+1666", DirectionIn, SenderCustomer, "b", base.Add(time.Minute)),
	}

	conversations := NewGrouper(time.Hour).Group(msgs)
	require.Len(t, conversations, 2)
}

func TestGroupSortsOutOfOrderMessages(t *testing.T) {
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	msgs := []Message{
		msgAt("m2", "+1555", DirectionOut, SenderOperator, "answer", base.Add(time.Minute)),
		msgAt("m1", "+1555", DirectionIn, SenderCustomer, "question", base),
	}

	conversations := NewGrouper(time.Hour).Group(msgs)
	require.Len(t, conversations, 1)
	assert.Equal(t, "m1", conversations[0].Messages[0].ID)
	assert.Equal(t, base, conversations[0].LastInboundAt)
	assert.Equal(t, base.Add(time.Minute), conversations[0].LastOperatorAt)
}

func TestGroupAutomationDoesNotSetOperatorTime(t *testing.T) {
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	msgs := []Message{
		msgAt("m1", "+1555", DirectionIn, SenderCustomer, "q", base),
		msgAt("m2", "+1555", DirectionOut, SenderAutomation, "auto reply", base.Add(time.Minute)),
	}

	conversations := NewGrouper(time.Hour).Group(msgs)
	require.Len(t, conversations, 1)
	assert.True(t, conversations[0].LastOperatorAt.IsZero())
}

func TestOperatorActive(t *testing.T) {
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	c := Conversation{LastOperatorAt: now.Add(-5 * time.Minute)}
	assert.True(t, c.OperatorActive(now, 10*time.Minute))
	assert.False(t, c.OperatorActive(now, 2*time.Minute))
	assert.False(t, (&Conversation{}).OperatorActive(now, 10*time.Minute))
}

func TestQAPairs(t *testing.T) {
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	c := Conversation{Messages: []Message{
		msgAt("m1", "+1555", DirectionIn, SenderCustomer, "do you sell gift cards?", base),
		msgAt("m2", "+1555", DirectionOut, SenderAutomation, "auto ack", base.Add(30*time.Second)),
		msgAt("m3", "+1555", DirectionOut, SenderOperator, "yes we do!", base.Add(time.Minute)),
		msgAt("m4", "+1555", DirectionIn, SenderCustomer, "great thanks", base.Add(2*time.Minute)),
	}}

	pairs := c.QAPairs(2)
	require.Len(t, pairs, 1)
	assert.Equal(t, "m1", pairs[0].Question.ID)
	assert.Equal(t, "m3", pairs[0].Answer.ID)
	assert.Len(t, pairs[0].Context, 3)
}

func TestQAPairsInboundOnly(t *testing.T) {
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	c := Conversation{Messages: []Message{
		msgAt("m1", "+1555", DirectionIn, SenderCustomer, "anyone there?", base),
		msgAt("m2", "+1555", DirectionIn, SenderCustomer, "hello?", base.Add(time.Minute)),
	}}
	assert.Empty(t, c.QAPairs(2))
}

func TestTracker(t *testing.T) {
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	tracker := NewTracker(10 * time.Minute)

	assert.False(t, tracker.OperatorActive("+1555", now))

	tracker.RecordOperatorMessage("+1555", now)
	assert.True(t, tracker.OperatorActive("+1555", now.Add(5*time.Minute)))
	assert.False(t, tracker.OperatorActive("+1555", now.Add(11*time.Minute)))
	assert.False(t, tracker.OperatorActive("+1666", now))

	// Older record never overwrites a newer one.
	tracker.RecordOperatorMessage("+1555", now.Add(-time.Hour))
	assert.True(t, tracker.OperatorActive("+1555", now.Add(5*time.Minute)))
}
