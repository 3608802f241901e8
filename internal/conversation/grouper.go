package conversation

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Grouper splits flat message lists into conversations.
type Grouper struct {
	// GapWindow is the inactivity gap that starts a new conversation
	// for the same phone number.
	GapWindow time.Duration
}

// NewGrouper creates a grouper with the given gap window.
func NewGrouper(gapWindow time.Duration) *Grouper {
	if gapWindow <= 0 {
		gapWindow = time.Hour
	}
	return &Grouper{GapWindow: gapWindow}
}

// Group partitions messages into conversations by phone number, splitting
// when the gap between consecutive messages exceeds the window. Input
// order does not matter, messages are sorted by timestamp first.
func (g *Grouper) Group(messages []Message) []Conversation {
	byPhone := make(map[string][]Message)
	for _, msg := range messages {
		byPhone[msg.From] = append(byPhone[msg.From], msg)
	}

	phones := make([]string, 0, len(byPhone))
	for phone := range byPhone {
		phones = append(phones, phone)
	}
	sort.Strings(phones)

	var conversations []Conversation
	for _, phone := range phones {
		msgs := byPhone[phone]
		sort.SliceStable(msgs, func(i, j int) bool {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		})

		current := g.newConversation(phone)
		for i, msg := range msgs {
			if i > 0 && msg.CreatedAt.Sub(msgs[i-1].CreatedAt) > g.GapWindow {
				conversations = append(conversations, current)
				current = g.newConversation(phone)
			}
			current.Messages = append(current.Messages, withConversation(msg, current.ID))
			switch {
			case msg.Direction == DirectionIn:
				current.LastInboundAt = msg.CreatedAt
			case msg.SenderType == SenderOperator:
				current.LastOperatorAt = msg.CreatedAt
			}
		}
		if len(current.Messages) > 0 {
			conversations = append(conversations, current)
		}
	}

	return conversations
}

func (g *Grouper) newConversation(phone string) Conversation {
	return Conversation{
		ID:          uuid.NewString(),
		PhoneNumber: phone,
		Messages:    make([]Message, 0, 8),
	}
}

func withConversation(msg Message, conversationID string) Message {
	msg.ConversationID = conversationID
	return msg
}
