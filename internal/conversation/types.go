// Package conversation models SMS conversations: parsing message exports,
// grouping messages into distinct conversations, and tracking operator
// activity so automation stands down when a human is typing.
package conversation

import (
	"time"
)

// Direction indicates message flow relative to the business number.
type Direction string

const (
	// DirectionIn is a message from the customer to the business.
	DirectionIn Direction = "in"
	// DirectionOut is a message from the business to the customer.
	DirectionOut Direction = "out"
)

// SenderType identifies who produced an outbound message.
type SenderType string

const (
	// SenderCustomer is the customer on an inbound message.
	SenderCustomer SenderType = "customer"
	// SenderOperator is a human staff member.
	SenderOperator SenderType = "operator"
	// SenderAutomation is an automated reply.
	SenderAutomation SenderType = "automation"
)

// Message is a single SMS message.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id,omitempty"`
	Direction      Direction  `json:"direction"`
	From           string     `json:"from"`
	To             string     `json:"to,omitempty"`
	Body           string     `json:"body"`
	SenderType     SenderType `json:"sender_type"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Conversation is a sequence of messages with one customer phone number,
// bounded by inactivity gaps.
type Conversation struct {
	ID             string    `json:"id"`
	PhoneNumber    string    `json:"phone_number"`
	CustomerName   string    `json:"customer_name,omitempty"`
	Messages       []Message `json:"messages"`
	LastInboundAt  time.Time `json:"last_inbound_at,omitempty"`
	LastOperatorAt time.Time `json:"last_operator_at,omitempty"`
}

// OperatorActive reports whether a human operator sent a message within
// the lockout window. Automation must not reply to an operator-active
// conversation.
func (c *Conversation) OperatorActive(now time.Time, lockout time.Duration) bool {
	if c.LastOperatorAt.IsZero() {
		return false
	}
	return now.Sub(c.LastOperatorAt) < lockout
}

// QAPair is a customer question paired with the operator answer that
// followed it.
type QAPair struct {
	Question Message
	Answer   Message
	// Context holds the messages surrounding the pair, oldest first.
	Context []Message
}

// QAPairs extracts question/answer pairs: each inbound customer message
// answered by the next operator message. Automation replies do not count
// as answers.
func (c *Conversation) QAPairs(contextWindow int) []QAPair {
	var pairs []QAPair
	for i, msg := range c.Messages {
		if msg.Direction != DirectionIn {
			continue
		}
		for j := i + 1; j < len(c.Messages); j++ {
			next := c.Messages[j]
			if next.Direction == DirectionIn {
				break
			}
			if next.SenderType != SenderOperator {
				continue
			}
			start := i - contextWindow
			if start < 0 {
				start = 0
			}
			pairs = append(pairs, QAPair{
				Question: msg,
				Answer:   next,
				Context:  c.Messages[start : j+1],
			})
			break
		}
	}
	return pairs
}
