package safety

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultAutoPerHour = 3

// Budget caps auto-sent replies per conversation. Once a conversation
// exhausts its hourly budget, further replies fall back to suggestions.
type Budget struct {
	mu       sync.Mutex
	perHour  int
	limiters map[string]*budgetEntry
}

type budgetEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewBudget creates a budget of perHour auto-sends per conversation.
func NewBudget(perHour int) *Budget {
	if perHour <= 0 {
		perHour = defaultAutoPerHour
	}
	return &Budget{
		perHour:  perHour,
		limiters: make(map[string]*budgetEntry),
	}
}

// Allow reports whether the conversation has auto-send budget left and
// consumes one unit if so.
func (b *Budget) Allow(conversationID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	entry, ok := b.limiters[conversationID]
	if !ok {
		entry = &budgetEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(b.perHour)/3600.0), b.perHour),
		}
		b.limiters[conversationID] = entry
	}
	entry.lastSeen = now

	b.prune(now)
	return entry.limiter.Allow()
}

// prune drops limiters idle for more than two hours. Caller holds mu.
func (b *Budget) prune(now time.Time) {
	for id, entry := range b.limiters {
		if now.Sub(entry.lastSeen) > 2*time.Hour {
			delete(b.limiters, id)
		}
	}
}
