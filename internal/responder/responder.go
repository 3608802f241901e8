// Package responder runs the live decision pipeline: for each inbound
// customer message it decides whether to auto-send a learned reply,
// suggest one to an operator, record what would have been sent, or
// escalate to a human.
package responder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fairwayops/patternd/internal/conversation"
	"github.com/fairwayops/patternd/internal/dedupe"
	"github.com/fairwayops/patternd/internal/events"
	"github.com/fairwayops/patternd/internal/pattern"
	"github.com/fairwayops/patternd/internal/safety"
	"github.com/fairwayops/patternd/internal/store"
)

var (
	// ErrDuplicateMessage marks a redelivered inbound message. The
	// original delivery already produced a decision.
	ErrDuplicateMessage = errors.New("duplicate message")

	// ErrSuggestionExpired is returned when resolving a suggestion past
	// its TTL.
	ErrSuggestionExpired = errors.New("suggestion expired")
)

// Config holds decision thresholds.
type Config struct {
	// AutoThreshold is the minimum similarity for auto-sending.
	AutoThreshold float64

	// SuggestThreshold is the minimum similarity for suggesting.
	SuggestThreshold float64

	// ShadowMode records would-be auto-sends as suggestions instead of
	// sending them. On by default; turning it off is an explicit,
	// deliberate act.
	ShadowMode bool

	// SuggestionTTL is how long a suggestion waits for an operator.
	SuggestionTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.AutoThreshold == 0 {
		c.AutoThreshold = 0.85
	}
	if c.SuggestThreshold == 0 {
		c.SuggestThreshold = 0.75
	}
	if c.SuggestionTTL == 0 {
		c.SuggestionTTL = 4 * time.Hour
	}
}

// InboundMessage is a live customer message entering the pipeline.
type InboundMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	PhoneNumber    string    `json:"phone_number"`
	CustomerName   string    `json:"customer_name,omitempty"`
	Body           string    `json:"body"`
	ReceivedAt     time.Time `json:"received_at"`
}

// Decision is the pipeline outcome for one inbound message.
type Decision struct {
	Mode         string  `json:"mode"` // auto, suggest, shadow, escalate
	Reply        string  `json:"reply,omitempty"`
	PatternID    string  `json:"pattern_id,omitempty"`
	Similarity   float64 `json:"similarity,omitempty"`
	SuggestionID string  `json:"suggestion_id,omitempty"`
	Reason       string  `json:"reason,omitempty"`
}

// Responder wires the engine, safety layer, and stores into the
// decision pipeline.
type Responder struct {
	store    store.Store
	engine   *pattern.Engine
	screener *safety.Screener
	budget   *safety.Budget
	cache    *dedupe.Cache
	tracker  *conversation.Tracker
	events   *events.Publisher
	config   Config
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a responder.
func New(
	st store.Store,
	engine *pattern.Engine,
	screener *safety.Screener,
	budget *safety.Budget,
	cache *dedupe.Cache,
	tracker *conversation.Tracker,
	publisher *events.Publisher,
	config Config,
	logger *zap.Logger,
) *Responder {
	config.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{
		store:    st,
		engine:   engine,
		screener: screener,
		budget:   budget,
		cache:    cache,
		tracker:  tracker,
		events:   publisher,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// RecordOperatorMessage notes that a human replied on this phone
// number, locking automation out for the takeover window.
func (r *Responder) RecordOperatorMessage(phoneNumber string, at time.Time) {
	r.tracker.RecordOperatorMessage(phoneNumber, at)
}

// HandleInbound runs the full decision pipeline for one message.
// Returns ErrDuplicateMessage for webhook redeliveries.
func (r *Responder) HandleInbound(ctx context.Context, msg InboundMessage) (*Decision, error) {
	if msg.PhoneNumber == "" || msg.Body == "" {
		return nil, fmt.Errorf("message missing phone number or body")
	}

	// Webhook providers redeliver on timeout; the message ID is the
	// dedupe key when present, a content fingerprint otherwise.
	dedupeKey := msg.ID
	if dedupeKey == "" {
		dedupeKey = dedupe.Key(msg.PhoneNumber, msg.Body)
	}
	if r.cache.CheckAndMark(dedupeKey) {
		return nil, ErrDuplicateMessage
	}

	decision, err := r.decide(ctx, msg)
	if err != nil {
		// No decision was recorded, so the provider's redelivery is the
		// customer's only remaining chance at an answer.
		r.cache.Forget(dedupeKey)
		return nil, err
	}
	return decision, nil
}

// decide runs the pipeline steps after dedupe.
func (r *Responder) decide(ctx context.Context, msg InboundMessage) (*Decision, error) {
	now := r.now().UTC()

	// A human already working this thread beats any automation.
	if r.tracker.OperatorActive(msg.PhoneNumber, now) {
		return r.escalate(ctx, msg, nil, 0, "operator_active")
	}

	screen := r.screener.Screen(msg.Body)
	if screen.Outcome == safety.OutcomeEscalate {
		return r.escalate(ctx, msg, nil, 0, "safety:"+screen.Rule)
	}

	matches, err := r.engine.Match(ctx, msg.Body)
	if err != nil {
		return nil, fmt.Errorf("matching message: %w", err)
	}
	if len(matches) == 0 {
		return r.escalate(ctx, msg, nil, 0, "no_match")
	}

	best := matches[0]
	if best.Similarity < r.config.SuggestThreshold {
		// The match floor caught something, but not confidently enough
		// to bother an operator. Log it so the pattern's potential
		// shows up in stats.
		return r.shadow(ctx, msg, best, "below_suggest_threshold")
	}

	reply, missing := pattern.Render(best.Pattern.ResponseTemplate, r.templateVars(msg))

	autoEligible := best.Similarity >= r.config.AutoThreshold &&
		best.Pattern.AutoExecutable &&
		screen.Outcome == safety.OutcomeAllow &&
		len(missing) == 0

	if autoEligible {
		if replyScreen := r.screener.Screen(reply); replyScreen.Outcome != safety.OutcomeAllow {
			autoEligible = false
			r.logger.Debug("rendered reply failed safety screen",
				zap.String("pattern_id", best.Pattern.ID),
				zap.String("rule", replyScreen.Rule),
			)
		}
	}

	if autoEligible {
		if r.config.ShadowMode {
			return r.suggest(ctx, msg, best, reply, "shadow_mode")
		}
		if !r.budget.Allow(r.conversationKey(msg)) {
			return r.suggest(ctx, msg, best, reply, "auto_budget_exhausted")
		}
		return r.autoSend(ctx, msg, best, reply)
	}

	return r.suggest(ctx, msg, best, reply, "")
}

func (r *Responder) templateVars(msg InboundMessage) map[string]string {
	vars := map[string]string{}
	if msg.CustomerName != "" {
		vars["customer_name"] = msg.CustomerName
	}
	return vars
}

// conversationKey scopes the auto budget. Falls back to the phone
// number when the caller did not supply a conversation ID.
func (r *Responder) conversationKey(msg InboundMessage) string {
	if msg.ConversationID != "" {
		return msg.ConversationID
	}
	return msg.PhoneNumber
}

func (r *Responder) autoSend(ctx context.Context, msg InboundMessage, match pattern.MatchResult, reply string) (*Decision, error) {
	if _, err := r.engine.ApplyVerdict(ctx, match.Pattern.ID, pattern.VerdictAutoSuccess); err != nil {
		r.logger.Warn("failed to apply auto-success verdict",
			zap.String("pattern_id", match.Pattern.ID),
			zap.Error(err),
		)
	}

	decision := &Decision{
		Mode:       store.ModeAuto,
		Reply:      reply,
		PatternID:  match.Pattern.ID,
		Similarity: match.Similarity,
	}
	if err := r.recordExecution(ctx, msg, decision, match.Pattern.Confidence); err != nil {
		return nil, err
	}

	r.events.Publish(events.SubjectAutoSent, map[string]any{
		"message_id": msg.ID,
		"pattern_id": match.Pattern.ID,
		"similarity": match.Similarity,
	})
	r.logger.Info("auto-sending reply",
		zap.String("phone", msg.PhoneNumber),
		zap.String("pattern_id", match.Pattern.ID),
		zap.Float64("similarity", match.Similarity),
	)
	return decision, nil
}

// shadow logs a match without acting on it. No reply goes out and no
// suggestion is created; the execution row is the only trace.
func (r *Responder) shadow(ctx context.Context, msg InboundMessage, match pattern.MatchResult, reason string) (*Decision, error) {
	decision := &Decision{
		Mode:       store.ModeShadow,
		PatternID:  match.Pattern.ID,
		Similarity: match.Similarity,
		Reason:     reason,
	}
	if err := r.recordExecution(ctx, msg, decision, match.Pattern.Confidence); err != nil {
		return nil, err
	}

	r.events.Publish(events.SubjectShadowed, map[string]any{
		"message_id": msg.ID,
		"pattern_id": match.Pattern.ID,
		"similarity": match.Similarity,
		"reason":     reason,
	})
	return decision, nil
}

func (r *Responder) suggest(ctx context.Context, msg InboundMessage, match pattern.MatchResult, reply, reason string) (*Decision, error) {
	suggestion, err := r.createSuggestion(ctx, msg, match, reply)
	if err != nil {
		return nil, err
	}

	decision := &Decision{
		Mode:         store.ModeSuggest,
		Reply:        reply,
		PatternID:    match.Pattern.ID,
		Similarity:   match.Similarity,
		SuggestionID: suggestion.ID,
		Reason:       reason,
	}
	if err := r.recordExecution(ctx, msg, decision, match.Pattern.Confidence); err != nil {
		return nil, err
	}

	r.events.Publish(events.SubjectSuggested, map[string]any{
		"message_id":    msg.ID,
		"pattern_id":    match.Pattern.ID,
		"suggestion_id": suggestion.ID,
		"shadow":        false,
	})
	return decision, nil
}

func (r *Responder) escalate(ctx context.Context, msg InboundMessage, p *store.Pattern, similarity float64, reason string) (*Decision, error) {
	decision := &Decision{
		Mode:       store.ModeEscalate,
		Similarity: similarity,
		Reason:     reason,
	}
	confidence := 0.0
	if p != nil {
		decision.PatternID = p.ID
		confidence = p.Confidence
	}
	if err := r.recordExecution(ctx, msg, decision, confidence); err != nil {
		return nil, err
	}

	r.events.Publish(events.SubjectEscalated, map[string]any{
		"message_id": msg.ID,
		"phone":      msg.PhoneNumber,
		"reason":     reason,
	})
	r.logger.Info("escalating to operator",
		zap.String("phone", msg.PhoneNumber),
		zap.String("reason", reason),
	)
	return decision, nil
}

func (r *Responder) createSuggestion(ctx context.Context, msg InboundMessage, match pattern.MatchResult, reply string) (*store.Suggestion, error) {
	now := r.now().UTC()
	suggestion := &store.Suggestion{
		ID:             uuid.NewString(),
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		PhoneNumber:    msg.PhoneNumber,
		PatternID:      match.Pattern.ID,
		SuggestedReply: reply,
		Similarity:     match.Similarity,
		Status:         store.SuggestionPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(r.config.SuggestionTTL),
	}
	if err := r.store.CreateSuggestion(ctx, suggestion); err != nil {
		return nil, fmt.Errorf("creating suggestion: %w", err)
	}
	return suggestion, nil
}

func (r *Responder) recordExecution(ctx context.Context, msg InboundMessage, d *Decision, confidence float64) error {
	execution := &store.Execution{
		ID:             uuid.NewString(),
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		PhoneNumber:    msg.PhoneNumber,
		PatternID:      d.PatternID,
		Mode:           d.Mode,
		Similarity:     d.Similarity,
		Confidence:     confidence,
		Reason:         d.Reason,
		CreatedAt:      r.now().UTC(),
	}
	if err := r.store.RecordExecution(ctx, execution); err != nil {
		return fmt.Errorf("recording execution: %w", err)
	}
	observeDecision(d.Mode, d.Reason)
	return nil
}

// Resolve applies an operator verdict to a pending suggestion and
// evolves the backing pattern's confidence.
func (r *Responder) Resolve(ctx context.Context, suggestionID string, verdict pattern.Verdict, modifiedReply string) (*store.Suggestion, error) {
	suggestion, err := r.store.GetSuggestion(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()

	var status, resolvedReply string
	switch verdict {
	case pattern.VerdictApprove:
		status = store.SuggestionApproved
		resolvedReply = suggestion.SuggestedReply
	case pattern.VerdictModify:
		if modifiedReply == "" {
			return nil, fmt.Errorf("modify verdict requires a reply")
		}
		status = store.SuggestionModified
		resolvedReply = modifiedReply
	case pattern.VerdictReject:
		status = store.SuggestionRejected
	default:
		return nil, fmt.Errorf("unsupported verdict %q", verdict)
	}

	if suggestion.Status != store.SuggestionPending {
		return nil, fmt.Errorf("suggestion %s already %s: %w", suggestionID, suggestion.Status, store.ErrConflict)
	}
	if now.After(suggestion.ExpiresAt) {
		return nil, ErrSuggestionExpired
	}

	if err := r.store.ResolveSuggestion(ctx, suggestionID, status, resolvedReply, now); err != nil {
		return nil, err
	}

	if _, err := r.engine.ApplyVerdict(ctx, suggestion.PatternID, verdict); err != nil {
		r.logger.Warn("failed to apply verdict to pattern",
			zap.String("pattern_id", suggestion.PatternID),
			zap.String("verdict", string(verdict)),
			zap.Error(err),
		)
	}

	suggestion.Status = status
	suggestion.ResolvedReply = resolvedReply
	suggestion.ResolvedAt = &now

	r.events.Publish(events.SubjectSuggestionResolved, map[string]any{
		"suggestion_id": suggestionID,
		"pattern_id":    suggestion.PatternID,
		"verdict":       string(verdict),
	})
	return suggestion, nil
}

// ExpireSweep marks pending suggestions past their TTL as expired.
func (r *Responder) ExpireSweep(ctx context.Context) (int, error) {
	expired, err := r.store.ExpirePendingSuggestions(ctx, r.now().UTC())
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		r.logger.Info("expired stale suggestions", zap.Int("count", expired))
	}
	return expired, nil
}
