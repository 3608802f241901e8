package http

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fairwayops/patternd/internal/extraction"
	"github.com/fairwayops/patternd/internal/pattern"
	"github.com/fairwayops/patternd/internal/responder"
	"github.com/fairwayops/patternd/internal/store"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// MessageRequest is the request body for POST /api/v1/messages.
type MessageRequest struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	PhoneNumber    string    `json:"phone_number"`
	CustomerName   string    `json:"customer_name"`
	Body           string    `json:"body"`
	Direction      string    `json:"direction"` // in, out
	Sender         string    `json:"sender"`    // operator, automation (outbound only)
	SentAt         time.Time `json:"sent_at"`
}

// MessageResponse is the response body for POST /api/v1/messages.
type MessageResponse struct {
	Duplicate bool                `json:"duplicate,omitempty"`
	Recorded  bool                `json:"recorded,omitempty"`
	Decision  *responder.Decision `json:"decision,omitempty"`
}

func (s *Server) handleMessage(c echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PhoneNumber == "" || req.Body == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "phone_number and body are required")
	}
	if req.SentAt.IsZero() {
		req.SentAt = time.Now().UTC()
	}

	switch req.Direction {
	case "out":
		// Operator replies start the takeover lockout. Replies sent by
		// our own automation do not.
		if req.Sender != "automation" {
			s.responder.RecordOperatorMessage(req.PhoneNumber, req.SentAt)
		}
		return c.JSON(http.StatusOK, MessageResponse{Recorded: true})
	case "in", "":
		decision, err := s.responder.HandleInbound(c.Request().Context(), responder.InboundMessage{
			ID:             req.ID,
			ConversationID: req.ConversationID,
			PhoneNumber:    req.PhoneNumber,
			CustomerName:   req.CustomerName,
			Body:           req.Body,
			ReceivedAt:     req.SentAt,
		})
		if errors.Is(err, responder.ErrDuplicateMessage) {
			return c.JSON(http.StatusOK, MessageResponse{Duplicate: true})
		}
		if err != nil {
			return s.mapError(err)
		}
		return c.JSON(http.StatusOK, MessageResponse{Decision: decision})
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "direction must be in or out")
	}
}

func (s *Server) handleListPatterns(c echo.Context) error {
	filter := store.PatternFilter{
		Type:  c.QueryParam("type"),
		Limit: queryInt(c, "limit", 100),
	}
	if v := c.QueryParam("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "active must be a boolean")
		}
		filter.Active = &active
	}
	if v := c.QueryParam("auto"); v != "" {
		auto, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "auto must be a boolean")
		}
		filter.AutoExecutable = &auto
	}

	patterns, err := s.store.ListPatterns(c.Request().Context(), filter)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"patterns": patterns})
}

// PatternDetail is a pattern with its trigger examples.
type PatternDetail struct {
	*store.Pattern
	TriggerExamples []*store.TriggerExample `json:"trigger_examples"`
	Variables       []string                `json:"variables"`
}

func (s *Server) handleGetPattern(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := s.store.GetPattern(ctx, c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	examples, err := s.store.ListTriggerExamples(ctx, p.ID)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, PatternDetail{
		Pattern:         p,
		TriggerExamples: examples,
		Variables:       pattern.Variables(p.ResponseTemplate),
	})
}

// UpdatePatternRequest is the request body for PATCH /api/v1/patterns/:id.
// Only the provided fields change. Setting auto_executable pins the
// pattern: the promotion gate stops managing it until it is pinned
// again.
type UpdatePatternRequest struct {
	Active           *bool   `json:"active"`
	AutoExecutable   *bool   `json:"auto_executable"`
	ResponseTemplate *string `json:"response_template"`
	Type             *string `json:"type"`
}

func (s *Server) handleUpdatePattern(c echo.Context) error {
	var req UpdatePatternRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	p, err := s.store.GetPattern(ctx, c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}

	if req.Active != nil {
		p.Active = *req.Active
	}
	if req.AutoExecutable != nil {
		p.AutoExecutable = *req.AutoExecutable
		if *req.AutoExecutable {
			p.AutoOverride = store.AutoOverrideAuto
		} else {
			p.AutoOverride = store.AutoOverrideManual
		}
	}
	if req.ResponseTemplate != nil {
		if *req.ResponseTemplate == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "response_template must not be empty")
		}
		p.ResponseTemplate = *req.ResponseTemplate
	}
	if req.Type != nil {
		if !extraction.ValidPatternType(extraction.PatternType(*req.Type)) {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown pattern type")
		}
		p.Type = *req.Type
	}
	p.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdatePattern(ctx, p); err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleDeletePattern(c echo.Context) error {
	if err := s.engine.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListSuggestions(c echo.Context) error {
	status := c.QueryParam("status")
	if status == "" {
		status = store.SuggestionPending
	}
	suggestions, err := s.store.ListSuggestions(c.Request().Context(), status, queryInt(c, "limit", 100))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"suggestions": suggestions})
}

// ModifySuggestionRequest is the request body for modify resolutions.
type ModifySuggestionRequest struct {
	Reply string `json:"reply"`
}

func (s *Server) handleApproveSuggestion(c echo.Context) error {
	return s.resolveSuggestion(c, pattern.VerdictApprove, "")
}

func (s *Server) handleModifySuggestion(c echo.Context) error {
	var req ModifySuggestionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Reply == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reply is required")
	}
	return s.resolveSuggestion(c, pattern.VerdictModify, req.Reply)
}

func (s *Server) handleRejectSuggestion(c echo.Context) error {
	return s.resolveSuggestion(c, pattern.VerdictReject, "")
}

func (s *Server) resolveSuggestion(c echo.Context, verdict pattern.Verdict, reply string) error {
	suggestion, err := s.responder.Resolve(c.Request().Context(), c.Param("id"), verdict, reply)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, suggestion)
}

// StartImportRequest is the JSON request body for POST /api/v1/import
// when importing a server-side file instead of uploading one.
type StartImportRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleStartImport(c echo.Context) error {
	ctx := c.Request().Context()

	if file, err := c.FormFile("file"); err == nil {
		src, err := file.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
		}
		defer src.Close()

		job, err := s.importer.StartImport(ctx, file.Filename, src)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusAccepted, job)
	}

	var req StartImportRequest
	if err := c.Bind(&req); err != nil || req.Path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "upload a file or provide a path")
	}
	f, err := os.Open(req.Path)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot open import file")
	}
	defer f.Close()

	job, err := s.importer.StartImport(ctx, req.Path, f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleGetImport(c echo.Context) error {
	job, err := s.importer.GetJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, job)
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.store.GetStats(c.Request().Context(), queryInt(c, "top", 5))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// mapError translates domain errors to HTTP status codes.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, responder.ErrSuggestionExpired):
		return echo.NewHTTPError(http.StatusGone, "suggestion expired")
	default:
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func queryInt(c echo.Context, name string, fallback int) int {
	v := c.QueryParam(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
