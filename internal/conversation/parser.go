package conversation

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

// ParseResult contains parsed messages and any row errors encountered.
// Parsing is best-effort: a bad row is recorded and skipped, not fatal.
type ParseResult struct {
	Messages   []Message
	ErrorCount int
	Errors     []RowError
}

// RowError records a parse failure at a specific CSV row.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// maxStoredErrors caps the error list so a corrupt file cannot balloon
// the result.
const maxStoredErrors = 25

// timeLayouts are tried in order when parsing the sent-at column.
var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"2006-01-02",
}

// columnAliases maps header variants seen in phone-system exports to
// canonical column names.
var columnAliases = map[string]string{
	"id":           "id",
	"message id":   "id",
	"messageid":    "id",
	"phonenumber":  "phone",
	"phone number": "phone",
	"phone":        "phone",
	"from":         "phone",
	"number":       "phone",
	"to":           "to",
	"direction":    "direction",
	"body":         "body",
	"text":         "body",
	"message":      "body",
	"content":      "body",
	"sentat":       "sent_at",
	"sent at":      "sent_at",
	"createdat":    "sent_at",
	"created at":   "sent_at",
	"date":         "sent_at",
	"timestamp":    "sent_at",
	"sender":       "sender",
	"sender type":  "sender",
	"sendertype":   "sender",
	"user":         "sender",
	"sender name":  "sender",
}

// Parser reads phone-system CSV exports into messages.
type Parser struct{}

// NewParser creates a new CSV parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads a CSV export and returns messages with per-row errors.
// Required columns: phone, direction, body, sent_at (under any known
// alias). Rows with empty bodies are skipped silently.
func (p *Parser) Parse(r io.Reader) (*ParseResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	columns, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{
		Messages: make([]Message, 0),
		Errors:   make([]RowError, 0),
	}

	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			result.addError(row, fmt.Sprintf("malformed row: %v", err))
			continue
		}

		msg, parseErr := p.parseRow(columns, record, row)
		if parseErr != "" {
			result.addError(row, parseErr)
			continue
		}
		if msg == nil {
			continue
		}
		result.Messages = append(result.Messages, *msg)
	}

	return result, nil
}

func (r *ParseResult) addError(row int, msg string) {
	r.ErrorCount++
	if len(r.Errors) < maxStoredErrors {
		r.Errors = append(r.Errors, RowError{Row: row, Error: msg})
	}
}

// mapColumns resolves header names to canonical column indexes.
func mapColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int)
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		canonical, ok := columnAliases[key]
		if !ok {
			continue
		}
		if _, dup := columns[canonical]; !dup {
			columns[canonical] = i
		}
	}

	for _, required := range []string{"phone", "direction", "body", "sent_at"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("missing required column %q (header: %v)", required, header)
		}
	}
	return columns, nil
}

// parseRow converts one record to a Message. Returns nil message for
// skippable rows and a non-empty string for row errors.
func (p *Parser) parseRow(columns map[string]int, record []string, row int) (*Message, string) {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	body := field("body")
	if body == "" {
		return nil, ""
	}

	direction, ok := parseDirection(field("direction"))
	if !ok {
		return nil, fmt.Sprintf("unknown direction %q", field("direction"))
	}

	phone := field("phone")
	if phone == "" {
		return nil, "empty phone number"
	}

	sentAt, err := parseTimestamp(field("sent_at"))
	if err != nil {
		return nil, fmt.Sprintf("bad timestamp %q", field("sent_at"))
	}

	id := field("id")
	if id == "" {
		id = fmt.Sprintf("row-%d", row)
	}

	return &Message{
		ID:         id,
		Direction:  direction,
		From:       phone,
		To:         field("to"),
		Body:       body,
		SenderType: classifySender(direction, field("sender")),
		CreatedAt:  sentAt,
	}, ""
}

func parseDirection(s string) (Direction, bool) {
	switch strings.ToLower(s) {
	case "in", "incoming", "inbound", "received":
		return DirectionIn, true
	case "out", "outgoing", "outbound", "sent":
		return DirectionOut, true
	default:
		return "", false
	}
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("no layout matched %q", s)
}

// classifySender derives the sender type. Inbound is always the customer;
// outbound defaults to operator unless the sender column flags automation.
func classifySender(direction Direction, sender string) SenderType {
	if direction == DirectionIn {
		return SenderCustomer
	}
	s := strings.ToLower(sender)
	if strings.Contains(s, "auto") || strings.Contains(s, "bot") || strings.Contains(s, "system") {
		return SenderAutomation
	}
	return SenderOperator
}
