package conversation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasicExport(t *testing.T) {
	input := `id,phoneNumber,direction,body,sentAt,sender
m1,+15551234567,incoming,Do you sell gift cards?,2026-01-05T14:00:00Z,
m2,+15551234567,outgoing,"Yes, online or at the front desk!",2026-01-05T14:02:00Z,Sarah
m3,+15559876543,incoming,What time do you close?,2026-01-05T15:00:00Z,
`
	result, err := NewParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result.Messages, 3)
	assert.Zero(t, result.ErrorCount)

	first := result.Messages[0]
	assert.Equal(t, "m1", first.ID)
	assert.Equal(t, DirectionIn, first.Direction)
	assert.Equal(t, "+15551234567", first.From)
	assert.Equal(t, SenderCustomer, first.SenderType)
	assert.Equal(t, time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC), first.CreatedAt)

	second := result.Messages[1]
	assert.Equal(t, DirectionOut, second.Direction)
	assert.Equal(t, SenderOperator, second.SenderType)
}

func TestParseHeaderVariants(t *testing.T) {
	input := `Message ID,Phone Number,Direction,Text,Created At,Sender Type
m1,+15551234567,inbound,hello,2026-01-05 14:00:00,auto-responder
`
	result, err := NewParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, DirectionIn, result.Messages[0].Direction)
	// Inbound is always the customer regardless of the sender column.
	assert.Equal(t, SenderCustomer, result.Messages[0].SenderType)
}

func TestParseAutomationSender(t *testing.T) {
	input := `id,phone,direction,body,date,sender
m1,+15551234567,out,Your booking is confirmed,2026-01-05T14:00:00Z,AutoBot
`
	result, err := NewParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, SenderAutomation, result.Messages[0].SenderType)
}

func TestParseSkipsEmptyBodies(t *testing.T) {
	input := `id,phone,direction,body,date
m1,+15551234567,in,,2026-01-05T14:00:00Z
m2,+15551234567,in,real message,2026-01-05T14:01:00Z
`
	result, err := NewParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "m2", result.Messages[0].ID)
	assert.Zero(t, result.ErrorCount)
}

func TestParseCollectsRowErrors(t *testing.T) {
	input := `id,phone,direction,body,date
m1,+15551234567,sideways,hello,2026-01-05T14:00:00Z
m2,+15551234567,in,hello,not-a-date
m3,+15551234567,in,valid,2026-01-05T14:00:00Z
`
	result, err := NewParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, result.Messages, 1)
	assert.Equal(t, 2, result.ErrorCount)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 2, result.Errors[0].Row)
	assert.Contains(t, result.Errors[0].Error, "direction")
}

func TestParseMissingRequiredColumn(t *testing.T) {
	input := `id,direction,body,date
m1,in,hello,2026-01-05T14:00:00Z
`
	_, err := NewParser().Parse(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phone")
}

func TestParseTimestampLayouts(t *testing.T) {
	for _, value := range []string{
		"2026-01-05T14:00:00Z",
		"2026-01-05 14:00:00",
		"01/05/2026 14:00",
		"2026-01-05",
	} {
		_, err := parseTimestamp(value)
		assert.NoError(t, err, value)
	}
	_, err := parseTimestamp("last tuesday")
	assert.Error(t, err)
}
