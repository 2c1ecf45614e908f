package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type packageEvent struct {
	Action string `json:"action"`
	ID     string `json:"id"`
}

func TestMessageEncodesJSONWithHeaders(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	msg, err := Message(Event{Key: "serilog", Value: packageEvent{Action: "delete", ID: "Serilog"}}, now)
	require.NoError(t, err)
	assert.Equal(t, []byte("serilog"), msg.Key)
	assert.JSONEq(t, `{"action":"delete","id":"Serilog"}`, string(msg.Value))
	assert.Equal(t, now, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, ContentTypeHeader, msg.Headers[0].Key)

	decoded, err := DecodeJSON[packageEvent](msg.Value)
	require.NoError(t, err)
	assert.Equal(t, "Serilog", decoded.ID)
}

func TestMessageRejectsUnencodableValue(t *testing.T) {
	_, err := Message(Event{Key: "k", Value: make(chan int)}, time.Now())
	assert.ErrorContains(t, err, `marshaling event "k"`)
}

func TestDecodeJSONError(t *testing.T) {
	_, err := DecodeJSON[packageEvent]([]byte("{"))
	assert.ErrorContains(t, err, "decoding kafka message")
}
