package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	event, err := NewEvent(EventFollowCreated, at, FollowEventData{FollowerID: 1, FollowedID: 2})
	require.NoError(t, err)

	_, err = uuid.Parse(event.ID)
	require.NoError(t, err)

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	decoded, err := DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, EventFollowCreated, decoded.Type)
	assert.True(t, at.Equal(decoded.Timestamp))

	var data FollowEventData
	require.NoError(t, json.Unmarshal(decoded.Data, &data))
	assert.Equal(t, FollowEventData{FollowerID: 1, FollowedID: 2}, data)
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	_, err := DecodeEvent([]byte("not json"))
	assert.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), "k", Event{}))
}
