package pubsub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomChannelRoundTrip(t *testing.T) {
	roomID, ok := RoomFromChannel(RoomChannel("room-42"))
	require.True(t, ok)
	assert.Equal(t, "room-42", roomID)

	_, ok = RoomFromChannel(ChannelGlobal)
	assert.False(t, ok)
}

func TestChannelToTopicAndKey(t *testing.T) {
	topic, key, err := channelToTopicAndKey(RoomChannel("r1"))
	require.NoError(t, err)
	assert.Equal(t, topicRoomEvents, topic)
	assert.Equal(t, "r1", key)

	topic, key, err = channelToTopicAndKey(ChannelGlobal)
	require.NoError(t, err)
	assert.Equal(t, topicGlobalEvents, topic)
	assert.Equal(t, globalPartitionKey, key)

	topic, _, err = channelToTopicAndKey(PatternRoomEvents)
	require.NoError(t, err)
	assert.Equal(t, topicRoomEvents, topic)

	_, _, err = channelToTopicAndKey("signal:room:r1:to_media")
	assert.Error(t, err)
}

func TestNewEventPayload(t *testing.T) {
	evt, err := NewEvent("stream:gift", "r1", "node-a", map[string]int{"quantity": 3})
	require.NoError(t, err)

	var payload struct {
		Quantity int `json:"quantity"`
	}
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, 3, payload.Quantity)
	assert.Equal(t, "node-a", evt.Origin)
}
