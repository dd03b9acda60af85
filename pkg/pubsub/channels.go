package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming for live-room fan-out.
const (
	channelRoomEvents  = "live:room:%s:events"
	ChannelGlobal      = "live:global:events"
	PatternRoomEvents  = "live:room:*:events"
	globalPartitionKey = "global"
)

// RoomChannel returns the channel carrying events for one room.
func RoomChannel(roomID string) string {
	return fmt.Sprintf(channelRoomEvents, roomID)
}

// RoomFromChannel extracts the room id from a room channel name.
func RoomFromChannel(channel string) (string, bool) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[0] != "live" || parts[1] != "room" || parts[3] != "events" {
		return "", false
	}
	return parts[2], parts[2] != ""
}
