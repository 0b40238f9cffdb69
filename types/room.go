package types

import "strings"

// DirectRoomPrefix marks rooms derived from two participant handles.
const DirectRoomPrefix = "dm_"

// DMRoomName returns the direct-message room shared by a and b. The handles are
// ordered lexicographically, so either party derives the same name.
func DMRoomName(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return DirectRoomPrefix + a + "_" + b
}

// IsDMRoom reports whether name is a direct-message room.
func IsDMRoom(name string) bool {
	return strings.HasPrefix(name, DirectRoomPrefix)
}

// RoomInfo is the metadata the authority keeps for a named room.
type RoomInfo struct {
	Name      string   `json:"name" mapstructure:"name"`
	Creator   string   `json:"creator" mapstructure:"creator"`
	IsPrivate bool     `json:"isPrivate" mapstructure:"isPrivate"`
	Members   []string `json:"members" mapstructure:"members"`
}
