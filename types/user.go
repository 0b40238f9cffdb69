package types

// Presence is the online state of a handle as reported for the active room.
type Presence string

const (
	Online  Presence = "online"
	Offline Presence = "offline"
)
