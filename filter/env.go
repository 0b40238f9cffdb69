package filter

import (
	"strings"

	"github.com/tcriess/lightspeed-chat-client/types"
)

/*
Env is what notification filters are evaluated against. Filters are user configuration, so the field names
are part of the configuration surface and should not be renamed.
*/
type Env struct {
	Self        string
	CurrentRoom string
	Room        string
	Sender      string
	Text        string
	IsDirect    bool
	IsSystem    bool
	Created     int64

	Lower    func(string) string
	Mentions func(string, string) bool
}

// Mentions reports whether text contains @handle.
func Mentions(text, handle string) bool {
	return handle != "" && strings.Contains(text, "@"+handle)
}

// NewEnv builds the filter environment for a message received while current is the active room.
func NewEnv(self, current string, msg types.Message) Env {
	return Env{
		Self:        self,
		CurrentRoom: current,
		Room:        msg.Room,
		Sender:      msg.Sender,
		Text:        msg.Text,
		IsDirect:    types.IsDMRoom(msg.Room),
		IsSystem:    msg.Sender == types.SystemSender,
		Created:     msg.Timestamp.UnixMilli(),
		Lower:       strings.ToLower,
		Mentions:    Mentions,
	}
}
