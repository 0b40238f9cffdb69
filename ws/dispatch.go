package ws

import (
	"github.com/tcriess/lightspeed-chat-client/types"
)

// Handlers binds every inbound event kind to one callback. A nil callback drops that kind.
type Handlers struct {
	Message             func(types.MessageReceived)
	MessageUpdated      func(types.MessageUpdated)
	MessageStatus       func(types.MessageStatusUpdated)
	RoomData            func(types.RoomData)
	Typing              func(types.TypingUsers)
	RoomCreated         func(types.RoomCreated)
	AvailableRooms      func(types.AvailableRooms)
	AccessRequested     func(types.AccessRequested)
	AccessResponded     func(types.AccessResponded)
	InvitationReceived  func(types.InvitationReceived)
	InvitationResponded func(types.InvitationResponded)
	AllUsers            func(types.AllUsers)
	Error               func(types.ServerError)
	RoomDeleted         func(types.RoomDeleted)
	RoomDeleteSucceeded func(types.RoomDeleteSucceeded)
}

func call[T types.InboundEvent](fn func(T), ev T) bool {
	if fn == nil {
		return false
	}
	fn(ev)
	return true
}

// Dispatch routes ev to its handler and reports whether one ran.
func (h *Handlers) Dispatch(ev types.InboundEvent) bool {
	switch e := ev.(type) {
	case types.MessageReceived:
		return call(h.Message, e)
	case types.MessageUpdated:
		return call(h.MessageUpdated, e)
	case types.MessageStatusUpdated:
		return call(h.MessageStatus, e)
	case types.RoomData:
		return call(h.RoomData, e)
	case types.TypingUsers:
		return call(h.Typing, e)
	case types.RoomCreated:
		return call(h.RoomCreated, e)
	case types.AvailableRooms:
		return call(h.AvailableRooms, e)
	case types.AccessRequested:
		return call(h.AccessRequested, e)
	case types.AccessResponded:
		return call(h.AccessResponded, e)
	case types.InvitationReceived:
		return call(h.InvitationReceived, e)
	case types.InvitationResponded:
		return call(h.InvitationResponded, e)
	case types.AllUsers:
		return call(h.AllUsers, e)
	case types.ServerError:
		return call(h.Error, e)
	case types.RoomDeleted:
		return call(h.RoomDeleted, e)
	case types.RoomDeleteSucceeded:
		return call(h.RoomDeleteSucceeded, e)
	}
	return false
}
