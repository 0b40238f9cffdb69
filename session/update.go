package session

import (
	"github.com/tcriess/lightspeed-chat-client/types"
	"github.com/tcriess/lightspeed-chat-client/ws"
)

// UpdateKind names the part of the session state that changed.
type UpdateKind int

const (
	UpdateConnection UpdateKind = iota
	UpdateRoom
	UpdateRooms
	UpdateMessages
	UpdatePresence
	UpdateTyping
	UpdateRequests
	UpdateInvitations
	UpdateUsers
	UpdateIndicator
	UpdateNotify
	UpdateError
)

var updateKindNames = map[UpdateKind]string{
	UpdateConnection:  "connection",
	UpdateRoom:        "room",
	UpdateRooms:       "rooms",
	UpdateMessages:    "messages",
	UpdatePresence:    "presence",
	UpdateTyping:      "typing",
	UpdateRequests:    "requests",
	UpdateInvitations: "invitations",
	UpdateUsers:       "users",
	UpdateIndicator:   "indicator",
	UpdateNotify:      "notify",
	UpdateError:       "error",
}

func (k UpdateKind) String() string {
	if name, ok := updateKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Update is passed to Options.OnUpdate.
type Update struct {
	Kind UpdateKind
	Room string
	// Message is set for UpdateNotify.
	Message *types.Message
	// Text is the authority's message for UpdateError.
	Text string
	// Err is the cause of a connection state change, if any.
	Err error
}

// Snapshot is a copy of the session state. It shares nothing with the session.
type Snapshot struct {
	Username    string
	Connection  ws.State
	CurrentRoom string
	// RoomCreator is empty for direct message rooms and while unresolved.
	RoomCreator string
	// DMPeer is the other participant when the current room was opened with StartDirectMessage.
	DMPeer      string
	Rooms       []string
	Messages    []types.Message
	OnlineUsers []string
	Presence    map[string]types.Presence
	Typing      []string
	AllUsers    []string

	InboundRequests  []types.AccessRequest
	OutboundRequests []types.AccessRequest
	Invitations      []types.Invitation
	Requesting       string
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		Username:         s.self,
		Connection:       s.connection,
		CurrentRoom:      s.current,
		RoomCreator:      s.creator,
		DMPeer:           s.peer,
		Rooms:            s.rooms.Names(),
		Messages:         s.ledger.Messages(s.current),
		OnlineUsers:      s.presence.Users(),
		Presence:         s.presence.Statuses(),
		Typing:           s.presence.Typing(),
		AllUsers:         append([]string{}, s.allUsers...),
		InboundRequests:  s.access.Inbound(),
		OutboundRequests: s.access.Outbound(),
		Invitations:      s.access.Invitations(),
		Requesting:       s.access.Requesting(),
	}
}
