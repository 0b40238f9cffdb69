package types

// Inbound event names, as sent by the authority.
const (
	EventMessage                = "message"
	EventMessageUpdated         = "messageUpdated"
	EventMessageStatusUpdate    = "messageStatusUpdate"
	EventRoomData               = "roomData"
	EventTyping                 = "typing"
	EventRoomCreated            = "roomCreated"
	EventAvailableRooms         = "availableRooms"
	EventRoomAccessRequest      = "roomAccessRequest"
	EventRoomAccessResponse     = "roomAccessResponse"
	EventRoomInvitation         = "roomInvitation"
	EventRoomInvitationResponse = "roomInvitationResponse"
	EventAllUsers               = "allUsers"
	EventError                  = "error"
	EventRoomDeleted            = "roomDeleted"
	EventRoomDeleteSuccess      = "roomDeleteSuccess"
)

// Outbound event names, as sent by the client.
const (
	EventJoin                    = "join"
	EventLeave                   = "leave"
	EventSendMessage             = "sendMessage"
	EventMessageSeen             = "messageSeen"
	EventSetTyping               = "typing"
	EventCreateRoom              = "createRoom"
	EventRequestRoomAccess       = "requestRoomAccess"
	EventRespondToRoomAccess     = "respondToRoomAccess"
	EventInviteUserToRoom        = "inviteUserToRoom"
	EventRespondToRoomInvitation = "respondToRoomInvitation"
	EventDeleteRoom              = "deleteRoom"
	EventGetAllUsers             = "getAllUsers"
)

// Named is anything that travels as a named event.
type Named interface {
	EventName() string
}

// InboundEvent is the closed set of events pushed by the authority. Only types in this
// file implement it.
type InboundEvent interface {
	Named
	inbound()
}

// OutboundEvent is the closed set of events the client emits.
type OutboundEvent interface {
	Named
	outbound()
}

type MessageReceived struct {
	Message `mapstructure:",squash"`
}

type MessageUpdated struct {
	MessageId string   `json:"messageId" mapstructure:"messageId"`
	Status    Status   `json:"status" mapstructure:"status"`
	SeenBy    []string `json:"seenBy" mapstructure:"seenBy"`
}

type MessageStatusUpdated struct {
	MessageId string `json:"messageId" mapstructure:"messageId"`
	Status    Status `json:"status" mapstructure:"status"`
}

type RoomData struct {
	Room  string   `json:"room,omitempty" mapstructure:"room"`
	Users []string `json:"users" mapstructure:"users"`
}

type TypingUsers struct {
	Room  string   `json:"room,omitempty" mapstructure:"room"`
	Users []string `json:"users" mapstructure:"users"`
}

type RoomCreated struct {
	RoomName string `json:"roomName" mapstructure:"roomName"`
}

type AvailableRooms struct {
	Rooms []string `json:"rooms" mapstructure:"rooms"`
}

type AccessRequested struct {
	RequestId string `json:"requestId" mapstructure:"requestId"`
	Requester string `json:"requester" mapstructure:"requester"`
	RoomName  string `json:"roomName" mapstructure:"roomName"`
}

type AccessResponded struct {
	RequestId string `json:"requestId" mapstructure:"requestId"`
	Approved  bool   `json:"approved" mapstructure:"approved"`
	RoomName  string `json:"roomName" mapstructure:"roomName"`
}

type InvitationReceived struct {
	InvitationId string `json:"invitationId" mapstructure:"invitationId"`
	RoomName     string `json:"roomName" mapstructure:"roomName"`
	Inviter      string `json:"inviter" mapstructure:"inviter"`
}

type InvitationResponded struct {
	InvitationId string `json:"invitationId" mapstructure:"invitationId"`
	Accepted     bool   `json:"accepted" mapstructure:"accepted"`
	RoomName     string `json:"roomName" mapstructure:"roomName"`
}

type AllUsers struct {
	Users []string `json:"users" mapstructure:"users"`
}

type ServerError struct {
	Message string `json:"message" mapstructure:"message"`
}

type RoomDeleted struct {
	RoomName string `json:"roomName" mapstructure:"roomName"`
}

type RoomDeleteSucceeded struct {
	RoomName string `json:"roomName" mapstructure:"roomName"`
}

func (MessageReceived) EventName() string      { return EventMessage }
func (MessageUpdated) EventName() string       { return EventMessageUpdated }
func (MessageStatusUpdated) EventName() string { return EventMessageStatusUpdate }
func (RoomData) EventName() string             { return EventRoomData }
func (TypingUsers) EventName() string          { return EventTyping }
func (RoomCreated) EventName() string          { return EventRoomCreated }
func (AvailableRooms) EventName() string       { return EventAvailableRooms }
func (AccessRequested) EventName() string      { return EventRoomAccessRequest }
func (AccessResponded) EventName() string      { return EventRoomAccessResponse }
func (InvitationReceived) EventName() string   { return EventRoomInvitation }
func (InvitationResponded) EventName() string  { return EventRoomInvitationResponse }
func (AllUsers) EventName() string             { return EventAllUsers }
func (ServerError) EventName() string          { return EventError }
func (RoomDeleted) EventName() string          { return EventRoomDeleted }
func (RoomDeleteSucceeded) EventName() string  { return EventRoomDeleteSuccess }

func (MessageReceived) inbound()      {}
func (MessageUpdated) inbound()       {}
func (MessageStatusUpdated) inbound() {}
func (RoomData) inbound()             {}
func (TypingUsers) inbound()          {}
func (RoomCreated) inbound()          {}
func (AvailableRooms) inbound()       {}
func (AccessRequested) inbound()      {}
func (AccessResponded) inbound()      {}
func (InvitationReceived) inbound()   {}
func (InvitationResponded) inbound()  {}
func (AllUsers) inbound()             {}
func (ServerError) inbound()          {}
func (RoomDeleted) inbound()          {}
func (RoomDeleteSucceeded) inbound()  {}

type Join struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type Leave struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type SendMessage struct {
	Message `mapstructure:",squash"`
}

type MessageSeen struct {
	MessageId string `json:"messageId"`
	Room      string `json:"room"`
	Username  string `json:"username"`
}

type Typing struct {
	Username string `json:"username"`
	Room     string `json:"room"`
	IsTyping bool   `json:"isTyping"`
}

type CreateRoom struct {
	Username  string `json:"username"`
	RoomName  string `json:"roomName"`
	IsPrivate bool   `json:"isPrivate"`
}

type RequestRoomAccess struct {
	Username string `json:"username"`
	RoomName string `json:"roomName"`
}

type RespondToRoomAccess struct {
	RequestId string `json:"requestId"`
	Approved  bool   `json:"approved"`
}

type InviteUserToRoom struct {
	Inviter  string `json:"inviter"`
	Invitee  string `json:"invitee"`
	RoomName string `json:"roomName"`
}

type RespondToRoomInvitation struct {
	InvitationId string `json:"invitationId"`
	Accepted     bool   `json:"accepted"`
	Username     string `json:"username"`
}

type DeleteRoom struct {
	Username string `json:"username"`
	RoomName string `json:"roomName"`
}

type GetAllUsers struct{}

func (Join) EventName() string                    { return EventJoin }
func (Leave) EventName() string                   { return EventLeave }
func (SendMessage) EventName() string             { return EventSendMessage }
func (MessageSeen) EventName() string             { return EventMessageSeen }
func (Typing) EventName() string                  { return EventSetTyping }
func (CreateRoom) EventName() string              { return EventCreateRoom }
func (RequestRoomAccess) EventName() string       { return EventRequestRoomAccess }
func (RespondToRoomAccess) EventName() string     { return EventRespondToRoomAccess }
func (InviteUserToRoom) EventName() string        { return EventInviteUserToRoom }
func (RespondToRoomInvitation) EventName() string { return EventRespondToRoomInvitation }
func (DeleteRoom) EventName() string              { return EventDeleteRoom }
func (GetAllUsers) EventName() string             { return EventGetAllUsers }

func (Join) outbound()                    {}
func (Leave) outbound()                   {}
func (SendMessage) outbound()             {}
func (MessageSeen) outbound()             {}
func (Typing) outbound()                  {}
func (CreateRoom) outbound()              {}
func (RequestRoomAccess) outbound()       {}
func (RespondToRoomAccess) outbound()     {}
func (InviteUserToRoom) outbound()        {}
func (RespondToRoomInvitation) outbound() {}
func (DeleteRoom) outbound()              {}
func (GetAllUsers) outbound()             {}
