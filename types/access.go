package types

// RequestStatus is the state of an access request: pending, then approved or rejected.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// AccessRequest is a non-member's request to join a restricted room.
type AccessRequest struct {
	Id        string        `json:"id" mapstructure:"id"`
	Requester string        `json:"requester" mapstructure:"requester"`
	Room      string        `json:"room" mapstructure:"room"`
	Status    RequestStatus `json:"status" mapstructure:"status"`
}

// InvitationStatus is the state of an invitation: pending, then accepted or declined.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

// Terminal reports whether no further transition is allowed.
func (s InvitationStatus) Terminal() bool {
	return s == InvitationAccepted || s == InvitationDeclined
}

// Invitation is an offer from a room member to a specific user.
type Invitation struct {
	Id      string           `json:"id" mapstructure:"id"`
	Room    string           `json:"room" mapstructure:"room"`
	Inviter string           `json:"inviter" mapstructure:"inviter"`
	Status  InvitationStatus `json:"status" mapstructure:"status"`
}
