package access

import (
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-chat-client/globals"
	"github.com/tcriess/lightspeed-chat-client/types"
)

var (
	ErrEmptyRoom          = errors.New("room name is empty")
	ErrRoomAvailable      = errors.New("room is already available")
	ErrDirectRoom         = errors.New("direct message rooms need no access request")
	ErrUnknownRequest     = errors.New("unknown access request")
	ErrUnknownInvitation  = errors.New("unknown invitation")
	ErrInvitationResolved = errors.New("invitation already resolved")
)

// Emitter forwards outbound events to the authority.
type Emitter interface {
	Emit(types.OutboundEvent) error
}

// AfterFunc schedules fn to run after d on the owner's loop and returns a func that
// cancels it.
type AfterFunc func(d time.Duration, fn func()) (stop func())

// Effect is what the session has to do after a workflow step. The workflow never touches
// the room directory or the current room itself.
type Effect struct {
	// AddRoom is added to the available rooms when set.
	AddRoom string
	// SwitchTo becomes the current room when set.
	SwitchTo string
	// Refresh asks for a directory refresh.
	Refresh bool
	// ReloadRequests asks for the inbound access requests to be fetched again.
	ReloadRequests bool
	// ReloadInvitations asks for the invitations to be fetched again.
	ReloadInvitations bool
}

// Workflow owns access requests and invitations of one user.
type Workflow struct {
	self    string
	emitter Emitter
	after   AfterFunc
	logger  hclog.Logger

	indicatorTimeout time.Duration
	requesting       string
	clearIndicator   func()
	onIndicator      func(room string)

	inbound  []types.AccessRequest
	outbound []types.AccessRequest

	invitations []types.Invitation
}

type Options struct {
	Self    string
	Emitter Emitter
	After   AfterFunc
	// IndicatorTimeout is how long the "requesting" indicator stays up.
	IndicatorTimeout time.Duration
	// OnIndicator is called with the room when the indicator goes up and with "" when it clears.
	OnIndicator func(room string)
	Logger      hclog.Logger
}

func New(opts Options) *Workflow {
	onIndicator := opts.OnIndicator
	if onIndicator == nil {
		onIndicator = func(string) {}
	}
	return &Workflow{
		self:             opts.Self,
		emitter:          opts.Emitter,
		after:            opts.After,
		logger:           globals.Logger(opts.Logger).Named("access"),
		indicatorTimeout: opts.IndicatorTimeout,
		onIndicator:      onIndicator,
	}
}

func (w *Workflow) outboundFor(room string) int {
	for i, req := range w.outbound {
		if req.Room == room {
			return i
		}
	}
	return -1
}

// RequestAccess asks the authority for access to a room that is not available yet.
// A second request while one is pending is a no-op; it reports whether a request was sent.
func (w *Workflow) RequestAccess(room string, available bool) (bool, error) {
	switch {
	case room == "":
		return false, ErrEmptyRoom
	case available:
		return false, ErrRoomAvailable
	case types.IsDMRoom(room):
		return false, ErrDirectRoom
	}
	i := w.outboundFor(room)
	if i >= 0 && w.outbound[i].Status == types.RequestPending {
		w.logger.Debug("access request already pending", "room", room)
		return false, nil
	}
	if err := w.emitter.Emit(types.RequestRoomAccess{Username: w.self, RoomName: room}); err != nil {
		return false, err
	}
	req := types.AccessRequest{Requester: w.self, Room: room, Status: types.RequestPending}
	if i >= 0 {
		w.outbound[i] = req
	} else {
		w.outbound = append(w.outbound, req)
	}
	w.showIndicator(room)
	return true, nil
}

func (w *Workflow) showIndicator(room string) {
	if w.clearIndicator != nil {
		w.clearIndicator()
	}
	w.requesting = room
	w.onIndicator(room)
	w.clearIndicator = w.after(w.indicatorTimeout, func() {
		w.clearIndicator = nil
		w.requesting = ""
		w.onIndicator("")
	})
}

// Requesting returns the room the indicator is up for, or "".
func (w *Workflow) Requesting() string {
	return w.requesting
}

// OnAccessResponse resolves one of our own requests.
func (w *Workflow) OnAccessResponse(ev types.AccessResponded) Effect {
	i := w.outboundFor(ev.RoomName)
	if !ev.Approved {
		if i >= 0 {
			w.outbound[i].Status = types.RequestRejected
			if ev.RequestId != "" {
				w.outbound[i].Id = ev.RequestId
			}
		}
		w.logger.Info("access request rejected", "room", ev.RoomName)
		return Effect{}
	}
	if i >= 0 {
		w.outbound = append(w.outbound[:i], w.outbound[i+1:]...)
	}
	w.logger.Info("access request approved", "room", ev.RoomName)
	return Effect{AddRoom: ev.RoomName, SwitchTo: ev.RoomName, Refresh: true}
}

// OnAccessRequested records a request we must act on. Known ids are ignored.
func (w *Workflow) OnAccessRequested(ev types.AccessRequested) bool {
	for _, req := range w.inbound {
		if req.Id == ev.RequestId {
			return false
		}
	}
	w.inbound = append(w.inbound, types.AccessRequest{
		Id:        ev.RequestId,
		Requester: ev.Requester,
		Room:      ev.RoomName,
		Status:    types.RequestPending,
	})
	return true
}

// LoadRequests replaces the inbound requests with the pending ones fetched from the authority.
func (w *Workflow) LoadRequests(requests []types.AccessRequest) {
	inbound := make([]types.AccessRequest, 0, len(requests))
	seen := make(map[string]struct{}, len(requests))
	for _, req := range requests {
		if _, dup := seen[req.Id]; dup || req.Status != types.RequestPending {
			continue
		}
		seen[req.Id] = struct{}{}
		inbound = append(inbound, req)
	}
	w.inbound = inbound
}

// RespondToAccess decides an inbound request. The request is dropped locally right away.
func (w *Workflow) RespondToAccess(requestId string, approved bool) (Effect, error) {
	i := -1
	for j, req := range w.inbound {
		if req.Id == requestId {
			i = j
			break
		}
	}
	if i < 0 {
		return Effect{}, ErrUnknownRequest
	}
	if err := w.emitter.Emit(types.RespondToRoomAccess{RequestId: requestId, Approved: approved}); err != nil {
		return Effect{}, err
	}
	w.inbound = append(w.inbound[:i], w.inbound[i+1:]...)
	return Effect{Refresh: true, ReloadRequests: true}, nil
}

// Invite emits one invitation per recipient, skipping ourselves and duplicates. It
// returns the number of invitations emitted and the errors of the ones that failed.
func (w *Workflow) Invite(room string, recipients []string) (int, error) {
	if room == "" {
		return 0, ErrEmptyRoom
	}
	var errs []error
	sent := 0
	seen := make(map[string]struct{}, len(recipients))
	for _, invitee := range recipients {
		if _, dup := seen[invitee]; dup || invitee == "" || invitee == w.self {
			continue
		}
		seen[invitee] = struct{}{}
		if err := w.emitter.Emit(types.InviteUserToRoom{Inviter: w.self, Invitee: invitee, RoomName: room}); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func (w *Workflow) invitation(id string) int {
	for i, inv := range w.invitations {
		if inv.Id == id {
			return i
		}
	}
	return -1
}

// OnInvitation records an invitation. Delivering the same id again is a no-op; it reports
// whether a record was created.
func (w *Workflow) OnInvitation(ev types.InvitationReceived) bool {
	if w.invitation(ev.InvitationId) >= 0 {
		return false
	}
	w.invitations = append(w.invitations, types.Invitation{
		Id:      ev.InvitationId,
		Room:    ev.RoomName,
		Inviter: ev.Inviter,
		Status:  types.InvitationPending,
	})
	return true
}

// LoadInvitations merges invitations fetched from the authority by id. Records we
// resolved locally keep their status; pending records the authority no longer reports
// are dropped.
func (w *Workflow) LoadInvitations(fetched []types.Invitation) {
	local := make(map[string]types.Invitation, len(w.invitations))
	for _, inv := range w.invitations {
		local[inv.Id] = inv
	}
	merged := make([]types.Invitation, 0, len(fetched)+len(w.invitations))
	seen := make(map[string]struct{}, len(fetched))
	for _, inv := range fetched {
		if _, dup := seen[inv.Id]; dup {
			continue
		}
		seen[inv.Id] = struct{}{}
		if l, ok := local[inv.Id]; ok && l.Status.Terminal() {
			inv.Status = l.Status
		}
		merged = append(merged, inv)
	}
	for _, inv := range w.invitations {
		if _, ok := seen[inv.Id]; !ok && inv.Status.Terminal() {
			merged = append(merged, inv)
		}
	}
	w.invitations = merged
}

// RespondToInvitation accepts or declines a pending invitation and updates it in place.
func (w *Workflow) RespondToInvitation(id string, accepted bool) (Effect, error) {
	i := w.invitation(id)
	if i < 0 {
		return Effect{}, ErrUnknownInvitation
	}
	if w.invitations[i].Status.Terminal() {
		return Effect{}, ErrInvitationResolved
	}
	if err := w.emitter.Emit(types.RespondToRoomInvitation{InvitationId: id, Accepted: accepted, Username: w.self}); err != nil {
		return Effect{}, err
	}
	effect := Effect{Refresh: true, ReloadInvitations: true}
	if accepted {
		w.invitations[i].Status = types.InvitationAccepted
		effect.AddRoom = w.invitations[i].Room
		effect.SwitchTo = w.invitations[i].Room
	} else {
		w.invitations[i].Status = types.InvitationDeclined
	}
	return effect, nil
}

// OnInvitationResponded applies a decision on an invitation as reported by the authority.
func (w *Workflow) OnInvitationResponded(ev types.InvitationResponded) Effect {
	status := types.InvitationDeclined
	if ev.Accepted {
		status = types.InvitationAccepted
	}
	if i := w.invitation(ev.InvitationId); i >= 0 {
		w.invitations[i].Status = status
	}
	if !ev.Accepted {
		return Effect{}
	}
	return Effect{AddRoom: ev.RoomName, Refresh: true}
}

// Inbound returns a copy of the requests we must act on.
func (w *Workflow) Inbound() []types.AccessRequest {
	return append([]types.AccessRequest{}, w.inbound...)
}

// Outbound returns a copy of the requests we issued that are not approved yet.
func (w *Workflow) Outbound() []types.AccessRequest {
	return append([]types.AccessRequest{}, w.outbound...)
}

// Invitations returns a copy of all invitations.
func (w *Workflow) Invitations() []types.Invitation {
	return append([]types.Invitation{}, w.invitations...)
}

// Pending returns the invitations that still await a decision.
func (w *Workflow) Pending() []types.Invitation {
	var out []types.Invitation
	for _, inv := range w.invitations {
		if inv.Status == types.InvitationPending {
			out = append(out, inv)
		}
	}
	return out
}

// Stop cancels the indicator timer.
func (w *Workflow) Stop() {
	if w.clearIndicator != nil {
		w.clearIndicator()
		w.clearIndicator = nil
	}
	w.requesting = ""
}
