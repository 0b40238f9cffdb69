package session

import (
	"context"

	"github.com/tcriess/lightspeed-chat-client/access"
	"github.com/tcriess/lightspeed-chat-client/filter"
	"github.com/tcriess/lightspeed-chat-client/types"
	"github.com/tcriess/lightspeed-chat-client/ws"
)

func (s *Session) newHandlers() ws.Handlers {
	return ws.Handlers{
		Message:             s.onMessage,
		MessageUpdated:      s.onMessageUpdated,
		MessageStatus:       s.onMessageStatus,
		RoomData:            s.onRoomData,
		Typing:              s.onTyping,
		RoomCreated:         s.onRoomCreated,
		AvailableRooms:      s.onAvailableRooms,
		AccessRequested:     s.onAccessRequested,
		AccessResponded:     s.onAccessResponded,
		InvitationReceived:  s.onInvitation,
		InvitationResponded: s.onInvitationResponded,
		AllUsers:            s.onAllUsers,
		Error:               s.onError,
		RoomDeleted:         s.onRoomDeleted,
		RoomDeleteSucceeded: s.onRoomDeleteSucceeded,
	}
}

func (s *Session) onState(sc ws.StateChange) {
	s.connection = sc.State
	switch sc.State {
	case ws.StateConnected:
		s.logger.Info("connected", "room", s.current)
		s.onConnected()
	case ws.StateDisconnected:
		s.logger.Warn("disconnected", "error", sc.Err)
		s.typing.Cancel()
		s.presence.Disconnected()
		s.notify(Update{Kind: UpdatePresence, Room: s.current})
	case ws.StateError:
		s.logger.Error("connection error", "error", sc.Err)
	}
	s.notify(Update{Kind: UpdateConnection, Err: sc.Err})
}

// onConnected resynchronizes everything the authority may have changed while we were away.
// The join for the current room was already replayed by the channel.
func (s *Session) onConnected() {
	s.loadMessages(s.current)
	s.refreshDirectory()
	s.loadRequests()
	s.loadInvitations()
	_ = s.emit(types.GetAllUsers{})
}

func (s *Session) resync() {
	s.refreshDirectory()
	s.loadRequests()
	s.loadInvitations()
}

func (s *Session) onMessage(ev types.MessageReceived) {
	msg := ev.Message
	if msg.Room == "" {
		msg.Room = s.current
	}
	if !s.ledger.OnRemoteMessage(msg) {
		return
	}
	if msg.Room == s.current {
		s.ackSeen(msg.Room)
	}
	s.notify(Update{Kind: UpdateMessages, Room: msg.Room})

	if msg.Sender == s.self {
		return
	}
	ok, err := s.opts.Notify.Match(filter.NewEnv(s.self, s.current, msg))
	if err != nil {
		s.logger.Warn("could not evaluate notify filter", "filter", s.opts.Notify.String(), "error", err)
		return
	}
	if ok {
		m := msg.Clone()
		s.notify(Update{Kind: UpdateNotify, Room: msg.Room, Message: &m})
	}
}

// ackSeen acknowledges the remote messages of room that have not been acknowledged yet.
func (s *Session) ackSeen(room string) {
	for _, id := range s.ledger.TakeUnacked(room) {
		_ = s.emit(types.MessageSeen{MessageId: id, Room: room, Username: s.self})
	}
}

func (s *Session) onMessageUpdated(ev types.MessageUpdated) {
	if s.ledger.OnStatusUpdate(ev.MessageId, ev.Status, ev.SeenBy) {
		s.notify(Update{Kind: UpdateMessages, Room: s.roomOf(ev.MessageId)})
	}
}

func (s *Session) onMessageStatus(ev types.MessageStatusUpdated) {
	if s.ledger.OnStatusUpdate(ev.MessageId, ev.Status, nil) {
		s.notify(Update{Kind: UpdateMessages, Room: s.roomOf(ev.MessageId)})
	}
}

func (s *Session) roomOf(id string) string {
	msg, _ := s.ledger.Get(id)
	return msg.Room
}

func (s *Session) onRoomData(ev types.RoomData) {
	if ev.Room != "" && ev.Room != s.current {
		s.logger.Debug("ignoring room data for another room", "room", ev.Room)
		return
	}
	s.presence.OnRoomData(ev.Users)
	s.notify(Update{Kind: UpdatePresence, Room: s.current})
}

func (s *Session) onTyping(ev types.TypingUsers) {
	if ev.Room != "" && ev.Room != s.current {
		return
	}
	s.presence.OnTyping(ev.Users)
	s.notify(Update{Kind: UpdateTyping, Room: s.current})
}

func (s *Session) onRoomCreated(ev types.RoomCreated) {
	s.logger.Info("room created", "room", ev.RoomName)
	if s.rooms.Add(ev.RoomName) {
		s.notify(Update{Kind: UpdateRooms})
	}
	s.changeRoom(ev.RoomName)
	s.after(s.opts.RefreshDelay, s.refreshDirectory)
}

func (s *Session) onAvailableRooms(ev types.AvailableRooms) {
	if s.rooms.Replace(ev.Rooms) {
		s.notify(Update{Kind: UpdateRooms})
	}
}

func (s *Session) onAccessRequested(ev types.AccessRequested) {
	if s.access.OnAccessRequested(ev) {
		s.logger.Info("access requested", "requester", ev.Requester, "room", ev.RoomName)
		s.notify(Update{Kind: UpdateRequests, Room: ev.RoomName})
	}
}

func (s *Session) onAccessResponded(ev types.AccessResponded) {
	s.apply(s.access.OnAccessResponse(ev))
	s.notify(Update{Kind: UpdateRequests, Room: ev.RoomName})
}

func (s *Session) onInvitation(ev types.InvitationReceived) {
	if s.access.OnInvitation(ev) {
		s.logger.Info("invited", "inviter", ev.Inviter, "room", ev.RoomName)
		s.notify(Update{Kind: UpdateInvitations, Room: ev.RoomName})
	}
	s.loadInvitations()
}

func (s *Session) onInvitationResponded(ev types.InvitationResponded) {
	s.apply(s.access.OnInvitationResponded(ev))
	s.notify(Update{Kind: UpdateInvitations, Room: ev.RoomName})
}

func (s *Session) onAllUsers(ev types.AllUsers) {
	users := make([]string, 0, len(ev.Users))
	for _, u := range ev.Users {
		if u != s.self {
			users = append(users, u)
		}
	}
	s.allUsers = users
	s.notify(Update{Kind: UpdateUsers})
}

func (s *Session) onError(ev types.ServerError) {
	s.logger.Error("authority reported an error", "message", ev.Message)
	s.notify(Update{Kind: UpdateError, Text: ev.Message})
}

func (s *Session) onRoomDeleted(ev types.RoomDeleted) {
	s.logger.Info("room deleted", "room", ev.RoomName)
	s.creators.Remove(ev.RoomName)
	if s.rooms.Remove(ev.RoomName) {
		s.notify(Update{Kind: UpdateRooms})
	}
	if s.current == ev.RoomName {
		s.changeRoom(s.fallbackRoom())
	}
	s.ledger.Forget(ev.RoomName)
	s.after(s.opts.RefreshDelay, s.refreshDirectory)
}

func (s *Session) onRoomDeleteSucceeded(ev types.RoomDeleteSucceeded) {
	s.logger.Info("room deletion confirmed", "room", ev.RoomName)
}

// fallbackRoom is where the session goes when the current room disappears: the default
// room, or else the first available room. Empty means there is nowhere to go.
func (s *Session) fallbackRoom() string {
	if s.opts.DefaultRoom != s.current {
		return s.opts.DefaultRoom
	}
	for _, room := range s.rooms.Names() {
		if room != s.current {
			return room
		}
	}
	return ""
}

// apply carries out what an access workflow step asks for.
func (s *Session) apply(effect access.Effect) {
	if effect.AddRoom != "" && s.rooms.Add(effect.AddRoom) {
		s.notify(Update{Kind: UpdateRooms})
	}
	if effect.SwitchTo != "" {
		s.changeRoom(effect.SwitchTo)
	}
	if effect.Refresh {
		s.after(s.opts.RefreshDelay, s.refreshDirectory)
	}
	if effect.ReloadRequests {
		s.after(s.opts.RefreshDelay, s.loadRequests)
	}
	if effect.ReloadInvitations {
		s.after(s.opts.RefreshDelay, s.loadInvitations)
	}
}

// changeRoom leaves the current room and joins room. The channel tracks the join so a
// reconnect lands in the same room. An empty room only leaves.
func (s *Session) changeRoom(room string) {
	if room == s.current {
		return
	}
	s.typing.Cancel()
	if s.current != "" {
		_ = s.emit(types.Leave{Username: s.self, Room: s.current})
	}
	s.current = room
	s.roomGen++
	join := types.Join{Username: s.self, Room: room}
	s.channel.Track(join)
	s.presence.Reset()
	s.creator = ""
	if room == "" {
		s.peer = ""
		s.logger.Info("left room, no room to go to")
		s.notify(Update{Kind: UpdateRoom})
		return
	}
	_ = s.emit(join)

	if !types.IsDMRoom(room) {
		s.peer = ""
		s.resolveCreator(room)
	}
	s.logger.Debug("changed room", "room", room)
	s.notify(Update{Kind: UpdateRoom, Room: room})
	s.loadMessages(room)
}

// loadMessages replaces the history of room. The result is dropped if the room changed
// while the query was in flight.
func (s *Session) loadMessages(room string) {
	if room == "" {
		return
	}
	gen := s.roomGen
	query(s, "messages", func(ctx context.Context) ([]types.Message, error) {
		return s.queries.FetchMessages(ctx, room)
	}, func(history []types.Message) {
		if s.roomGen != gen || s.current != room {
			s.logger.Debug("dropping stale history", "room", room)
			return
		}
		s.ledger.Load(room, history)
		s.ackSeen(room)
		s.notify(Update{Kind: UpdateMessages, Room: room})
	})
}

func (s *Session) resolveCreator(room string) {
	if v, ok := s.creators.Get(room); ok {
		s.creator = v.(string)
		return
	}
	query(s, "room", func(ctx context.Context) (types.RoomInfo, error) {
		return s.queries.FetchRoom(ctx, room)
	}, func(info types.RoomInfo) {
		s.creators.Add(room, info.Creator)
		if s.current == room {
			s.creator = info.Creator
			s.notify(Update{Kind: UpdateRoom, Room: room})
		}
	})
}

func (s *Session) refreshDirectory() {
	query(s, "directory", func(ctx context.Context) ([]string, error) {
		return s.syncer.Refresh(ctx, s.self)
	}, func(rooms []string) {
		if s.rooms.Replace(rooms) {
			s.notify(Update{Kind: UpdateRooms})
		}
	})
}

func (s *Session) loadRequests() {
	query(s, "room requests", func(ctx context.Context) ([]types.AccessRequest, error) {
		return s.queries.FetchRoomRequests(ctx, s.self)
	}, func(requests []types.AccessRequest) {
		s.access.LoadRequests(requests)
		s.notify(Update{Kind: UpdateRequests})
	})
}

func (s *Session) loadInvitations() {
	query(s, "room invitations", func(ctx context.Context) ([]types.Invitation, error) {
		return s.queries.FetchRoomInvitations(ctx, s.self)
	}, func(invitations []types.Invitation) {
		s.access.LoadInvitations(invitations)
		s.notify(Update{Kind: UpdateInvitations})
	})
}
