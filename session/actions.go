package session

import (
	"context"
	"strings"

	"github.com/tcriess/lightspeed-chat-client/access"
	"github.com/tcriess/lightspeed-chat-client/types"
)

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() { snap = s.snapshot() })
	return snap, err
}

// History returns a copy of the log of any room.
func (s *Session) History(room string) ([]types.Message, error) {
	var messages []types.Message
	err := s.do(func() { messages = s.ledger.Messages(room) })
	return messages, err
}

// ChangeRoom makes room the current room without checking availability.
func (s *Session) ChangeRoom(room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return ErrEmptyRoomName
	}
	return s.do(func() { s.changeRoom(room) })
}

// Navigate switches to room if it is available or a direct message room. Otherwise it
// requests access. It reports whether the room was switched.
func (s *Session) Navigate(room string) (bool, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		return false, ErrEmptyRoomName
	}
	var switched bool
	var err error
	doErr := s.do(func() {
		if s.rooms.Has(room) || types.IsDMRoom(room) {
			s.changeRoom(room)
			switched = true
			return
		}
		_, err = s.access.RequestAccess(room, false)
		s.notify(Update{Kind: UpdateRequests, Room: room})
	})
	if doErr != nil {
		return false, doErr
	}
	return switched, err
}

// StartDirectMessage switches to the direct message room shared with peer.
func (s *Session) StartDirectMessage(peer string) error {
	peer = strings.TrimSpace(peer)
	if peer == "" || peer == s.self {
		return ErrInvalidPeer
	}
	return s.do(func() {
		s.changeRoom(types.DMRoomName(s.self, peer))
		s.peer = peer
	})
}

// CreateRoom asks the authority to create a room. The session switches to it once the
// authority confirms with roomCreated.
func (s *Session) CreateRoom(name string, private bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyRoomName
	}
	var err error
	doErr := s.do(func() {
		err = s.emit(types.CreateRoom{Username: s.self, RoomName: name, IsPrivate: private})
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// DeleteRoom asks the authority to delete a named room we created.
func (s *Session) DeleteRoom(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyRoomName
	}
	if types.IsDMRoom(name) {
		return ErrNotCreator
	}
	creator, err := s.creatorOf(ctx, name)
	if err != nil {
		return err
	}
	if creator != s.self {
		return ErrNotCreator
	}
	doErr := s.do(func() {
		err = s.emit(types.DeleteRoom{Username: s.self, RoomName: name})
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// creatorOf may block on the query surface, so it runs on the caller's goroutine. The
// cache is safe for concurrent use.
func (s *Session) creatorOf(ctx context.Context, room string) (string, error) {
	if v, ok := s.creators.Get(room); ok {
		return v.(string), nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()
	info, err := s.queries.FetchRoom(ctx, room)
	if err != nil {
		return "", err
	}
	s.creators.Add(room, info.Creator)
	return info.Creator, nil
}

// SendMessage appends text to the current room and sends it. The returned message is in
// the log even if sending failed, with status pending.
func (s *Session) SendMessage(text string) (types.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.Message{}, ErrEmptyMessage
	}
	var msg types.Message
	var err error
	doErr := s.do(func() {
		if s.current == "" {
			err = ErrNoRoom
			return
		}
		s.typing.Cancel()
		msg, err = s.ledger.SendLocal(s.channel, text, s.current)
		s.notify(Update{Kind: UpdateMessages, Room: s.current})
	})
	if doErr != nil {
		return types.Message{}, doErr
	}
	return msg, err
}

// Typing reports a keystroke (true) or an explicit stop (false) in the current room.
func (s *Session) Typing(isTyping bool) error {
	return s.do(func() {
		if isTyping && s.current != "" {
			s.typing.Keystroke(s.current)
		} else {
			s.typing.Cancel()
		}
	})
}

// RequestAccess asks for access to a room that is not available. It reports whether a
// request was sent; a request already pending for the room is not repeated.
func (s *Session) RequestAccess(room string) (bool, error) {
	room = strings.TrimSpace(room)
	var sent bool
	var err error
	doErr := s.do(func() {
		sent, err = s.access.RequestAccess(room, s.rooms.Has(room))
		if sent {
			s.notify(Update{Kind: UpdateRequests, Room: room})
		}
	})
	if doErr != nil {
		return false, doErr
	}
	return sent, err
}

// RespondToAccess approves or rejects a request made to us.
func (s *Session) RespondToAccess(requestId string, approved bool) error {
	return s.step(func() (access.Effect, error) {
		return s.access.RespondToAccess(requestId, approved)
	}, UpdateRequests)
}

// RespondToInvitation accepts or declines an invitation. Accepting switches to its room.
func (s *Session) RespondToInvitation(invitationId string, accepted bool) error {
	return s.step(func() (access.Effect, error) {
		return s.access.RespondToInvitation(invitationId, accepted)
	}, UpdateInvitations)
}

func (s *Session) step(fn func() (access.Effect, error), kind UpdateKind) error {
	var err error
	doErr := s.do(func() {
		var effect access.Effect
		effect, err = fn()
		if err != nil {
			return
		}
		s.notify(Update{Kind: kind})
		s.apply(effect)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Invite invites recipients to room, or to the current room if room is empty. It returns
// the number of invitations sent.
func (s *Session) Invite(room string, recipients []string) (int, error) {
	room = strings.TrimSpace(room)
	var sent int
	var err error
	doErr := s.do(func() {
		if room == "" {
			room = s.current
		}
		if room == "" {
			err = ErrNoRoom
			return
		}
		sent, err = s.access.Invite(room, recipients)
	})
	if doErr != nil {
		return 0, doErr
	}
	return sent, err
}
