package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-chat-client/filter"
	"github.com/tcriess/lightspeed-chat-client/ledger"
	"github.com/tcriess/lightspeed-chat-client/types"
	"github.com/tcriess/lightspeed-chat-client/ws"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeChannel struct {
	mu        sync.Mutex
	emitted   []types.OutboundEvent
	tracked   []types.Join
	connected bool
	closed    int
	events    chan types.InboundEvent
	states    chan ws.StateChange
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		events: make(chan types.InboundEvent, 16),
		states: make(chan ws.StateChange, 16),
	}
}

func (f *fakeChannel) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeChannel) Emit(ev types.OutboundEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, ev)
	return nil
}

func (f *fakeChannel) Track(join types.Join) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = append(f.tracked, join)
}

func (f *fakeChannel) Events() <-chan types.InboundEvent { return f.events }
func (f *fakeChannel) States() <-chan ws.StateChange     { return f.states }

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeChannel) Emitted() []types.OutboundEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.OutboundEvent{}, f.emitted...)
}

func (f *fakeChannel) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = nil
}

// roomEvents returns the joins and leaves emitted so far, in order.
func (f *fakeChannel) roomEvents() []types.OutboundEvent {
	var out []types.OutboundEvent
	for _, ev := range f.Emitted() {
		switch ev.(type) {
		case types.Join, types.Leave:
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeChannel) count(name string) int {
	n := 0
	for _, ev := range f.Emitted() {
		if ev.EventName() == name {
			n++
		}
	}
	return n
}

type fakeQueries struct {
	mu          sync.Mutex
	messages    map[string][]types.Message
	gates       map[string]chan struct{}
	joined      []string
	public      []string
	member      []string
	requests    []types.AccessRequest
	invitations []types.Invitation
	rooms       map[string]types.RoomInfo
	calls       map[string]int
}

func newFakeQueries() *fakeQueries {
	return &fakeQueries{
		messages: make(map[string][]types.Message),
		gates:    make(map[string]chan struct{}),
		joined:   []string{"general"},
		public:   []string{"general", "tech", "random"},
		rooms: map[string]types.RoomInfo{
			"general": {Name: "general", Creator: "admin"},
			"tech":    {Name: "tech", Creator: "alice"},
		},
		calls: make(map[string]int),
	}
}

func (q *fakeQueries) called(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls[name]++
}

func (q *fakeQueries) Calls(name string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls[name]
}

func (q *fakeQueries) FetchMessages(ctx context.Context, room string) ([]types.Message, error) {
	q.called("messages")
	q.mu.Lock()
	gate := q.gates[room]
	q.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]types.Message{}, q.messages[room]...), nil
}

func (q *fakeQueries) FetchUserRooms(context.Context, string) ([]string, error) {
	q.called("user-rooms")
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string{}, q.joined...), nil
}

func (q *fakeQueries) FetchPublicRooms(context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string{}, q.public...), nil
}

func (q *fakeQueries) FetchRoomsWithUser(context.Context, string) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.member == nil {
		return nil, errors.New("not found")
	}
	return append([]string{}, q.member...), nil
}

func (q *fakeQueries) FetchRoomRequests(context.Context, string) ([]types.AccessRequest, error) {
	q.called("requests")
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]types.AccessRequest{}, q.requests...), nil
}

func (q *fakeQueries) FetchRoomInvitations(context.Context, string) ([]types.Invitation, error) {
	q.called("invitations")
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]types.Invitation{}, q.invitations...), nil
}

func (q *fakeQueries) FetchRoom(_ context.Context, room string) (types.RoomInfo, error) {
	q.called("room")
	q.mu.Lock()
	defer q.mu.Unlock()
	info, ok := q.rooms[room]
	if !ok {
		return types.RoomInfo{}, errors.New("404")
	}
	return info, nil
}

type harness struct {
	s       *Session
	ch      *fakeChannel
	q       *fakeQueries
	mu      sync.Mutex
	updates []Update
	runErr  chan error
}

func (h *harness) Updates(kind UpdateKind) []Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Update
	for _, u := range h.updates {
		if u.Kind == kind {
			out = append(out, u)
		}
	}
	return out
}

func (h *harness) snapshot(t *testing.T) Snapshot {
	t.Helper()
	snap, err := h.s.Snapshot()
	require.NoError(t, err)
	return snap
}

func (h *harness) eventually(t *testing.T, cond func(Snapshot) bool, msg string) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, err := h.s.Snapshot()
		return err == nil && cond(snap)
	}, waitFor, tick, msg)
}

func newHarness(t *testing.T, username string, configure ...func(*Options, *fakeQueries)) *harness {
	t.Helper()
	h := &harness{
		ch:     newFakeChannel(),
		q:      newFakeQueries(),
		runErr: make(chan error, 1),
	}
	opts := Options{
		Username:            username,
		DefaultRoom:         "general",
		InitialRooms:        []string{"general", "tech", "random"},
		TypingTimeout:       50 * time.Millisecond,
		RequestingIndicator: 200 * time.Millisecond,
		RefreshDelay:        10 * time.Millisecond,
		QueryTimeout:        time.Second,
		StatusPolicy:        ledger.Monotonic,
		OnUpdate: func(u Update) {
			h.mu.Lock()
			h.updates = append(h.updates, u)
			h.mu.Unlock()
		},
		Logger: hclog.NewNullLogger(),
	}
	for _, c := range configure {
		c(&opts, h.q)
	}
	s, err := New(opts, h.ch, h.q)
	require.NoError(t, err)
	h.s = s
	go func() { h.runErr <- s.Run(context.Background()) }()
	t.Cleanup(func() { s.Close() })
	return h
}

// connect reports the channel as connected and waits for the resulting reloads.
func (h *harness) connect(t *testing.T) {
	t.Helper()
	h.ch.states <- ws.StateChange{State: ws.StateConnected}
	require.Eventually(t, func() bool {
		return h.ch.count(types.EventGetAllUsers) > 0 &&
			len(h.Updates(UpdateMessages)) > 0 &&
			len(h.Updates(UpdateRequests)) > 0 &&
			len(h.Updates(UpdateInvitations)) > 0
	}, waitFor, tick)
	h.eventually(t, func(s Snapshot) bool { return s.Connection == ws.StateConnected }, "connected")
}

func TestRunTracksDefaultRoomAndConnects(t *testing.T) {
	h := newHarness(t, "alice")
	h.connect(t)

	h.ch.mu.Lock()
	assert.True(t, h.ch.connected)
	assert.Equal(t, types.Join{Username: "alice", Room: "general"}, h.ch.tracked[0])
	h.ch.mu.Unlock()

	snap := h.snapshot(t)
	assert.Equal(t, "general", snap.CurrentRoom)
	assert.Equal(t, "alice", snap.Username)
	assert.Equal(t, 1, h.q.Calls("messages"))
	require.Eventually(t, func() bool { return h.q.Calls("user-rooms") == 1 }, waitFor, tick)
	h.eventually(t, func(s Snapshot) bool { return s.RoomCreator == "admin" }, "creator resolved")
}

func TestSendMessageAndEcho(t *testing.T) {
	h := newHarness(t, "alice")
	h.connect(t)

	msg, err := h.s.SendMessage("  hi ")
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Text)

	snap := h.snapshot(t)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "alice", snap.Messages[0].Sender)
	assert.Equal(t, "hi", snap.Messages[0].Text)
	assert.Equal(t, types.StatusSent, snap.Messages[0].Status)

	echo := msg
	echo.Status = types.StatusDelivered
	h.ch.events <- types.MessageReceived{Message: echo}
	h.ch.events <- types.MessageStatusUpdated{MessageId: msg.Id, Status: types.StatusDelivered}
	h.eventually(t, func(s Snapshot) bool {
		return len(s.Messages) == 1 && s.Messages[0].Status == types.StatusDelivered
	}, "one delivered entry")

	_, err = h.s.SendMessage("   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestRemoteMessagesAreAcknowledged(t *testing.T) {
	h := newHarness(t, "alice", func(o *Options, _ *fakeQueries) {
		f, err := filter.Compile(filter.DefaultNotify)
		require.NoError(t, err)
		o.Notify = f
	})
	h.connect(t)

	h.ch.events <- types.MessageReceived{Message: types.Message{Id: "m1", Sender: "bob", Room: "general", Text: "yo"}}
	h.ch.events <- types.MessageReceived{Message: types.Message{Id: "m1", Sender: "bob", Room: "general", Text: "yo"}}
	h.ch.events <- types.MessageReceived{Message: types.Message{Id: "m2", Sender: "bob", Room: "tech", Text: "elsewhere"}}
	h.ch.events <- types.MessageStatusUpdated{MessageId: "unknown", Status: types.StatusSeen}

	h.eventually(t, func(s Snapshot) bool { return len(s.Messages) == 1 }, "one message in general")
	require.Eventually(t, func() bool { return len(h.Updates(UpdateNotify)) == 1 }, waitFor, tick)
	assert.Equal(t, "m2", h.Updates(UpdateNotify)[0].Message.Id)

	var seen []types.OutboundEvent
	for _, ev := range h.ch.Emitted() {
		if _, ok := ev.(types.MessageSeen); ok {
			seen = append(seen, ev)
		}
	}
	assert.Equal(t, []types.OutboundEvent{types.MessageSeen{MessageId: "m1", Room: "general", Username: "alice"}}, seen)

	require.NoError(t, h.s.ChangeRoom("tech"))
	require.Eventually(t, func() bool { return h.ch.count(types.EventMessageSeen) == 2 }, waitFor, tick)
}

func TestSwitchingRoomsEmitsLeaveThenJoin(t *testing.T) {
	h := newHarness(t, "alice")
	h.connect(t)
	h.ch.events <- types.TypingUsers{Users: []string{"bob"}}
	h.ch.events <- types.RoomData{Users: []string{"bob", "carol"}}
	h.eventually(t, func(s Snapshot) bool { return len(s.Typing) == 1 && len(s.OnlineUsers) == 2 }, "typing and presence")
	h.ch.Reset()

	require.NoError(t, h.s.ChangeRoom("tech"))
	assert.Equal(t, []types.OutboundEvent{
		types.Leave{Username: "alice", Room: "general"},
		types.Join{Username: "alice", Room: "tech"},
	}, h.ch.roomEvents())

	snap := h.snapshot(t)
	assert.Equal(t, "tech", snap.CurrentRoom)
	assert.Empty(t, snap.Typing)
	assert.Empty(t, snap.OnlineUsers)
	h.eventually(t, func(s Snapshot) bool { return s.RoomCreator == "alice" }, "creator of tech")

	h.ch.mu.Lock()
	assert.Equal(t, types.Join{Username: "alice", Room: "tech"}, h.ch.tracked[len(h.ch.tracked)-1])
	h.ch.mu.Unlock()

	require.NoError(t, h.s.ChangeRoom("tech"))
	assert.Len(t, h.ch.roomEvents(), 2)
}

func TestStaleHistoryIsDropped(t *testing.T) {
	h := newHarness(t, "alice")
	h.connect(t)
	h.q.mu.Lock()
	gate := make(chan struct{})
	h.q.gates["tech"] = gate
	h.q.messages["tech"] = []types.Message{{Id: "t1", Sender: "bob", Room: "tech", Text: "old"}}
	h.q.messages["random"] = []types.Message{{Id: "r1", Sender: "carol", Room: "random", Text: "fresh"}}
	h.q.mu.Unlock()

	require.NoError(t, h.s.ChangeRoom("tech"))
	require.NoError(t, h.s.ChangeRoom("random"))
	h.eventually(t, func(s Snapshot) bool { return len(s.Messages) == 1 && s.Messages[0].Id == "r1" }, "random history")

	close(gate)
	time.Sleep(20 * time.Millisecond)
	history, err := h.s.History("tech")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestDirectMessage(t *testing.T) {
	h := newHarness(t, "bob")
	h.connect(t)

	require.NoError(t, h.s.StartDirectMessage("alice"))
	snap := h.snapshot(t)
	assert.Equal(t, "dm_alice_bob", snap.CurrentRoom)
	assert.Equal(t, "alice", snap.DMPeer)
	assert.Equal(t, "", snap.RoomCreator)

	assert.ErrorIs(t, h.s.StartDirectMessage("bob"), ErrInvalidPeer)
}

func TestNavigateToUnavailableRoomRequestsAccess(t *testing.T) {
	h := newHarness(t, "bob")
	h.connect(t)
	h.ch.Reset()

	switched, err := h.s.Navigate("team")
	require.NoError(t, err)
	assert.False(t, switched)
	switched, err = h.s.Navigate("team")
	require.NoError(t, err)
	assert.False(t, switched)

	assert.Equal(t, []types.OutboundEvent{types.RequestRoomAccess{Username: "bob", RoomName: "team"}}, h.ch.Emitted())
	snap := h.snapshot(t)
	assert.Equal(t, "general", snap.CurrentRoom)
	assert.Len(t, snap.OutboundRequests, 1)
	assert.Equal(t, "team", snap.Requesting)
	h.eventually(t, func(s Snapshot) bool { return s.Requesting == "" }, "indicator cleared")

	_, err = h.s.RequestAccess("tech")
	assert.Error(t, err)

	switched, err = h.s.Navigate("random")
	require.NoError(t, err)
	assert.True(t, switched)
}

func TestAccessApprovalScenario(t *testing.T) {
	bob := newHarness(t, "bob")
	bob.connect(t)
	alice := newHarness(t, "alice")
	alice.connect(t)

	_, err := bob.s.RequestAccess("team")
	require.NoError(t, err)

	alice.ch.events <- types.AccessRequested{RequestId: "r1", Requester: "bob", RoomName: "team"}
	alice.eventually(t, func(s Snapshot) bool { return len(s.InboundRequests) == 1 }, "request arrives")
	require.NoError(t, alice.s.RespondToAccess("r1", true))
	assert.Empty(t, alice.snapshot(t).InboundRequests)
	assert.Equal(t, 1, alice.ch.count(types.EventRespondToRoomAccess))

	bob.q.mu.Lock()
	bob.q.joined = append(bob.q.joined, "team")
	bob.q.mu.Unlock()
	bob.ch.events <- types.AccessResponded{RequestId: "r1", Approved: true, RoomName: "team"}
	bob.eventually(t, func(s Snapshot) bool {
		return s.CurrentRoom == "team" && len(s.OutboundRequests) == 0 && contains(s.Rooms, "team")
	}, "bob joins team")
}

func TestInvitationDeliveredTwice(t *testing.T) {
	h := newHarness(t, "bob")
	h.connect(t)
	h.q.mu.Lock()
	h.q.invitations = []types.Invitation{{Id: "inv1", Room: "project", Inviter: "alice", Status: types.InvitationPending}}
	h.q.mu.Unlock()

	ev := types.InvitationReceived{InvitationId: "inv1", RoomName: "project", Inviter: "alice"}
	h.ch.events <- ev
	h.ch.events <- ev
	require.Eventually(t, func() bool { return h.q.Calls("invitations") >= 3 }, waitFor, tick)
	h.eventually(t, func(s Snapshot) bool { return len(s.Invitations) == 1 && s.Invitations[0].Id == "inv1" }, "one invitation")

	require.NoError(t, h.s.RespondToInvitation("inv1", true))
	snap := h.snapshot(t)
	assert.Equal(t, "project", snap.CurrentRoom)
	assert.Equal(t, types.InvitationAccepted, snap.Invitations[0].Status)
	assert.Equal(t, 1, h.ch.count(types.EventRespondToRoomInvitation))
}

func TestRoomCreatedAndDeleted(t *testing.T) {
	h := newHarness(t, "alice")
	h.connect(t)
	h.q.mu.Lock()
	h.q.joined = append(h.q.joined, "project")
	h.q.rooms["project"] = types.RoomInfo{Name: "project", Creator: "alice", IsPrivate: true}
	h.q.mu.Unlock()

	require.NoError(t, h.s.CreateRoom("project", true))
	assert.Equal(t, 1, h.ch.count(types.EventCreateRoom))
	before := h.q.Calls("user-rooms")
	h.ch.events <- types.RoomCreated{RoomName: "project"}
	h.eventually(t, func(s Snapshot) bool { return s.CurrentRoom == "project" && contains(s.Rooms, "project") }, "switched to project")
	require.Eventually(t, func() bool { return h.q.Calls("user-rooms") > before }, waitFor, tick)

	require.NoError(t, h.s.DeleteRoom(context.Background(), "project"))
	assert.Equal(t, 1, h.ch.count(types.EventDeleteRoom))
	assert.ErrorIs(t, h.s.DeleteRoom(context.Background(), "general"), ErrNotCreator)
	assert.ErrorIs(t, h.s.DeleteRoom(context.Background(), "dm_alice_bob"), ErrNotCreator)

	h.q.mu.Lock()
	h.q.joined = []string{"general"}
	h.q.mu.Unlock()
	h.ch.events <- types.RoomDeleted{RoomName: "project"}
	h.eventually(t, func(s Snapshot) bool { return s.CurrentRoom == "general" && !contains(s.Rooms, "project") }, "back to default room")
}

func TestTypingStopsAfterTimeout(t *testing.T) {
	h := newHarness(t, "alice")
	h.connect(t)

	require.NoError(t, h.s.Typing(true))
	require.NoError(t, h.s.Typing(true))
	require.Eventually(t, func() bool {
		var typing []types.Typing
		for _, ev := range h.ch.Emitted() {
			if ty, ok := ev.(types.Typing); ok {
				typing = append(typing, ty)
			}
		}
		return len(typing) == 2 && typing[0].IsTyping && !typing[1].IsTyping
	}, waitFor, tick)
}

func TestSendCancelsTyping(t *testing.T) {
	h := newHarness(t, "alice")
	h.connect(t)
	h.ch.Reset()

	require.NoError(t, h.s.Typing(true))
	_, err := h.s.SendMessage("hi")
	require.NoError(t, err)

	emitted := h.ch.Emitted()
	require.Len(t, emitted, 3)
	assert.Equal(t, types.Typing{Username: "alice", Room: "general", IsTyping: true}, emitted[0])
	assert.Equal(t, types.Typing{Username: "alice", Room: "general", IsTyping: false}, emitted[1])
	assert.IsType(t, types.SendMessage{}, emitted[2])

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, h.ch.count(types.EventSetTyping))
}

func TestDisconnectMarksPresenceOffline(t *testing.T) {
	h := newHarness(t, "alice")
	h.connect(t)
	h.ch.events <- types.RoomData{Users: []string{"bob"}}
	h.eventually(t, func(s Snapshot) bool { return s.Presence["bob"] == types.Online }, "bob online")

	h.ch.states <- ws.StateChange{State: ws.StateDisconnected, Err: errors.New("eof")}
	h.eventually(t, func(s Snapshot) bool {
		return s.Connection == ws.StateDisconnected && s.Presence["bob"] == types.Offline
	}, "bob offline")
}

func TestAllUsersExcludesSelfAndErrorsSurface(t *testing.T) {
	h := newHarness(t, "alice")
	h.connect(t)
	h.ch.events <- types.AllUsers{Users: []string{"alice", "bob", "carol"}}
	h.ch.events <- types.ServerError{Message: "room full"}
	h.eventually(t, func(s Snapshot) bool { return len(s.AllUsers) == 2 }, "users")
	assert.Equal(t, []string{"bob", "carol"}, h.snapshot(t).AllUsers)
	require.Eventually(t, func() bool { return len(h.Updates(UpdateError)) == 1 }, waitFor, tick)
	assert.Equal(t, "room full", h.Updates(UpdateError)[0].Text)
}

func TestInviteSkipsSelf(t *testing.T) {
	h := newHarness(t, "alice")
	h.connect(t)
	sent, err := h.s.Invite("", []string{"bob", "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, h.ch.count(types.EventInviteUserToRoom))
}

func TestClose(t *testing.T) {
	h := newHarness(t, "alice")
	h.connect(t)

	require.NoError(t, h.s.Close())
	require.NoError(t, h.s.Close())
	assert.NoError(t, <-h.runErr)

	h.ch.mu.Lock()
	assert.Equal(t, 1, h.ch.closed)
	h.ch.mu.Unlock()

	_, err := h.s.Snapshot()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = h.s.SendMessage("hi")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseBeforeRun(t *testing.T) {
	ch := newFakeChannel()
	s, err := New(Options{Username: "alice", DefaultRoom: "general", Logger: hclog.NewNullLogger()}, ch, newFakeQueries())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Run(context.Background()), ErrClosed)
	assert.Equal(t, 1, ch.closed)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{DefaultRoom: "general"}, newFakeChannel(), newFakeQueries())
	assert.Error(t, err)
	_, err = New(Options{Username: "alice"}, newFakeChannel(), newFakeQueries())
	assert.ErrorIs(t, err, ErrEmptyRoomName)
	_, err = New(Options{Username: "alice", DefaultRoom: "general", ResyncSchedule: "not a schedule"}, newFakeChannel(), newFakeQueries())
	assert.Error(t, err)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestReconnectReloadsEverything(t *testing.T) {
	h := newHarness(t, "alice")
	h.connect(t)
	h.q.mu.Lock()
	gate := make(chan struct{})
	h.q.gates["general"] = gate
	h.q.messages["general"] = []types.Message{{Id: "old", Sender: "carol", Room: "general", Text: "earlier"}}
	h.q.mu.Unlock()
	messages := h.q.Calls("messages")
	userRooms := h.q.Calls("user-rooms")
	requests := h.q.Calls("requests")
	invitations := h.q.Calls("invitations")
	allUsers := h.ch.count(types.EventGetAllUsers)

	h.ch.states <- ws.StateChange{State: ws.StateDisconnected, Err: errors.New("dropped")}
	h.ch.states <- ws.StateChange{State: ws.StateConnected}
	require.Eventually(t, func() bool {
		return h.q.Calls("messages") > messages &&
			h.q.Calls("user-rooms") > userRooms &&
			h.q.Calls("requests") > requests &&
			h.q.Calls("invitations") > invitations &&
			h.ch.count(types.EventGetAllUsers) > allUsers
	}, waitFor, tick)

	h.ch.events <- types.MessageReceived{Message: types.Message{Id: "live", Sender: "bob", Room: "general", Text: "while loading"}}
	h.eventually(t, func(s Snapshot) bool { return len(s.Messages) == 1 }, "live message")
	close(gate)
	h.eventually(t, func(s Snapshot) bool {
		return len(s.Messages) == 2 && s.Messages[0].Id == "old" && s.Messages[1].Id == "live"
	}, "history merged with the live message")
	assert.Equal(t, ws.StateConnected, h.snapshot(t).Connection)
}

func TestDeletingDefaultRoomFallsBack(t *testing.T) {
	h := newHarness(t, "alice")
	h.connect(t)
	h.eventually(t, func(s Snapshot) bool { return contains(s.Rooms, "random") }, "directory loaded")
	h.q.mu.Lock()
	h.q.joined = []string{}
	h.q.public = []string{"tech", "random"}
	h.q.mu.Unlock()

	h.ch.events <- types.RoomDeleted{RoomName: "general"}
	h.eventually(t, func(s Snapshot) bool { return s.CurrentRoom == "random" && !contains(s.Rooms, "general") }, "moved to another room")
	assert.Equal(t, []types.OutboundEvent{
		types.Leave{Username: "alice", Room: "general"},
		types.Join{Username: "alice", Room: "random"},
	}, h.ch.roomEvents())
}

func TestDeletingLastRoomLeaves(t *testing.T) {
	h := newHarness(t, "alice", func(o *Options, q *fakeQueries) {
		o.InitialRooms = []string{"general"}
		q.public = []string{}
	})
	h.connect(t)
	h.q.mu.Lock()
	h.q.joined = []string{}
	h.q.mu.Unlock()

	h.ch.events <- types.RoomDeleted{RoomName: "general"}
	h.eventually(t, func(s Snapshot) bool { return s.CurrentRoom == "" }, "left the deleted room")
	assert.Equal(t, []types.OutboundEvent{types.Leave{Username: "alice", Room: "general"}}, h.ch.roomEvents())

	h.ch.mu.Lock()
	assert.Equal(t, types.Join{Username: "alice"}, h.ch.tracked[len(h.ch.tracked)-1])
	h.ch.mu.Unlock()

	_, err := h.s.SendMessage("anyone?")
	assert.ErrorIs(t, err, ErrNoRoom)
	_, err = h.s.Invite("", []string{"bob"})
	assert.ErrorIs(t, err, ErrNoRoom)
}
