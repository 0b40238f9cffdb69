package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-chat-client/globals"
	"github.com/tcriess/lightspeed-chat-client/types"
)

// Policy decides how a status update is applied to an existing entry.
type Policy int

const (
	// Monotonic applies an update only if it does not move the status backwards.
	Monotonic Policy = iota
	// Overwrite applies every update as received.
	Overwrite
)

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "monotonic":
		return Monotonic, nil
	case "overwrite":
		return Overwrite, nil
	}
	return Monotonic, fmt.Errorf("unknown status policy %q", s)
}

// Emitter forwards outbound events to the authority.
type Emitter interface {
	Emit(types.OutboundEvent) error
}

type roomLog struct {
	messages []types.Message
	index    map[string]int
}

func newRoomLog() *roomLog {
	return &roomLog{index: make(map[string]int)}
}

func (r *roomLog) append(msg types.Message) {
	r.index[msg.Id] = len(r.messages)
	r.messages = append(r.messages, msg)
}

// Ledger is the per-room ordered message log. Every id has at most one entry across all
// rooms. It is not safe for concurrent use; the session loop owns it.
type Ledger struct {
	self   string
	policy Policy
	logger hclog.Logger

	rooms   map[string]*roomLog
	where   map[string]string   // message id -> room
	local   map[string]struct{} // ids created by SendLocal
	unacked map[string][]string // room -> remote message ids not yet acknowledged as seen

	newId func() string
	now   func() time.Time
}

func New(self string, policy Policy, logger hclog.Logger) *Ledger {
	return &Ledger{
		self:    self,
		policy:  policy,
		logger:  globals.Logger(logger).Named("ledger"),
		rooms:   make(map[string]*roomLog),
		where:   make(map[string]string),
		local:   make(map[string]struct{}),
		unacked: make(map[string][]string),
		newId:   uuid.NewString,
		now:     time.Now,
	}
}

func (l *Ledger) room(name string) *roomLog {
	r, ok := l.rooms[name]
	if !ok {
		r = newRoomLog()
		l.rooms[name] = r
	}
	return r
}

func (l *Ledger) entry(id string) (*roomLog, int, bool) {
	name, ok := l.where[id]
	if !ok {
		return nil, 0, false
	}
	r := l.rooms[name]
	i, ok := r.index[id]
	return r, i, ok
}

// SendLocal appends a new pending message to the log of room and then hands it to the
// emitter. The entry is in the log before Emit is called; it becomes sent once Emit
// succeeds and stays pending otherwise.
func (l *Ledger) SendLocal(emitter Emitter, text, room string) (types.Message, error) {
	msg := types.Message{
		Id:        l.newId(),
		Sender:    l.self,
		Room:      room,
		Text:      text,
		Timestamp: l.now(),
		Status:    types.StatusPending,
		SeenBy:    []string{},
	}
	r := l.room(room)
	r.append(msg)
	l.where[msg.Id] = room
	l.local[msg.Id] = struct{}{}

	out := msg.Clone()
	out.Status = types.StatusSent
	if err := emitter.Emit(types.SendMessage{Message: out}); err != nil {
		l.logger.Warn("message not handed to the channel", "id", msg.Id, "room", room, "error", err)
		return msg.Clone(), err
	}
	r.messages[r.index[msg.Id]].Status = types.StatusSent
	return out, nil
}

// OnRemoteMessage merges a message pushed by the authority. Echoes of our own sends are
// dropped, except for system messages. It reports whether a new entry was appended.
func (l *Ledger) OnRemoteMessage(msg types.Message) bool {
	if msg.Sender == l.self && msg.Sender != types.SystemSender {
		l.logger.Trace("suppressing echo", "id", msg.Id)
		return false
	}
	if msg.Id == "" {
		msg.Id = l.newId()
	}
	if !msg.Status.Valid() {
		msg.Status = types.StatusDelivered
	}
	if msg.SeenBy == nil {
		msg.SeenBy = []string{}
	}
	if r, i, ok := l.entry(msg.Id); ok {
		cur := r.messages[i]
		if l.accepts(cur.Status, msg.Status) {
			cur.Status = msg.Status
			cur.SeenBy = append([]string{}, msg.SeenBy...)
		}
		if msg.Text != "" {
			cur.Text = msg.Text
		}
		r.messages[i] = cur
		return false
	}
	l.room(msg.Room).append(msg.Clone())
	l.where[msg.Id] = msg.Room
	if msg.Sender != l.self {
		l.unacked[msg.Room] = append(l.unacked[msg.Room], msg.Id)
	}
	return true
}

// OnStatusUpdate applies a status (and, if non-nil, seenBy) to the entry with id.
// Unknown ids are ignored. It reports whether the entry changed.
func (l *Ledger) OnStatusUpdate(id string, status types.Status, seenBy []string) bool {
	r, i, ok := l.entry(id)
	if !ok {
		l.logger.Debug("status update for unknown message", "id", id, "status", status)
		return false
	}
	cur := r.messages[i]
	if !status.Valid() || !l.accepts(cur.Status, status) {
		l.logger.Debug("ignoring status update", "id", id, "current", cur.Status, "status", status)
		return false
	}
	cur.Status = status
	if seenBy != nil {
		cur.SeenBy = append([]string{}, seenBy...)
	}
	r.messages[i] = cur
	return true
}

func (l *Ledger) accepts(cur, next types.Status) bool {
	if l.policy == Overwrite {
		return next.Valid()
	}
	return next.Rank() >= cur.Rank()
}

// Load replaces the log of room with history fetched from the authority. Entries the
// history does not contain yet (our own sends, and messages that arrived while the fetch
// was in flight) are kept after it. A history row whose id is logged under another room
// moves to room.
func (l *Ledger) Load(room string, history []types.Message) {
	prev := l.rooms[room]
	r := newRoomLog()
	for _, msg := range history {
		msg.Room = room
		if _, dup := r.index[msg.Id]; dup {
			continue
		}
		if !msg.Status.Valid() {
			msg.Status = types.StatusDelivered
		}
		if pr, pi, ok := l.entry(msg.Id); ok {
			cur := pr.messages[pi]
			if !l.accepts(cur.Status, msg.Status) {
				msg.Status = cur.Status
				msg.SeenBy = cur.SeenBy
			}
			if pr != prev {
				l.detach(l.where[msg.Id], msg.Id)
			}
		}
		r.append(msg.Clone())
	}
	if prev != nil {
		for _, msg := range prev.messages {
			if _, ok := r.index[msg.Id]; !ok {
				r.append(msg)
			}
		}
	}
	for _, msg := range r.messages {
		l.where[msg.Id] = room
	}
	l.rooms[room] = r
}

// detach removes the entry with id from the log of room.
func (l *Ledger) detach(room, id string) {
	r, ok := l.rooms[room]
	if !ok {
		return
	}
	i, ok := r.index[id]
	if !ok {
		return
	}
	r.messages = append(r.messages[:i], r.messages[i+1:]...)
	delete(r.index, id)
	for j := i; j < len(r.messages); j++ {
		r.index[r.messages[j].Id] = j
	}
	unacked := l.unacked[room][:0]
	for _, u := range l.unacked[room] {
		if u != id {
			unacked = append(unacked, u)
		}
	}
	l.unacked[room] = unacked
}

// TakeUnacked returns the ids of remote messages in room that have not been
// acknowledged yet and forgets them.
func (l *Ledger) TakeUnacked(room string) []string {
	ids := l.unacked[room]
	delete(l.unacked, room)
	return ids
}

// Messages returns a copy of the log of room.
func (l *Ledger) Messages(room string) []types.Message {
	r, ok := l.rooms[room]
	if !ok {
		return []types.Message{}
	}
	out := make([]types.Message, 0, len(r.messages))
	for _, msg := range r.messages {
		out = append(out, msg.Clone())
	}
	return out
}

// Get returns a copy of the entry with id.
func (l *Ledger) Get(id string) (types.Message, bool) {
	r, i, ok := l.entry(id)
	if !ok {
		return types.Message{}, false
	}
	return r.messages[i].Clone(), true
}

// Len returns the number of entries across all rooms.
func (l *Ledger) Len() int {
	return len(l.where)
}

// Forget drops the log of a deleted room.
func (l *Ledger) Forget(room string) {
	r, ok := l.rooms[room]
	if !ok {
		return
	}
	for _, msg := range r.messages {
		delete(l.where, msg.Id)
		delete(l.local, msg.Id)
	}
	delete(l.rooms, room)
	delete(l.unacked, room)
}
