package presence

import (
	"sort"

	"github.com/tcriess/lightspeed-chat-client/types"
)

// Tracker holds presence and typing for the active room only.
type Tracker struct {
	online   []string
	statuses map[string]types.Presence
	typing   []string
}

func NewTracker() *Tracker {
	return &Tracker{statuses: make(map[string]types.Presence)}
}

// OnRoomData replaces the set of users reported in the room and marks each of them online.
// Users not listed keep whatever status they had.
func (t *Tracker) OnRoomData(users []string) {
	t.online = append([]string{}, users...)
	for _, u := range users {
		t.statuses[u] = types.Online
	}
}

// OnTyping replaces the typing set.
func (t *Tracker) OnTyping(users []string) {
	t.typing = append([]string{}, users...)
}

// Disconnected marks every known user offline.
func (t *Tracker) Disconnected() {
	for u := range t.statuses {
		t.statuses[u] = types.Offline
	}
}

// Reset clears the room scoped state on room change.
func (t *Tracker) Reset() {
	t.online = nil
	t.typing = nil
	t.statuses = make(map[string]types.Presence)
}

func (t *Tracker) Users() []string {
	return append([]string{}, t.online...)
}

func (t *Tracker) Typing() []string {
	return append([]string{}, t.typing...)
}

// Status returns the last known presence of user, offline if unknown.
func (t *Tracker) Status(user string) types.Presence {
	if p, ok := t.statuses[user]; ok {
		return p
	}
	return types.Offline
}

// Statuses returns a copy of all known presence entries.
func (t *Tracker) Statuses() map[string]types.Presence {
	out := make(map[string]types.Presence, len(t.statuses))
	for u, p := range t.statuses {
		out[u] = p
	}
	return out
}

// Online returns the users currently marked online, sorted.
func (t *Tracker) Online() []string {
	var out []string
	for u, p := range t.statuses {
		if p == types.Online {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}
