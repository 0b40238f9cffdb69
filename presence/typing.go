package presence

import (
	"time"

	"github.com/tcriess/lightspeed-chat-client/types"
)

// AfterFunc schedules fn to run after d on the owner's loop and returns a func that
// cancels it.
type AfterFunc func(d time.Duration, fn func()) (stop func())

// Typing debounces the local typing indicator: the first keystroke emits a start, and a
// stop follows once no keystroke arrived for the timeout.
type Typing struct {
	timeout time.Duration
	after   AfterFunc
	emit    func(types.Typing)

	username string
	room     string
	active   bool
	stop     func()
}

func NewTyping(username string, timeout time.Duration, after AfterFunc, emit func(types.Typing)) *Typing {
	return &Typing{
		timeout:  timeout,
		after:    after,
		emit:     emit,
		username: username,
	}
}

// Keystroke records input in room. It emits a start if not already typing and restarts
// the stop timer.
func (t *Typing) Keystroke(room string) {
	if t.active && t.room != room {
		t.Cancel()
	}
	if !t.active {
		t.active = true
		t.room = room
		t.emit(types.Typing{Username: t.username, Room: room, IsTyping: true})
	}
	if t.stop != nil {
		t.stop()
	}
	t.stop = t.after(t.timeout, t.expire)
}

func (t *Typing) expire() {
	t.stop = nil
	t.Cancel()
}

// Cancel stops the timer and, if typing, emits a stop for the room typed in.
func (t *Typing) Cancel() {
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
	if !t.active {
		return
	}
	t.active = false
	t.emit(types.Typing{Username: t.username, Room: t.room, IsTyping: false})
}

// Active reports whether a start was emitted without a matching stop.
func (t *Typing) Active() bool {
	return t.active
}
