package types

import "time"

// Status is the delivery state of a chat message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
)

// Rank orders the statuses pending < sent < delivered < seen. Unknown statuses rank -1.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusSeen:
		return 3
	}
	return -1
}

func (s Status) Valid() bool {
	return s.Rank() >= 0
}

// SystemSender is the handle the authority uses for its own announcements.
const SystemSender = "admin"

// Message is a chat message as it travels over the wire and as it is kept in the ledger.
type Message struct {
	Id        string    `json:"id" mapstructure:"id"`
	Sender    string    `json:"sender" mapstructure:"sender"`
	Room      string    `json:"room" mapstructure:"room"`
	Text      string    `json:"text" mapstructure:"text"`
	Timestamp time.Time `json:"timestamp" mapstructure:"timestamp"`
	Status    Status    `json:"status" mapstructure:"status"`
	SeenBy    []string  `json:"seenBy" mapstructure:"seenBy"`
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	c := m
	c.SeenBy = append([]string{}, m.SeenBy...)
	return c
}
