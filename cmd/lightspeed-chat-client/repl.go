package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tcriess/lightspeed-chat-client/session"
	"github.com/tcriess/lightspeed-chat-client/types"
)

var errUnknownCommand = errors.New("unknown command")

type command struct {
	name string
	args []string
	// text is the raw remainder for commands taking free text
	text string
}

// minArgs lists the REPL commands and how many arguments they need.
var minArgs = map[string]int{
	"say":         1,
	"join":        1,
	"dm":          1,
	"create":      1,
	"private":     1,
	"request":     1,
	"approve":     1,
	"deny":        1,
	"invite":      1,
	"accept":      1,
	"decline":     1,
	"delete":      1,
	"rooms":       0,
	"users":       0,
	"who":         0,
	"requests":    0,
	"invitations": 0,
	"history":     0,
	"typing":      0,
	"help":        0,
	"quit":        0,
}

const helpText = `commands:
  <text>                   send a message to the current room
  /join <room>             switch room (requests access if the room is not available)
  /dm <user>               open the direct message room with user
  /create <room>           create a public room
  /private <room>          create a private room
  /request <room>          request access to a room
  /approve <id>, /deny <id>
  /invite <user>...        invite users to the current room
  /accept <id>, /decline <id>
  /delete <room>           delete a room you created
  /rooms /users /who /requests /invitations /history
  /quit`

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, errUnknownCommand
	}
	if !strings.HasPrefix(line, "/") {
		return command{name: "say", args: []string{line}, text: line}, nil
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return command{}, errUnknownCommand
	}
	name := strings.ToLower(fields[0])
	n, ok := minArgs[name]
	if !ok {
		return command{}, fmt.Errorf("%w: /%s", errUnknownCommand, name)
	}
	c := command{name: name, args: fields[1:]}
	if len(c.args) < n {
		return command{}, fmt.Errorf("/%s needs at least %d argument(s)", name, n)
	}
	if len(c.args) > 0 {
		c.text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line[1:]), fields[0]))
	}
	return c, nil
}

// execute runs c against the session. It reports whether the REPL should stop.
func execute(ctx context.Context, s *session.Session, c command, out io.Writer) (bool, error) {
	switch c.name {
	case "say":
		_, err := s.SendMessage(c.text)
		return false, err
	case "typing":
		return false, s.Typing(true)
	case "join":
		switched, err := s.Navigate(c.args[0])
		if err == nil && !switched {
			fmt.Fprintf(out, "* requested access to #%s\n", c.args[0])
		}
		return false, err
	case "dm":
		return false, s.StartDirectMessage(c.args[0])
	case "create", "private":
		return false, s.CreateRoom(c.args[0], c.name == "private")
	case "request":
		sent, err := s.RequestAccess(c.args[0])
		if err == nil && !sent {
			fmt.Fprintf(out, "* a request for #%s is already pending\n", c.args[0])
		}
		return false, err
	case "approve", "deny":
		return false, s.RespondToAccess(c.args[0], c.name == "approve")
	case "accept", "decline":
		return false, s.RespondToInvitation(c.args[0], c.name == "accept")
	case "invite":
		n, err := s.Invite("", c.args)
		fmt.Fprintf(out, "* sent %d invitation(s)\n", n)
		return false, err
	case "delete":
		return false, s.DeleteRoom(ctx, c.args[0])
	case "help":
		fmt.Fprintln(out, helpText)
		return false, nil
	case "quit":
		return true, nil
	}

	snap, err := s.Snapshot()
	if err != nil {
		return false, err
	}
	switch c.name {
	case "rooms":
		for _, room := range snap.Rooms {
			marker := " "
			if room == snap.CurrentRoom {
				marker = "*"
			}
			fmt.Fprintf(out, "%s #%s\n", marker, room)
		}
	case "users":
		fmt.Fprintln(out, strings.Join(snap.AllUsers, ", "))
	case "who":
		fmt.Fprintf(out, "online in #%s: %s\n", snap.CurrentRoom, strings.Join(snap.OnlineUsers, ", "))
		if len(snap.Typing) > 0 {
			fmt.Fprintf(out, "typing: %s\n", strings.Join(snap.Typing, ", "))
		}
	case "requests":
		for _, req := range snap.InboundRequests {
			fmt.Fprintf(out, "[%s] %s wants to join #%s\n", req.Id, req.Requester, req.Room)
		}
		for _, req := range snap.OutboundRequests {
			fmt.Fprintf(out, "you requested #%s (%s)\n", req.Room, req.Status)
		}
	case "invitations":
		for _, inv := range snap.Invitations {
			fmt.Fprintf(out, "[%s] %s invited you to #%s (%s)\n", inv.Id, inv.Inviter, inv.Room, inv.Status)
		}
	case "history":
		for _, msg := range snap.Messages {
			fmt.Fprintln(out, formatMessage(msg))
		}
	}
	return false, nil
}

func formatMessage(msg types.Message) string {
	ts := msg.Timestamp.Local().Format("15:04:05")
	if msg.Sender == types.SystemSender {
		return fmt.Sprintf("%s #%s * %s", ts, msg.Room, msg.Text)
	}
	return fmt.Sprintf("%s #%s <%s> %s [%s]", ts, msg.Room, msg.Sender, msg.Text, msg.Status)
}
