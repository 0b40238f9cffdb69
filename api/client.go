package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-chat-client/globals"
	"github.com/tcriess/lightspeed-chat-client/types"
)

const defaultTimeout = 10 * time.Second

// StatusError is returned when the authority answers with a non-2xx status.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: http status %d", e.URL, e.Code)
}

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// Timeout bounds each request when the context carries no earlier deadline.
	Timeout time.Duration
	Logger  hclog.Logger
}

// Client issues the idempotent read queries against the authority.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	logger  hclog.Logger
	now     func() time.Time
	newId   func() string
}

func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		base:    base,
		http:    httpClient,
		timeout: timeout,
		logger:  globals.Logger(opts.Logger).Named("api"),
		now:     time.Now,
		newId:   uuid.NewString,
	}, nil
}

// get fetches base/api/<elems...> and unmarshals the JSON body into out.
func (c *Client) get(ctx context.Context, out interface{}, elems ...string) error {
	u := *c.base
	u.Path = path.Join(append([]string{"/", u.Path, "api"}, elems...)...)
	u.RawPath = ""

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, URL: u.String()}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode %s: %w", u.String(), err)
	}
	c.logger.Trace("query", "url", u.String())
	return nil
}

// historyRow accepts both the current and the legacy message layout.
type historyRow struct {
	Id        string    `mapstructure:"id"`
	Sender    string    `mapstructure:"sender"`
	Room      string    `mapstructure:"room"`
	Text      string    `mapstructure:"text"`
	Content   string    `mapstructure:"content"`
	Timestamp time.Time `mapstructure:"timestamp"`
	CreatedAt time.Time `mapstructure:"createdAt"`
	Status    string    `mapstructure:"status"`
	SeenBy    []string  `mapstructure:"seenBy"`
}

// FetchMessages returns the history of room, oldest first as the authority orders it.
func (c *Client) FetchMessages(ctx context.Context, room string) ([]types.Message, error) {
	var raw []interface{}
	if err := c.get(ctx, &raw, "messages", room); err != nil {
		return nil, err
	}
	messages := make([]types.Message, 0, len(raw))
	for _, r := range raw {
		row := historyRow{}
		if err := types.WeakDecode(r, &row); err != nil {
			c.logger.Warn("skipping malformed message", "room", room, "error", err)
			continue
		}
		messages = append(messages, c.normalize(row, room))
	}
	return messages, nil
}

func (c *Client) normalize(row historyRow, room string) types.Message {
	msg := types.Message{
		Id:        row.Id,
		Sender:    row.Sender,
		Room:      row.Room,
		Text:      row.Text,
		Timestamp: row.Timestamp,
		Status:    types.Status(row.Status),
		SeenBy:    row.SeenBy,
	}
	if msg.Id == "" {
		msg.Id = c.newId()
	}
	if msg.Room == "" {
		msg.Room = room
	}
	if msg.Text == "" {
		msg.Text = row.Content
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = row.CreatedAt
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = c.now()
	}
	if !msg.Status.Valid() {
		msg.Status = types.StatusDelivered
	}
	if msg.SeenBy == nil {
		msg.SeenBy = []string{}
	}
	return msg
}

// FetchUserRooms returns the rooms username has joined.
func (c *Client) FetchUserRooms(ctx context.Context, username string) ([]string, error) {
	return c.roomNames(ctx, "user-rooms", username)
}

// FetchPublicRooms returns all public rooms.
func (c *Client) FetchPublicRooms(ctx context.Context) ([]string, error) {
	return c.roomNames(ctx, "rooms")
}

// FetchRoomsWithUser returns the rooms where username is an explicit member.
func (c *Client) FetchRoomsWithUser(ctx context.Context, username string) ([]string, error) {
	return c.roomNames(ctx, "rooms-with-user", username)
}

// roomNames accepts lists of plain names as well as lists of room objects.
func (c *Client) roomNames(ctx context.Context, elems ...string) ([]string, error) {
	var raw []interface{}
	if err := c.get(ctx, &raw, elems...); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(raw))
	for _, r := range raw {
		switch v := r.(type) {
		case string:
			names = append(names, v)
		case map[string]interface{}:
			info := types.RoomInfo{}
			if err := types.WeakDecode(v, &info); err == nil && info.Name != "" {
				names = append(names, info.Name)
			}
		}
	}
	return names, nil
}

type requestRow struct {
	Id        string `mapstructure:"id"`
	Requester string `mapstructure:"requester"`
	Username  string `mapstructure:"username"`
	Room      string `mapstructure:"room"`
	RoomName  string `mapstructure:"roomName"`
	Status    string `mapstructure:"status"`
}

// FetchRoomRequests returns the pending access requests username must act on.
func (c *Client) FetchRoomRequests(ctx context.Context, username string) ([]types.AccessRequest, error) {
	var raw []interface{}
	if err := c.get(ctx, &raw, "room-requests", username); err != nil {
		return nil, err
	}
	requests := make([]types.AccessRequest, 0, len(raw))
	for _, r := range raw {
		row := requestRow{}
		if err := types.WeakDecode(r, &row); err != nil || row.Id == "" {
			c.logger.Warn("skipping malformed access request", "error", err)
			continue
		}
		req := types.AccessRequest{
			Id:        row.Id,
			Requester: firstNonEmpty(row.Requester, row.Username),
			Room:      firstNonEmpty(row.Room, row.RoomName),
			Status:    types.RequestStatus(row.Status),
		}
		if req.Status == "" {
			req.Status = types.RequestPending
		}
		requests = append(requests, req)
	}
	return requests, nil
}

type invitationRow struct {
	Id       string `mapstructure:"id"`
	Room     string `mapstructure:"room"`
	RoomName string `mapstructure:"roomName"`
	Inviter  string `mapstructure:"inviter"`
	From     string `mapstructure:"from"`
	Status   string `mapstructure:"status"`
}

// FetchRoomInvitations returns the invitations addressed to username, in any state.
func (c *Client) FetchRoomInvitations(ctx context.Context, username string) ([]types.Invitation, error) {
	var raw []interface{}
	if err := c.get(ctx, &raw, "room-invitations", username); err != nil {
		return nil, err
	}
	invitations := make([]types.Invitation, 0, len(raw))
	for _, r := range raw {
		row := invitationRow{}
		if err := types.WeakDecode(r, &row); err != nil || row.Id == "" {
			c.logger.Warn("skipping malformed invitation", "error", err)
			continue
		}
		inv := types.Invitation{
			Id:      row.Id,
			Room:    firstNonEmpty(row.Room, row.RoomName),
			Inviter: firstNonEmpty(row.Inviter, row.From),
			Status:  types.InvitationStatus(row.Status),
		}
		if inv.Status == "" {
			inv.Status = types.InvitationPending
		}
		invitations = append(invitations, inv)
	}
	return invitations, nil
}

// FetchRoom returns the metadata of a named room.
func (c *Client) FetchRoom(ctx context.Context, room string) (types.RoomInfo, error) {
	var raw interface{}
	info := types.RoomInfo{}
	if err := c.get(ctx, &raw, "rooms", room); err != nil {
		return info, err
	}
	if err := types.WeakDecode(raw, &info); err != nil {
		return info, err
	}
	if info.Name == "" {
		info.Name = room
	}
	return info, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
