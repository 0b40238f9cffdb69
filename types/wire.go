package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// ErrUnknownEvent is returned for an event name outside the known set.
var ErrUnknownEvent = errors.New("unknown event")

// JSON-serialized WebsocketMessage is what is actually sent via the Websocket connection
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WireEvent wraps a named event so that it marshals into a WebsocketMessage.
type WireEvent struct {
	Named
}

func (e WireEvent) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.Named)
	if err != nil {
		return nil, err
	}
	m := WebsocketMessage{
		Event: e.EventName(),
		Data:  data,
	}
	return json.Marshal(m)
}

// Encode serializes an event (either direction) into its wire form.
func Encode(ev Named) ([]byte, error) {
	return json.Marshal(WireEvent{Named: ev})
}

var inboundDecoders = map[string]func(json.RawMessage) (InboundEvent, error){
	EventMessage:                decodeInbound[MessageReceived],
	EventMessageUpdated:         decodeInbound[MessageUpdated],
	EventMessageStatusUpdate:    decodeInbound[MessageStatusUpdated],
	EventRoomData:               decodeInbound[RoomData],
	EventTyping:                 decodeInbound[TypingUsers],
	EventRoomCreated:            decodeInbound[RoomCreated],
	EventAvailableRooms:         decodeInbound[AvailableRooms],
	EventRoomAccessRequest:      decodeInbound[AccessRequested],
	EventRoomAccessResponse:     decodeInbound[AccessResponded],
	EventRoomInvitation:         decodeInbound[InvitationReceived],
	EventRoomInvitationResponse: decodeInbound[InvitationResponded],
	EventAllUsers:               decodeInbound[AllUsers],
	EventError:                  decodeInbound[ServerError],
	EventRoomDeleted:            decodeInbound[RoomDeleted],
	EventRoomDeleteSuccess:      decodeInbound[RoomDeleteSucceeded],
}

var outboundDecoders = map[string]func(json.RawMessage) (OutboundEvent, error){
	EventJoin:                    decodeOutbound[Join],
	EventLeave:                   decodeOutbound[Leave],
	EventSendMessage:             decodeOutbound[SendMessage],
	EventMessageSeen:             decodeOutbound[MessageSeen],
	EventSetTyping:               decodeOutbound[Typing],
	EventCreateRoom:              decodeOutbound[CreateRoom],
	EventRequestRoomAccess:       decodeOutbound[RequestRoomAccess],
	EventRespondToRoomAccess:     decodeOutbound[RespondToRoomAccess],
	EventInviteUserToRoom:        decodeOutbound[InviteUserToRoom],
	EventRespondToRoomInvitation: decodeOutbound[RespondToRoomInvitation],
	EventDeleteRoom:              decodeOutbound[DeleteRoom],
	EventGetAllUsers:             decodeOutbound[GetAllUsers],
}

// DecodeInbound parses a raw websocket frame sent by the authority. Frames naming an
// event outside the inbound set yield an error wrapping ErrUnknownEvent.
func DecodeInbound(raw []byte) (InboundEvent, error) {
	message := WebsocketMessage{}
	if err := json.Unmarshal(raw, &message); err != nil {
		return nil, err
	}
	decode, ok := inboundDecoders[message.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, message.Event)
	}
	ev, err := decode(message.Data)
	if err != nil {
		return nil, fmt.Errorf("could not decode %s event: %w", message.Event, err)
	}
	return ev, nil
}

// DecodeOutbound parses a raw frame sent by a client. The authority side of the
// protocol (and tests standing in for it) use it.
func DecodeOutbound(raw []byte) (OutboundEvent, error) {
	message := WebsocketMessage{}
	if err := json.Unmarshal(raw, &message); err != nil {
		return nil, err
	}
	decode, ok := outboundDecoders[message.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, message.Event)
	}
	ev, err := decode(message.Data)
	if err != nil {
		return nil, fmt.Errorf("could not decode %s event: %w", message.Event, err)
	}
	return ev, nil
}

func decodeInbound[T InboundEvent](data json.RawMessage) (InboundEvent, error) {
	var ev T
	if err := DecodeData(data, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeOutbound[T OutboundEvent](data json.RawMessage) (OutboundEvent, error) {
	var ev T
	if err := DecodeData(data, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// DecodeData weakly decodes a JSON payload into out. Numbers and strings are converted
// where the target type asks for it, and timestamps may be RFC 3339 strings or unix
// milliseconds.
func DecodeData(data json.RawMessage, out interface{}) error {
	var raw interface{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	if raw == nil {
		return nil
	}
	return WeakDecode(raw, out)
}

// WeakDecode decodes an already unmarshalled JSON value into out.
func WeakDecode(in interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(timeHook),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(in)
}

var timeType = reflect.TypeOf(time.Time{})

func timeHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != timeType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		if v == "" {
			return time.Time{}, nil
		}
		return time.Parse(time.RFC3339, v)
	case float64:
		return time.UnixMilli(int64(v)), nil
	case int64:
		return time.UnixMilli(v), nil
	}
	return data, nil
}
