// Package protocol defines the JSON frames exchanged over the signal socket.
// Every frame is an object with a "type" discriminator.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/Inkroom/internal/domain"
)

// Client → server.
const (
	TypeJoin   = "join"
	TypeLeave  = "leave"
	TypeDraw   = "draw"
	TypeClear  = "clear"
	TypePing   = "ping"
	TypeWhoAmI = "whoami"
	TypeRename = "rename"
)

// Server → client.
const (
	TypeRoomState     = "room_state"
	TypeUserJoined    = "user-joined"
	TypeUserLeft      = "user-left"
	TypeCanvasCleared = "canvas-cleared"
	TypePong          = "pong"
	TypeLeft          = "left"
	TypeError         = "error"
)

// Error codes.
const (
	ErrBadPayload  = "bad_payload"
	ErrBadRoom     = "bad_room"
	ErrBadSegment  = "bad_segment"
	ErrRateLimited = "rate_limited"
	ErrBadName     = "invalid_name"
	ErrJoinFailed  = "join_failed"
)

type Envelope struct {
	Type string `json:"type"`
}

type Join struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Name string `json:"name,omitempty"`
}

type Leave struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type Draw struct {
	Type    string                `json:"type"`
	Room    string                `json:"room"`
	Segment *domain.StrokeSegment `json:"segment"`
}

type Rename struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type Clear struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

// RoomState is the late-join replay: every event since the last clear.
type RoomState struct {
	Type     string             `json:"type"`
	Room     domain.RoomID      `json:"room"`
	Events   []domain.DrawEvent `json:"events"`
	Sequence uint64             `json:"sequence"`
	Count    int                `json:"count"`
}

type Relayed struct {
	Type  string           `json:"type"`
	Event domain.DrawEvent `json:"event"`
}

type Presence struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Cleared goes to every member. Own marks the copy sent back to the member
// that asked for the clear.
type Cleared struct {
	Type     string        `json:"type"`
	Room     domain.RoomID `json:"room"`
	Sequence uint64        `json:"sequence"`
	Own      bool          `json:"own,omitempty"`
}

type WhoAmI struct {
	Type     string        `json:"type"`
	Username string        `json:"username"`
	Room     domain.RoomID `json:"room,omitempty"`
}

type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Decode reads the type discriminator of a raw frame.
func Decode(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}

// Encode marshals any frame. Frames built from this package never fail to
// marshal, so callers in hot paths may use MustEncode.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func MustEncode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func NewRoomState(room domain.RoomID, events []domain.DrawEvent, seq uint64, count int) RoomState {
	if events == nil {
		events = []domain.DrawEvent{}
	}
	return RoomState{Type: TypeRoomState, Room: room, Events: events, Sequence: seq, Count: count}
}

func NewRelayed(ev domain.DrawEvent) Relayed {
	return Relayed{Type: TypeDraw, Event: ev}
}

func NewPresence(typ string, count int) Presence {
	return Presence{Type: typ, Count: count}
}

func NewCleared(room domain.RoomID, seq uint64) Cleared {
	return Cleared{Type: TypeCanvasCleared, Room: room, Sequence: seq}
}

func NewError(code string) Error {
	return Error{Type: TypeError, Error: code}
}
