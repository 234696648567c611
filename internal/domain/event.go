package domain

type EventKind string

const (
	EventDraw  EventKind = "draw"
	EventClear EventKind = "clear"
)

// DrawEvent is one sequenced entry of a room's accumulated state.
type DrawEvent struct {
	RoomID   RoomID         `json:"roomId"`
	Origin   ConnID         `json:"origin"`
	Sequence uint64         `json:"sequence"`
	Kind     EventKind      `json:"kind"`
	Segment  *StrokeSegment `json:"segment,omitempty"`
}
