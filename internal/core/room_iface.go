package core

import (
	"errors"

	"github.com/dkeye/Inkroom/internal/domain"
	"github.com/dkeye/Inkroom/internal/protocol"
)

var (
	// ErrRoomClosed is returned by a room that lost its last member.
	// Callers fetch a fresh room from the manager and retry.
	ErrRoomClosed = errors.New("room closed")
	ErrNotMember  = errors.New("not a room member")
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
}

// JoinResult is what a joiner observed inside the room's critical section.
type JoinResult struct {
	State  protocol.RoomState
	Count  int
	Rejoin bool
}

// LeaveResult reports the membership left behind.
type LeaveResult struct {
	Count     int
	Destroyed bool
}

// RoomService is the core-facing API of a room.
// Every mutation is serialized by the room's own lock; rooms never share one.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO
	Sequence() uint64
	Closed() bool

	Join(sid SessionID, ms MemberSession) (JoinResult, error)
	Leave(sid SessionID) (LeaveResult, error)
	Draw(from SessionID, seg domain.StrokeSegment) (domain.DrawEvent, PublishResult, error)
	Clear(from SessionID) (uint64, PublishResult, error)
	// Replay returns the accumulated events since the last clear.
	Replay() ([]domain.DrawEvent, uint64)
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"count"`
	Sequence    uint64        `json:"sequence"`
}

type RoomManager interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	Len() int
}
