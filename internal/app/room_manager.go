package app

import (
	"sync"
	"time"

	"github.com/dkeye/Inkroom/internal/core"
	"github.com/dkeye/Inkroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManagerImpl is the in-memory room table. A room is present exactly
// while it has members: the room removes itself from the table inside the
// critical section that removes its last member.
type RoomManagerImpl struct {
	mu      sync.RWMutex
	rooms   map[domain.RoomID]core.RoomService
	metrics *Metrics
}

func NewRoomManager(m *Metrics) *RoomManagerImpl {
	return &RoomManagerImpl{
		rooms:   make(map[domain.RoomID]core.RoomService),
		metrics: m,
	}
}

func (f *RoomManagerImpl) Get(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	if !ok || room.Closed() {
		return nil, false
	}
	return room, true
}

// GetOrCreate never returns a room that was already closed when looked up;
// a closed room still in the table is replaced.
func (f *RoomManagerImpl) GetOrCreate(id domain.RoomID) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok && !room.Closed() {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok && !room.Closed() {
		return room
	}
	room = core.NewRoomService(&domain.Room{ID: id, CreatedAt: time.Now()}, f.remove)
	f.rooms[id] = room
	f.metrics.roomsActive.Set(float64(len(f.rooms)))
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return room
}

// remove is the room's onEmpty hook. It runs under the room's lock, so the
// lock order is always room → table.
func (f *RoomManagerImpl) remove(room core.RoomService) {
	id := room.Room().ID
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.rooms[id]; ok && cur == room {
		delete(f.rooms, id)
	}
	f.metrics.roomsActive.Set(float64(len(f.rooms)))
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room removed")
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	rooms := make([]core.RoomService, 0, len(f.rooms))
	for _, r := range f.rooms {
		rooms = append(rooms, r)
	}
	f.mu.RUnlock()

	out := make([]core.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		if r.Closed() {
			continue
		}
		out = append(out, core.RoomInfo{ID: r.Room().ID, MemberCount: r.MemberCount(), Sequence: r.Sequence()})
	}
	return out
}

func (f *RoomManagerImpl) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rooms)
}
