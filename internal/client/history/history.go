// Package history keeps the bounded local undo/redo stack of full canvas
// snapshots. It never talks to the network.
package history

import "github.com/dkeye/Inkroom/internal/domain"

const DefaultCapacity = 50

// Manager is a fixed-capacity ring of snapshots with a cursor. Entries are
// treated as immutable once committed.
type Manager struct {
	capacity int
	entries  []domain.CanvasSnapshot
	// cursor is the number of applied entries; entries[cursor-1] is the
	// current state, or the baseline when cursor is 0.
	cursor  int
	base    domain.CanvasSnapshot
	hasBase bool
	evicted bool
}

func New(capacity int) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Manager{
		capacity: capacity,
		entries:  make([]domain.CanvasSnapshot, 0, capacity),
	}
}

// Reset drops every entry and makes base the state undo returns to.
func (m *Manager) Reset(base domain.CanvasSnapshot) {
	m.entries = m.entries[:0]
	m.cursor = 0
	m.base = base
	m.hasBase = true
	m.evicted = false
}

// Commit records s as the newest state, discarding any redo tail. Over
// capacity the oldest entry is evicted and the baseline becomes unreachable.
func (m *Manager) Commit(s domain.CanvasSnapshot) {
	m.entries = append(m.entries[:m.cursor], s)
	m.cursor++
	if len(m.entries) > m.capacity {
		copy(m.entries, m.entries[1:])
		m.entries[len(m.entries)-1] = domain.CanvasSnapshot{}
		m.entries = m.entries[:len(m.entries)-1]
		m.cursor--
		m.evicted = true
	}
}

func (m *Manager) floor() int {
	if m.hasBase && !m.evicted {
		return 0
	}
	return 1
}

func (m *Manager) CanUndo() bool { return m.cursor > m.floor() }

func (m *Manager) CanRedo() bool { return m.cursor < len(m.entries) }

// Undo steps back and returns the state to show.
func (m *Manager) Undo() (domain.CanvasSnapshot, bool) {
	if !m.CanUndo() {
		return domain.CanvasSnapshot{}, false
	}
	m.cursor--
	if m.cursor == 0 {
		return m.base, true
	}
	return m.entries[m.cursor-1], true
}

// Redo re-applies the next undone state.
func (m *Manager) Redo() (domain.CanvasSnapshot, bool) {
	if !m.CanRedo() {
		return domain.CanvasSnapshot{}, false
	}
	m.cursor++
	return m.entries[m.cursor-1], true
}

// Len is the number of retained entries, not counting the baseline.
func (m *Manager) Len() int { return len(m.entries) }

func (m *Manager) Cursor() int { return m.cursor }
