package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory keeps drawings in process. It backs tests and single-node setups.
type Memory struct {
	mu       sync.RWMutex
	drawings map[string]Drawing
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		drawings: make(map[string]Drawing),
		now:      time.Now,
	}
}

func (m *Memory) Save(_ context.Context, d Drawing) (string, error) {
	if err := prepare(&d, m.now()); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	} else if _, ok := m.drawings[d.ID]; !ok {
		return "", ErrNotFound
	}
	d.Image = append([]byte(nil), d.Image...)
	m.drawings[d.ID] = d
	return d.ID, nil
}

func (m *Memory) Get(_ context.Context, id string) (Drawing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drawings[id]
	if !ok {
		return Drawing{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) Load(ctx context.Context, id string) ([]byte, error) {
	d, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), d.Image...), nil
}

func (m *Memory) List(_ context.Context, userID string) ([]DrawingInfo, error) {
	m.mu.RLock()
	out := make([]DrawingInfo, 0)
	for _, d := range m.drawings {
		if d.UserID == userID {
			out = append(out, d.Info())
		}
	}
	m.mu.RUnlock()
	sortInfos(out)
	return out, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drawings[id]; !ok {
		return ErrNotFound
	}
	delete(m.drawings, id)
	return nil
}

// sortInfos orders newest first, then by id for a stable listing.
func sortInfos(infos []DrawingInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].UpdatedAt.Equal(infos[j].UpdatedAt) {
			return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
		}
		return infos[i].ID < infos[j].ID
	})
}
