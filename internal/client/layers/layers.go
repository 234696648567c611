// Package layers keeps the local layer panel in sync with the raster surfaces.
// Layers are never shared with other room members.
package layers

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/dkeye/Inkroom/internal/client/raster"
	"github.com/dkeye/Inkroom/internal/domain"
)

var (
	ErrLastLayer    = errors.New("cannot remove the last layer")
	ErrUnknownLayer = errors.New("unknown layer")
	ErrEmptyName    = errors.New("layer name empty")
	ErrBadOrder     = errors.New("order must list every layer once")
)

const BaseName = "Background"

// Surfaces is the raster side of the panel.
type Surfaces interface {
	AddLayer(id string) error
	RemoveLayer(id string) error
	SetLayerVisible(id string, visible bool) error
	SetLayerOrder(ids []string) error
}

type Panel struct {
	surfaces Surfaces
	layers   []domain.Layer // bottom first
	active   string
	newID    func() string
}

// New starts with the base layer only.
func New(s Surfaces) *Panel {
	return &Panel{
		surfaces: s,
		layers:   []domain.Layer{{ID: raster.DefaultLayerID, Name: BaseName, Visible: true}},
		active:   raster.DefaultLayerID,
		newID:    uuid.NewString,
	}
}

func (p *Panel) index(id string) int {
	for i, l := range p.layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (p *Panel) renumber() {
	for i := range p.layers {
		p.layers[i].ZOrder = i
	}
}

// Add puts a new layer on top and makes it active.
func (p *Panel) Add(name string) (domain.Layer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Layer %d", len(p.layers))
	}
	l := domain.Layer{ID: p.newID(), Name: name, Visible: true, ZOrder: len(p.layers)}
	if err := p.surfaces.AddLayer(l.ID); err != nil {
		return domain.Layer{}, err
	}
	p.layers = append(p.layers, l)
	p.active = l.ID
	return l, nil
}

func (p *Panel) Remove(id string) error {
	i := p.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, id)
	}
	if len(p.layers) == 1 {
		return ErrLastLayer
	}
	if err := p.surfaces.RemoveLayer(id); err != nil {
		return err
	}
	p.layers = append(p.layers[:i], p.layers[i+1:]...)
	p.renumber()
	if p.active == id {
		p.active = p.layers[max(i-1, 0)].ID
	}
	return nil
}

func (p *Panel) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	i := p.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, id)
	}
	p.layers[i].Name = name
	return nil
}

func (p *Panel) SetVisible(id string, visible bool) error {
	i := p.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, id)
	}
	if err := p.surfaces.SetLayerVisible(id, visible); err != nil {
		return err
	}
	p.layers[i].Visible = visible
	return nil
}

// Reorder applies a full bottom-to-top order. The base layer stays at the
// bottom regardless of its position in ids.
func (p *Panel) Reorder(ids []string) error {
	if len(ids) != len(p.layers) {
		return ErrBadOrder
	}
	rank := make(map[string]int, len(ids))
	for i, id := range ids {
		if p.index(id) < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownLayer, id)
		}
		if _, dup := rank[id]; dup {
			return ErrBadOrder
		}
		rank[id] = i
	}
	rank[raster.DefaultLayerID] = -1
	next := append([]domain.Layer(nil), p.layers...)
	sort.SliceStable(next, func(i, j int) bool { return rank[next[i].ID] < rank[next[j].ID] })
	order := make([]string, len(next))
	for i, l := range next {
		order[i] = l.ID
	}
	if err := p.surfaces.SetLayerOrder(order); err != nil {
		return err
	}
	p.layers = next
	p.renumber()
	return nil
}

// Move shifts a layer up (delta > 0) or down the stack.
func (p *Panel) Move(id string, delta int) error {
	i := p.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, id)
	}
	j := min(max(i+delta, 0), len(p.layers)-1)
	if j == i {
		return nil
	}
	ids := make([]string, 0, len(p.layers))
	for _, l := range p.layers {
		if l.ID != id {
			ids = append(ids, l.ID)
		}
	}
	ids = append(ids[:j], append([]string{id}, ids[j:]...)...)
	return p.Reorder(ids)
}

func (p *Panel) SetActive(id string) error {
	if p.index(id) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, id)
	}
	p.active = id
	return nil
}

func (p *Panel) Active() string { return p.active }

// List returns the layers bottom first.
func (p *Panel) List() []domain.Layer {
	return append([]domain.Layer(nil), p.layers...)
}

