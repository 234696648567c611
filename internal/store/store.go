// Package store persists finished drawings. It is only touched at explicit
// save points, never on the realtime path.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/dkeye/Inkroom/internal/config"
)

var (
	ErrNotFound   = errors.New("drawing not found")
	ErrNoImage    = errors.New("drawing has no image")
	ErrNoOwner    = errors.New("drawing has no owner")
	ErrBadBackend = errors.New("unknown store backend")
)

// Drawing is one saved canvas. Image holds the flattened PNG.
type Drawing struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Tags      []string  `json:"tags,omitempty"`
	IsPublic  bool      `json:"isPublic"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Image     []byte    `json:"image"`
	Thumbnail []byte    `json:"thumbnail,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DrawingInfo is the listing view of a drawing, without the full image.
type DrawingInfo struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Tags      []string  `json:"tags,omitempty"`
	IsPublic  bool      `json:"isPublic"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Thumbnail []byte    `json:"thumbnail,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (d Drawing) Info() DrawingInfo {
	return DrawingInfo{
		ID:        d.ID,
		UserID:    d.UserID,
		Title:     d.Title,
		Tags:      d.Tags,
		IsPublic:  d.IsPublic,
		Width:     d.Width,
		Height:    d.Height,
		Thumbnail: d.Thumbnail,
		UpdatedAt: d.UpdatedAt,
	}
}

func (d Drawing) MarshalBinary() ([]byte, error) {
	return json.Marshal(d)
}

func (d *Drawing) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, d)
}

func (i DrawingInfo) MarshalBinary() ([]byte, error) {
	return json.Marshal(i)
}

func (i *DrawingInfo) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, i)
}

// DrawingStore is implemented by every backend. Save with an empty ID
// creates a drawing and returns its new ID; otherwise it replaces the
// existing one.
type DrawingStore interface {
	Save(ctx context.Context, d Drawing) (string, error)
	Load(ctx context.Context, id string) ([]byte, error)
	Get(ctx context.Context, id string) (Drawing, error)
	List(ctx context.Context, userID string) ([]DrawingInfo, error)
	Delete(ctx context.Context, id string) error
}

// prepare validates d and fills the derived fields shared by all backends.
func prepare(d *Drawing, now time.Time) error {
	if d.UserID == "" {
		return ErrNoOwner
	}
	if len(d.Image) == 0 {
		return ErrNoImage
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(d.Image))
	if err != nil {
		return fmt.Errorf("decode drawing image: %w", err)
	}
	d.Width, d.Height = cfg.Width, cfg.Height
	d.Tags = normalizeTags(d.Tags)
	if len(d.Thumbnail) == 0 {
		thumb, err := Thumbnail(d.Image, ThumbnailWidth)
		if err != nil {
			return err
		}
		d.Thumbnail = thumb
	}
	d.UpdatedAt = now
	return nil
}

// normalizeTags trims tags and drops empty and repeated ones, keeping order.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.Store) (DrawingStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(ctx, cfg.Redis)
	case "s3":
		return NewS3(cfg.S3), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadBackend, cfg.Backend)
	}
}
