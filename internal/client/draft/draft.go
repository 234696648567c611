// Package draft periodically saves the canvas, falling back to a local copy
// when the drawing store cannot be reached.
package draft

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Inkroom/internal/store"
)

const DefaultInterval = 30 * time.Second

var ErrNoSource = errors.New("draft has no source")

// Source is what gets saved. Composite must return a copy that stays valid
// without holding the source's lock.
type Source interface {
	Version() uint64
	Composite() image.Image
}

type Store interface {
	Save(ctx context.Context, d store.Drawing) (string, error)
}

// Result reports where a draft ended up.
type Result struct {
	Cloud bool
	Local bool
	ID    string
	Path  string
	Err   error
}

type Saver struct {
	Source Source
	// Store may be nil to keep drafts local only.
	Store    Store
	UserID   string
	Title    string
	Tags     []string
	Public   bool
	Dir      string
	Interval time.Duration

	// mu serializes saves; it is never the canvas lock.
	mu      sync.Mutex
	id      string
	version uint64
	// synced is set while the store holds version.
	synced bool
	local  []byte
}

// Run saves on every tick where the source changed or the last upload
// failed, until ctx is done.
func (s *Saver) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !s.dirty() {
				continue
			}
			res := s.SaveNow(ctx)
			if res.Err != nil && !res.Local {
				log.Error().Err(res.Err).Str("module", "client.draft").Msg("auto-save lost")
			}
		}
	}
}

func (s *Saver) dirty() bool {
	if s.Source == nil {
		return false
	}
	v := s.Source.Version()
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.synced || v != s.version
}

// SaveNow encodes the current canvas and uploads it.
func (s *Saver) SaveNow(ctx context.Context) Result {
	if s.Source == nil {
		return Result{Err: ErrNoSource}
	}
	v := s.Source.Version()
	img := s.Source.Composite()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Result{Err: fmt.Errorf("encode draft: %w", err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.Store == nil {
		err = errors.New("no drawing store")
	} else {
		var id string
		id, err = s.upload(ctx, buf.Bytes())
		if err == nil {
			s.id = id
			s.version, s.synced = v, true
			s.local = nil
			log.Debug().Str("module", "client.draft").Str("id", id).Uint64("version", v).Msg("draft saved")
			return Result{Cloud: true, ID: id}
		}
	}

	log.Warn().Err(err).Str("module", "client.draft").Str("user", s.UserID).Msg("cloud save failed, keeping local draft")
	s.local = buf.Bytes()
	s.version, s.synced = v, false
	res := Result{Local: true, ID: s.id, Err: err}
	if s.Dir != "" {
		path, werr := s.writeFile(buf.Bytes())
		if werr != nil {
			log.Error().Err(werr).Str("module", "client.draft").Str("dir", s.Dir).Msg("write local draft")
			res.Err = errors.Join(err, werr)
		}
		res.Path = path
	}
	return res
}

func (s *Saver) upload(ctx context.Context, img []byte) (string, error) {
	d := store.Drawing{
		ID:       s.id,
		UserID:   s.UserID,
		Title:    s.Title,
		Tags:     s.Tags,
		IsPublic: s.Public,
		Image:    img,
	}
	id, err := s.Store.Save(ctx, d)
	if errors.Is(err, store.ErrNotFound) && d.ID != "" {
		// The saved draft was deleted elsewhere; start a new one.
		d.ID = ""
		id, err = s.Store.Save(ctx, d)
	}
	return id, err
}

func (s *Saver) writeFile(data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	name := "draft.png"
	if s.UserID != "" {
		name = s.UserID + "-draft.png"
	}
	path := filepath.Join(s.Dir, name)
	tmp, err := os.CreateTemp(s.Dir, name+".*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}

// Local returns the last draft that could only be kept locally.
func (s *Saver) Local() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// ID is the store id of the draft once it has been uploaded.
func (s *Saver) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}
