package domain

import (
	"errors"
	"math"
)

var (
	ErrNoPoints    = errors.New("segment has no points")
	ErrBadWidth    = errors.New("segment width must be positive")
	ErrBadOpacity  = errors.New("segment opacity must be in (0,1]")
	ErrBadCoord    = errors.New("segment point is not finite")
	ErrBadPressure = errors.New("segment pressure must be in [0,1]")
	ErrInvalidTool = errors.New("segment tool is invalid")
)

// Point is a canvas-space sample. Coordinates are zoom independent.
type Point struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Pressure  float64 `json:"p"`
	Timestamp int64   `json:"t"`
}

// StrokeSegment is the atomic network-synchronized unit of a stroke.
type StrokeSegment struct {
	Tool    Tool    `json:"tool"`
	Color   string  `json:"color"`
	Width   float64 `json:"width"`
	Opacity float64 `json:"opacity"`
	Points  []Point `json:"points"`
	LayerID string  `json:"layerId,omitempty"`
}

// Validate checks a segment received from an untrusted peer.
func (s *StrokeSegment) Validate() error {
	if !s.Tool.Valid() {
		return ErrInvalidTool
	}
	if len(s.Points) == 0 {
		return ErrNoPoints
	}
	if !(s.Width > 0) || math.IsInf(s.Width, 0) {
		return ErrBadWidth
	}
	if !(s.Opacity > 0 && s.Opacity <= 1) {
		return ErrBadOpacity
	}
	for _, p := range s.Points {
		if !finite(p.X) || !finite(p.Y) || !finite(p.Pressure) {
			return ErrBadCoord
		}
		if p.Pressure < 0 || p.Pressure > 1 {
			return ErrBadPressure
		}
	}
	return nil
}

// Clone returns a deep copy so log entries never alias caller memory.
func (s StrokeSegment) Clone() StrokeSegment {
	s.Points = append([]Point(nil), s.Points...)
	return s
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
