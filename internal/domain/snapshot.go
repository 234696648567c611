package domain

// LayerPixels is the RGBA buffer of one layer.
type LayerPixels struct {
	LayerID string
	Pix     []byte
}

// CanvasSnapshot is a full raster capture plus a sequence watermark.
type CanvasSnapshot struct {
	Width     int
	Height    int
	Layers    []LayerPixels
	Watermark uint64
}

// Equal reports a bit-for-bit match.
func (s CanvasSnapshot) Equal(o CanvasSnapshot) bool {
	if s.Width != o.Width || s.Height != o.Height || len(s.Layers) != len(o.Layers) {
		return false
	}
	for i := range s.Layers {
		a, b := s.Layers[i], o.Layers[i]
		if a.LayerID != b.LayerID || string(a.Pix) != string(b.Pix) {
			return false
		}
	}
	return true
}
