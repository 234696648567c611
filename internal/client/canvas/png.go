package canvas

import (
	"image"
	"image/png"
	"io"
)

var encoder = png.Encoder{CompressionLevel: png.BestSpeed}

func encodePNG(w io.Writer, img image.Image) error {
	return encoder.Encode(w, img)
}
