package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// prepareImageForSubmission normalizes an image for the reconstruction
// service: scaled down so neither dimension exceeds maxDim (never
// scaled up), alpha flattened to an opaque 3-channel image, re-encoded
// as PNG.
func prepareImageForSubmission(data []byte, maxDim int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode submission image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("submission image has empty bounds")
	}

	if w > maxDim || h > maxDim {
		if w >= h {
			h = h * maxDim / w
			w = maxDim
		} else {
			w = w * maxDim / h
			h = maxDim
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
	}

	flat := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(flat, flat.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)
	xdraw.CatmullRom.Scale(flat, flat.Bounds(), img, bounds, xdraw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, flat); err != nil {
		return nil, fmt.Errorf("encode submission image: %w", err)
	}
	return buf.Bytes(), nil
}
