package uploads

import (
	"bytes"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

// Variant dimensions. Images are fit inside the bounding box preserving
// aspect ratio; smaller images pass through untouched.
const (
	thumbSize   = 256
	displaySize = 1024
)

// variants holds the derived renditions of an uploaded image, re-encoded as
// JPEG.
type variants struct {
	thumb   []byte
	display []byte
}

// makeVariants decodes the image and produces the thumb and display
// renditions. Non-image payloads return an error; the caller stores the
// original only.
func makeVariants(r io.Reader) (*variants, error) {
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	out := &variants{}
	for _, v := range []struct {
		size int
		dst  *[]byte
	}{
		{thumbSize, &out.thumb},
		{displaySize, &out.display},
	} {
		img := src
		if src.Bounds().Dx() > v.size || src.Bounds().Dy() > v.size {
			img = imaging.Fit(src, v.size, v.size, imaging.Lanczos)
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
			return nil, fmt.Errorf("encode variant: %w", err)
		}
		*v.dst = buf.Bytes()
	}
	return out, nil
}
