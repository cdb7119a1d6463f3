package desktop

import (
	"image"
	"image/jpeg"
)

// EncodeJPEG encodes an image as JPEG with the specified quality (1-100).
// The returned slice is a copy and outlives the pooled encode buffer.
func EncodeJPEG(img *image.RGBA, quality int) ([]byte, error) {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}

	buf := getBuffer()
	defer putBuffer(buf)

	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
