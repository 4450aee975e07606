// Package frame defines the decoded-image abstraction the pipeline works on.
// The OpenCV implementation lives in service/vision.
package frame

import (
	"errors"
	"image"
)

// ErrEmptyCrop is returned when a crop rectangle has no overlap with the frame.
var ErrEmptyCrop = errors.New("crop region is empty")

// Image is a decoded frame or a crop of one. Implementations may hold native
// memory; Close must be called exactly once by the owner.
type Image interface {
	Width() int
	Height() int
	// Crop returns an independent copy of r clamped to the image bounds.
	Crop(r image.Rectangle) (Image, error)
	// Sharpness is the variance of the Laplacian over the grayscale image.
	Sharpness() (float64, error)
	EncodePNG() ([]byte, error)
	Close() error
}

// Decoder turns an encoded payload (JPEG, PNG) into an Image.
type Decoder interface {
	Decode(payload []byte) (Image, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(payload []byte) (Image, error)

// Decode calls f(payload).
func (f DecoderFunc) Decode(payload []byte) (Image, error) {
	return f(payload)
}

// Bounds returns the image rectangle anchored at the origin.
func Bounds(img Image) image.Rectangle {
	return image.Rect(0, 0, img.Width(), img.Height())
}

// ClampRect intersects r with the bounds of a width x height image.
// The result is empty when r lies completely outside.
func ClampRect(r image.Rectangle, width, height int) image.Rectangle {
	return r.Canon().Intersect(image.Rect(0, 0, width, height))
}
