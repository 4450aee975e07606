package vision

import (
	"fmt"
	"image"
	"image/color"

	"docdetect/internal/dto"
	"docdetect/internal/frame"

	"gocv.io/x/gocv"
)

// Preview display size and encoding quality.
const (
	PreviewWidth   = 1280
	PreviewHeight  = 720
	PreviewQuality = 80
)

// Annotator draws detections onto a copy of a frame for live viewers.
type Annotator struct {
	width   int
	height  int
	quality int
}

// NewAnnotator creates an annotator producing PreviewWidth x PreviewHeight JPEGs.
func NewAnnotator() *Annotator {
	return &Annotator{width: PreviewWidth, height: PreviewHeight, quality: PreviewQuality}
}

// Annotate returns a JPEG of img with the detections boxed and the FPS overlay.
// img itself is not modified.
func (a *Annotator) Annotate(img frame.Image, detections []dto.DetectionResult, fps float64) ([]byte, error) {
	f, ok := img.(*Frame)
	if !ok {
		return nil, fmt.Errorf("unsupported image type %T", img)
	}

	green := color.RGBA{G: 255}
	red := color.RGBA{R: 255}

	mat := f.Mat().Clone()
	defer mat.Close()

	for _, detection := range detections {
		if err := gocv.Rectangle(&mat, detection.Rect(), green, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}

		label := fmt.Sprintf("%s: %.2f", detection.Label, detection.Confidence)
		pt := image.Pt(detection.X, detection.Y-10)
		if err := gocv.PutText(&mat, label, pt, gocv.FontHersheySimplex, 0.9, green, 2); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	if err := gocv.PutText(&mat, fmt.Sprintf("FPS: %.2f", fps), image.Pt(10, 30), gocv.FontHersheySimplex, 1, red, 2); err != nil {
		return nil, fmt.Errorf("failed to draw text: %w", err)
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Pt(a.width, a.height), 0, 0, gocv.InterpolationLinear)

	display := Frame{mat: resized}
	return display.EncodeJPEG(a.quality)
}
