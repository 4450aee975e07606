package vision

import (
	"errors"
	"fmt"
	"image"

	"docdetect/internal/frame"

	"gocv.io/x/gocv"
)

// ErrEmptyImage is returned when a payload decodes to an empty Mat.
var ErrEmptyImage = errors.New("decoded image is empty")

// Frame is a frame.Image backed by an OpenCV Mat.
type Frame struct {
	mat gocv.Mat
}

// Decode decodes a JPEG/PNG payload into a BGR frame.
func Decode(payload []byte) (frame.Image, error) {
	mat, err := gocv.IMDecode(payload, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, ErrEmptyImage
	}
	return &Frame{mat: mat}, nil
}

// Decoder returns Decode as a frame.Decoder.
func Decoder() frame.Decoder {
	return frame.DecoderFunc(Decode)
}

// NewFrame takes ownership of mat.
func NewFrame(mat gocv.Mat) *Frame {
	return &Frame{mat: mat}
}

// Mat exposes the underlying Mat. It stays owned by the frame.
func (f *Frame) Mat() gocv.Mat {
	return f.mat
}

func (f *Frame) Width() int {
	return f.mat.Cols()
}

func (f *Frame) Height() int {
	return f.mat.Rows()
}

// Crop copies the clamped region so the crop outlives the frame.
func (f *Frame) Crop(r image.Rectangle) (frame.Image, error) {
	r = frame.ClampRect(r, f.Width(), f.Height())
	if r.Empty() {
		return nil, frame.ErrEmptyCrop
	}

	region := f.mat.Region(r)
	defer region.Close()

	return &Frame{mat: region.Clone()}, nil
}

// Sharpness is the variance of the Laplacian of the grayscale image.
// Blurry crops have few edges and score low.
func (f *Frame) Sharpness() (float64, error) {
	if f.mat.Empty() {
		return 0, ErrEmptyImage
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if f.mat.Channels() == 1 {
		f.mat.CopyTo(&gray)
	} else if err := gocv.CvtColor(f.mat, &gray, gocv.ColorBGRToGray); err != nil {
		return 0, fmt.Errorf("failed to convert image to grayscale: %w", err)
	}

	laplacian := gocv.NewMat()
	defer laplacian.Close()
	gocv.Laplacian(gray, &laplacian, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stdDev := gocv.NewMat()
	defer stdDev.Close()
	gocv.MeanStdDev(laplacian, &mean, &stdDev)

	sd := stdDev.GetDoubleAt(0, 0)
	return sd * sd, nil
}

// EncodePNG encodes the frame losslessly.
func (f *Frame) EncodePNG() ([]byte, error) {
	return encode(gocv.PNGFileExt, f.mat)
}

// EncodeJPEG encodes the frame with the given quality.
func (f *Frame) EncodeJPEG(quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, f.mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

func (f *Frame) Close() error {
	return f.mat.Close()
}

func encode(ext gocv.FileExt, mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(ext, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, nil
}
