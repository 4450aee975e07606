package dto

// PreviewMessage is sent to live viewers for every processed frame.
type PreviewMessage struct {
	Frame      uint64            `json:"frame"`
	FPS        float64           `json:"fps"`
	Image      string            `json:"image"` // base64 JPEG
	Detections []DetectionResult `json:"detections"`
}
