package dto

import "docdetect/internal/model"

// CapturesData is the /api/captures response.
type CapturesData struct {
	Captures []model.Capture `json:"captures"`
	Total    int             `json:"total"`
	ByLabel  map[string]int  `json:"by_label"`
	Limit    int             `json:"limit"`
}
