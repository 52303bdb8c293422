package server

import (
	"time"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
)

// HTTPError is the body of every error response.
type HTTPError struct {
	Error string `json:"error"`
}

// CaptureRequest is the JSON form of POST /api/captures. Binary fields are
// standard base64.
type CaptureRequest struct {
	Text             string          `json:"text"`
	ScreenshotBase64 string          `json:"screenshot_base64"`
	ScreenshotMIME   string          `json:"screenshot_mime"`
	AudioBase64      string          `json:"audio_base64"`
	AudioMIME        string          `json:"audio_mime"`
	Context          capture.Context `json:"context"`
}

type CaptureAccepted struct {
	ID string `json:"id"`
}

// CaptureResponse is a capture record without its raw input bytes.
type CaptureResponse struct {
	ID             string                         `json:"id"`
	InputKind      capture.InputKind              `json:"input_kind"`
	Text           string                         `json:"text,omitempty"`
	Context        capture.Context                `json:"context"`
	Status         capture.Status                 `json:"status"`
	Perception     *capture.Perception            `json:"perception,omitempty"`
	Classification *capture.Classification        `json:"classification,omitempty"`
	Actions        []capture.ActionOutcome        `json:"actions_executed"`
	Enrichment     map[string]capture.AgentResult `json:"enrichment"`
	Timeline       map[string]time.Time           `json:"timeline"`
	CreatedAt      time.Time                      `json:"created_at"`
	UpdatedAt      time.Time                      `json:"updated_at"`
}

func toResponse(r *capture.Record) CaptureResponse {
	return CaptureResponse{
		ID:             r.ID,
		InputKind:      r.Input.Kind(),
		Text:           r.Input.Text,
		Context:        r.Context,
		Status:         r.Status,
		Perception:     r.Perception,
		Classification: r.Classification,
		Actions:        r.Actions,
		Enrichment:     r.Enrichment,
		Timeline:       r.Timeline,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}
