// Package perception extracts text and a structural description from raw
// capture bytes.
package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mohammad-safakhou/lifeos/internal/cache"
	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/inference"
	"github.com/mohammad-safakhou/lifeos/internal/telemetry"
)

// Error is returned when the inference call fails or its output is unusable.
type Error struct {
	Fingerprint string
	Err         error
}

func (e *Error) Error() string { return fmt.Sprintf("perception %s: %v", short(e.Fingerprint), e.Err) }

func (e *Error) Unwrap() error { return e.Err }

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

const systemPrompt = `You extract content from personal captures (screenshots and voice notes).
Return JSON with:
- ocr_text: all legible text in the image, verbatim, empty if none
- audio_transcript: a verbatim transcript of any audio, empty if none
- visual_description: one or two sentences describing what the capture shows`

var responseSchema = &inference.Schema{
	Type: inference.TypeObject,
	Properties: map[string]*inference.Schema{
		"ocr_text":           {Type: inference.TypeString},
		"audio_transcript":   {Type: inference.TypeString},
		"visual_description": {Type: inference.TypeString},
	},
	Required: []string{"ocr_text", "audio_transcript", "visual_description"},
}

// Perceiver runs the perception stage. Concurrent calls for the same
// fingerprint share a single inference call.
type Perceiver struct {
	svc     inference.Service
	cache   cache.Cache
	maxAge  time.Duration
	group   singleflight.Group
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

// Option configures a Perceiver.
type Option func(*Perceiver)

func WithLogger(l *zap.Logger) Option { return func(p *Perceiver) { p.logger = l } }

func WithMetrics(m *telemetry.Metrics) Option { return func(p *Perceiver) { p.metrics = m } }

// New builds a Perceiver. svc should already carry retry behaviour.
func New(svc inference.Service, c cache.Cache, maxAge time.Duration, opts ...Option) *Perceiver {
	if c == nil {
		c = cache.Nop{}
	}
	p := &Perceiver{svc: svc, cache: c, maxAge: maxAge, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Perceive returns the perception for in, consulting the cache first.
// Typed notes are their own OCR text and never reach the model. A note sent
// with a screenshot or audio clip is appended after the cached extraction,
// so the cache only ever holds what the model saw in the bytes.
func (p *Perceiver) Perceive(ctx context.Context, in capture.RawInput) (capture.Perception, error) {
	if err := in.Validate(); err != nil {
		return capture.Perception{}, &Error{Err: err}
	}
	if in.Kind() == capture.KindText {
		return capture.Perception{OCRText: strings.TrimSpace(in.Text)}, nil
	}

	fp := cache.Fingerprint(in.FingerprintSource())
	if res, ok := p.cache.Get(ctx, fp, p.maxAge); ok {
		p.metrics.CacheLookup(true)
		p.logger.Debug("perception cache hit", zap.String("fingerprint", fp))
		return withNote(res, in.Text), nil
	}
	p.metrics.CacheLookup(false)

	v, err, shared := p.group.Do(fp, func() (any, error) {
		// a concurrent caller may have filled the cache while we queued
		if res, ok := p.cache.Get(ctx, fp, p.maxAge); ok {
			return res, nil
		}
		res, err := p.extract(ctx, in)
		if err != nil {
			return nil, err
		}
		p.cache.Put(ctx, fp, res)
		return res, nil
	})
	if err != nil {
		return capture.Perception{}, &Error{Fingerprint: fp, Err: err}
	}
	if shared {
		p.logger.Debug("perception shared in-flight call", zap.String("fingerprint", fp))
	}
	return withNote(v.(capture.Perception), in.Text), nil
}

// withNote appends the capture's typed note to the OCR text.
func withNote(p capture.Perception, note string) capture.Perception {
	if t := strings.TrimSpace(note); t != "" && !strings.Contains(p.OCRText, t) {
		p.OCRText = strings.TrimSpace(p.OCRText + "\n" + t)
	}
	return p
}

func (p *Perceiver) extract(ctx context.Context, in capture.RawInput) (capture.Perception, error) {
	var atts []inference.Attachment
	if len(in.Screenshot) > 0 {
		atts = append(atts, inference.Attachment{MIMEType: mimeOr(in.ScreenshotMIME, "image/png"), Data: in.Screenshot})
	}
	if len(in.Audio) > 0 {
		atts = append(atts, inference.Attachment{MIMEType: mimeOr(in.AudioMIME, "audio/wav"), Data: in.Audio})
	}
	res, err := p.svc.Complete(ctx, inference.Request{
		Purpose:     inference.PurposePerception,
		System:      systemPrompt,
		Prompt:      "Extract the content of the attached capture.",
		Attachments: atts,
		Schema:      responseSchema,
	})
	if err != nil {
		return capture.Perception{}, err
	}
	var out capture.Perception
	if err := json.Unmarshal([]byte(inference.ExtractJSON(res.Text)), &out); err != nil {
		return capture.Perception{}, fmt.Errorf("decode perception: %w", err)
	}
	return out, nil
}

func mimeOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
