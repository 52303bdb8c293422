// Package capture defines the capture record aggregate and the merge rules
// every stage uses to update it.
package capture

import (
	"errors"
	"strings"
	"time"
)

// InputKind discriminates RawInput.
type InputKind string

const (
	KindScreenshot InputKind = "screenshot"
	KindAudio      InputKind = "audio"
	KindText       InputKind = "text"
)

// ErrEmptyInput is returned when a capture carries no screenshot, audio or text.
var ErrEmptyInput = errors.New("capture: empty input")

// RawInput is the user-submitted artifact. A screenshot and an audio clip may
// arrive together; typed text is used only when neither is present.
type RawInput struct {
	Screenshot     []byte `json:"screenshot,omitempty"`
	ScreenshotMIME string `json:"screenshot_mime,omitempty"`
	Audio          []byte `json:"audio,omitempty"`
	AudioMIME      string `json:"audio_mime,omitempty"`
	Text           string `json:"text,omitempty"`
}

// Kind reports the primary modality of the input.
func (in RawInput) Kind() InputKind {
	switch {
	case len(in.Screenshot) > 0:
		return KindScreenshot
	case len(in.Audio) > 0:
		return KindAudio
	default:
		return KindText
	}
}

// FingerprintSource returns the bytes used as the cache key. The screenshot
// takes precedence when both screenshot and audio are present.
func (in RawInput) FingerprintSource() []byte {
	switch in.Kind() {
	case KindScreenshot:
		return in.Screenshot
	case KindAudio:
		return in.Audio
	default:
		return []byte(strings.TrimSpace(in.Text))
	}
}

func (in RawInput) Validate() error {
	if len(in.Screenshot) == 0 && len(in.Audio) == 0 && strings.TrimSpace(in.Text) == "" {
		return ErrEmptyInput
	}
	return nil
}

// Context is environment metadata captured alongside the input.
type Context struct {
	SourceApp   string `json:"source_app,omitempty"`
	WindowTitle string `json:"window_title,omitempty"`
	URL         string `json:"url,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
}

// Location resolves the capture timezone, defaulting to UTC.
func (c Context) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Perception is the extracted content of a capture.
type Perception struct {
	OCRText           string `json:"ocr_text"`
	AudioTranscript   string `json:"audio_transcript"`
	VisualDescription string `json:"visual_description"`
}

// Text joins the non-empty extracted fields for downstream stages.
func (p Perception) Text() string {
	var parts []string
	for _, s := range []string{p.OCRText, p.AudioTranscript, p.VisualDescription} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Domain is the life area a capture belongs to.
type Domain string

const (
	DomainWork     Domain = "work"
	DomainPersonal Domain = "personal"
	DomainHealth   Domain = "health"
	DomainFinance  Domain = "finance"
	DomainLearning Domain = "learning"
	DomainSocial   Domain = "social"
	DomainHome     Domain = "home"
	DomainTravel   Domain = "travel"
	DomainShopping Domain = "shopping"
	DomainUnknown  Domain = "unknown"
)

// Domains lists every accepted domain value.
var Domains = []Domain{DomainWork, DomainPersonal, DomainHealth, DomainFinance, DomainLearning,
	DomainSocial, DomainHome, DomainTravel, DomainShopping, DomainUnknown}

// Intent is what the user most likely wants done with a capture.
type Intent string

const (
	IntentEvent     Intent = "event"
	IntentTask      Intent = "task"
	IntentPurchase  Intent = "purchase"
	IntentReference Intent = "reference"
	IntentLearning  Intent = "learning"
	IntentUnknown   Intent = "unknown"
)

// Intents lists every accepted intent value.
var Intents = []Intent{IntentEvent, IntentTask, IntentPurchase, IntentReference, IntentLearning, IntentUnknown}

// Classification is the structured decision about a capture.
type Classification struct {
	Domain          Domain   `json:"domain"`
	Intent          Intent   `json:"intent"`
	Priority        int      `json:"priority"`
	Summary         string   `json:"summary"`
	Tags            []string `json:"tags"`
	ActionableItems []string `json:"actionable_items"`
}

// OutcomeStatus is the result of one action executor invocation.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeError   OutcomeStatus = "error"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// ActionNone marks a routing decision that produced no action.
const ActionNone = "none"

// ActionOutcome records one routed action, successful or not.
type ActionOutcome struct {
	ActionType string         `json:"action_type"`
	TargetID   string         `json:"target_id,omitempty"`
	Status     OutcomeStatus  `json:"status"`
	Message    string         `json:"message,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
}

// AgentStatus is the state of one enrichment entry.
type AgentStatus string

const (
	AgentOK    AgentStatus = "ok"
	AgentError AgentStatus = "error"
)

// Source is a cited web page.
type Source struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// EnrichmentItem is one tip or resource produced by an agent.
type EnrichmentItem struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
	Note  string `json:"note,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// AgentResult is the value stored under enrichment[agent].
type AgentResult struct {
	Status     AgentStatus      `json:"status"`
	Summary    string           `json:"summary,omitempty"`
	Items      []EnrichmentItem `json:"items,omitempty"`
	Sources    []Source         `json:"sources,omitempty"`
	Error      string           `json:"error,omitempty"`
	ProducedAt time.Time        `json:"produced_at"`
}

// Timeline stage names.
const (
	StagePerception     = "perception"
	StageClassification = "classification"
	StageRouting        = "routing"
	StageFinalized      = "finalized"
	enrichmentPrefix    = "enrichment:"
)

// EnrichmentStage is the timeline key for an agent.
func EnrichmentStage(agent string) string { return enrichmentPrefix + agent }

// Record is the capture aggregate.
type Record struct {
	ID             string                 `json:"id"`
	UserID         string                 `json:"user_id"`
	Input          RawInput               `json:"raw_input"`
	Context        Context                `json:"context"`
	Status         Status                 `json:"status"`
	Perception     *Perception            `json:"perception,omitempty"`
	Classification *Classification        `json:"classification,omitempty"`
	Actions        []ActionOutcome        `json:"actions_executed"`
	Enrichment     map[string]AgentResult `json:"enrichment"`
	Timeline       map[string]time.Time   `json:"timeline"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// New returns a record in the processing state.
func New(id, userID string, in RawInput, ctx Context, now time.Time) *Record {
	return &Record{
		ID:         id,
		UserID:     userID,
		Input:      in,
		Context:    ctx,
		Status:     StatusProcessing,
		Actions:    []ActionOutcome{},
		Enrichment: map[string]AgentResult{},
		Timeline:   map[string]time.Time{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Done reports whether the named stage has a timeline entry.
func (r *Record) Done(stage string) bool {
	_, ok := r.Timeline[stage]
	return ok
}

// View is the read-only slice of a record handed to enrichment agents.
type View struct {
	ID             string
	UserID         string
	Context        Context
	Perception     Perception
	Classification Classification
}

// View snapshots the fields enrichment agents read.
func (r *Record) View() View {
	v := View{ID: r.ID, UserID: r.UserID, Context: r.Context}
	if r.Perception != nil {
		v.Perception = *r.Perception
	}
	if r.Classification != nil {
		v.Classification = *r.Classification
		v.Classification.Tags = append([]string(nil), r.Classification.Tags...)
		v.Classification.ActionableItems = append([]string(nil), r.Classification.ActionableItems...)
	}
	return v
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := *r
	out.Input.Screenshot = append([]byte(nil), r.Input.Screenshot...)
	out.Input.Audio = append([]byte(nil), r.Input.Audio...)
	if r.Perception != nil {
		p := *r.Perception
		out.Perception = &p
	}
	if r.Classification != nil {
		c := *r.Classification
		c.Tags = append([]string(nil), r.Classification.Tags...)
		c.ActionableItems = append([]string(nil), r.Classification.ActionableItems...)
		out.Classification = &c
	}
	out.Actions = append([]ActionOutcome{}, r.Actions...)
	out.Enrichment = make(map[string]AgentResult, len(r.Enrichment))
	for k, v := range r.Enrichment {
		out.Enrichment[k] = v
	}
	out.Timeline = make(map[string]time.Time, len(r.Timeline))
	for k, v := range r.Timeline {
		out.Timeline[k] = v
	}
	return &out
}
