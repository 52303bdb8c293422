// Package inference defines the contract the pipeline uses to talk to a
// model provider, plus the retry engine and shared limiter wrapped around it.
package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
)

// Purpose selects the configured model for a request.
type Purpose string

const (
	PurposePerception     Purpose = "perception"
	PurposeClassification Purpose = "classification"
	PurposeRouting        Purpose = "routing"
	PurposeEnrichment     Purpose = "enrichment"
)

// Attachment is inline media sent with a prompt.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// SchemaType is a JSON schema primitive.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeNumber  SchemaType = "number"
	TypeInteger SchemaType = "integer"
	TypeBoolean SchemaType = "boolean"
)

// Schema is a provider-neutral subset of JSON schema used for structured
// output and tool parameters.
type Schema struct {
	Type        SchemaType
	Description string
	Properties  map[string]*Schema
	Items       *Schema
	Enum        []string
	Required    []string
}

// JSON renders the schema as a JSON-schema document.
func (s *Schema) JSON() map[string]any {
	if s == nil {
		return nil
	}
	out := map[string]any{"type": string(s.Type)}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if s.Items != nil {
		out["items"] = s.Items.JSON()
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for k, v := range s.Properties {
			props[k] = v.JSON()
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

// Tool is a function the model may call instead of answering in text.
type Tool struct {
	Name        string
	Description string
	Parameters  *Schema
}

// Request is one completion call.
type Request struct {
	Purpose     Purpose
	System      string
	Prompt      string
	Attachments []Attachment
	// Schema requests JSON output conforming to it.
	Schema *Schema
	Tools  []Tool
	// Grounding enables provider-side web search grounding when supported.
	Grounding   bool
	Temperature *float32
}

// Kind tags a Result.
type Kind int

const (
	KindText Kind = iota
	KindToolCall
	KindGrounded
)

func (k Kind) String() string {
	switch k {
	case KindToolCall:
		return "tool_call"
	case KindGrounded:
		return "grounded"
	default:
		return "text"
	}
}

// ToolCall is a function invocation chosen by the model.
type ToolCall struct {
	Name string
	Args map[string]any
}

// Result is resolved once by the provider adapter; downstream code switches
// on Kind and never inspects provider responses.
type Result struct {
	Kind     Kind
	Text     string
	ToolCall *ToolCall
	Sources  []capture.Source
}

// Text builds a plain text result.
func Text(s string) Result { return Result{Kind: KindText, Text: s} }

// Call builds a tool call result.
func Call(name string, args map[string]any) Result {
	return Result{Kind: KindToolCall, ToolCall: &ToolCall{Name: name, Args: args}}
}

// Grounded builds a text result backed by web sources.
func Grounded(s string, sources []capture.Source) Result {
	return Result{Kind: KindGrounded, Text: s, Sources: sources}
}

// Service is the model provider boundary.
type Service interface {
	Complete(ctx context.Context, req Request) (Result, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, req Request) (Result, error)

func (f ServiceFunc) Complete(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

var (
	// ErrRateLimited is matched by errors.Is on any capacity rejection.
	ErrRateLimited = errors.New("inference: rate limited")
	// ErrRateLimitExhausted is matched by errors.Is on a RateLimitExhaustedError.
	ErrRateLimitExhausted = errors.New("inference: rate limit retries exhausted")
)

// ServiceError is a provider failure. Code carries the HTTP status when known.
type ServiceError struct {
	Provider string
	Code     int
	Message  string
	Err      error
}

func (e *ServiceError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is reports 429s as ErrRateLimited.
func (e *ServiceError) Is(target error) bool {
	return target == ErrRateLimited && e.Code == 429
}

// IsRateLimited reports whether err is a capacity rejection.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// RateLimitExhaustedError is returned once every attempt was rate limited.
type RateLimitExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RateLimitExhaustedError) Error() string {
	return fmt.Sprintf("inference: rate limited after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RateLimitExhaustedError) Unwrap() error { return e.Last }

func (e *RateLimitExhaustedError) Is(target error) bool { return target == ErrRateLimitExhausted }
