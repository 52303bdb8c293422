package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/inference"
)

const providerName = "gemini"

// Models maps each purpose to a model name.
type Models map[inference.Purpose]string

// client implements inference.Service on the Gemini API
type client struct {
	genai   *genai.Client
	models  Models
	timeout time.Duration
}

// Options configures the client.
type Options struct {
	APIKey  string
	BaseURL string
	Models  Models
	Timeout time.Duration
}

// New creates a Gemini-backed inference service.
func New(ctx context.Context, opts Options) (inference.Service, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini: api key required")
	}
	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions.BaseURL = opts.BaseURL
	}
	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &client{genai: gc, models: opts.Models, timeout: opts.Timeout}, nil
}

func (c *client) model(p inference.Purpose) string {
	if m := c.models[p]; m != "" {
		return m
	}
	return c.models[inference.PurposePerception]
}

func (c *client) Complete(ctx context.Context, req inference.Request) (inference.Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, a := range req.Attachments {
		parts = append(parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(*req.Temperature)
	}
	switch {
	case req.Grounding:
		// search grounding cannot be combined with structured output
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	case len(req.Tools) > 0:
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toSchema(t.Parameters),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	case req.Schema != nil:
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = toSchema(req.Schema)
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model(req.Purpose), contents, cfg)
	if err != nil {
		return inference.Result{}, mapError(err)
	}
	return resolve(resp), nil
}

// resolve turns a response into the tagged result: a function call wins,
// then grounded text, then plain text.
func resolve(resp *genai.GenerateContentResponse) inference.Result {
	if calls := resp.FunctionCalls(); len(calls) > 0 && calls[0] != nil {
		return inference.Call(calls[0].Name, calls[0].Args)
	}
	text := resp.Text()
	var sources []capture.Source
	seen := map[string]bool{}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
				continue
			}
			seen[chunk.Web.URI] = true
			sources = append(sources, capture.Source{Title: chunk.Web.Title, URL: chunk.Web.URI})
		}
	}
	if len(sources) > 0 {
		return inference.Grounded(text, sources)
	}
	return inference.Text(text)
}

func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Code
		if code == 0 && apiErr.Status == "RESOURCE_EXHAUSTED" {
			code = http.StatusTooManyRequests
		}
		return &inference.ServiceError{Provider: providerName, Code: code, Message: apiErr.Message, Err: err}
	}
	return &inference.ServiceError{Provider: providerName, Message: err.Error(), Err: err}
}

func toSchema(s *inference.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        schemaType(s.Type),
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toSchema(v)
		}
	}
	return out
}

func schemaType(t inference.SchemaType) genai.Type {
	switch t {
	case inference.TypeObject:
		return genai.TypeObject
	case inference.TypeArray:
		return genai.TypeArray
	case inference.TypeNumber:
		return genai.TypeNumber
	case inference.TypeInteger:
		return genai.TypeInteger
	case inference.TypeBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}
