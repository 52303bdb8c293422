package openai_provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/mohammad-safakhou/lifeos/internal/inference"
)

const providerName = "openai"

// client implements inference.Service using OpenAI's chat completions API
type client struct {
	api       openai.Client
	models    map[inference.Purpose]string
	maxTokens int64
	timeout   time.Duration
}

// Options configures the client.
type Options struct {
	APIKey     string
	BaseURL    string
	Models     map[inference.Purpose]string
	MaxTokens  int64
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewOpenAIClient creates a new OpenAI client. SDK retries are disabled; the
// inference engine owns the retry policy.
func NewOpenAIClient(opts Options) (inference.Service, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai: api key required")
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	return &client{
		api:       openai.NewClient(reqOpts...),
		models:    opts.Models,
		maxTokens: opts.MaxTokens,
		timeout:   opts.Timeout,
	}, nil
}

func (c *client) model(p inference.Purpose) string {
	if m := c.models[p]; m != "" {
		return m
	}
	return c.models[inference.PurposePerception]
}

// Complete implements inference.Service. Grounding is not available on this
// provider; grounded requests are answered as plain text.
func (c *client) Complete(ctx context.Context, req inference.Request) (inference.Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var messages []openai.ChatCompletionMessageParamUnion
	system := req.System
	if req.Schema != nil && len(req.Tools) == 0 {
		doc, _ := json.Marshal(req.Schema.JSON())
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object matching this schema:\n" + string(doc))
	}
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	if len(req.Attachments) == 0 {
		messages = append(messages, openai.UserMessage(req.Prompt))
	} else {
		parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(req.Prompt)}
		for _, a := range req.Attachments {
			part, err := attachmentPart(a)
			if err != nil {
				return inference.Result{}, &inference.ServiceError{Provider: providerName, Message: err.Error(), Err: err}
			}
			parts = append(parts, part)
		}
		messages = append(messages, openai.UserMessage(parts))
	}

	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(c.model(req.Purpose)),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(c.maxTokens),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(float64(*req.Temperature))
	}
	if len(req.Tools) > 0 {
		for _, t := range req.Tools {
			fn := shared.FunctionDefinitionParam{
				Name:       t.Name,
				Parameters: shared.FunctionParameters(t.Parameters.JSON()),
			}
			if t.Description != "" {
				fn.Description = openai.String(t.Description)
			}
			params.Tools = append(params.Tools, openai.ChatCompletionToolParam{Function: fn})
		}
	} else if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return inference.Result{}, mapError(err)
	}
	if len(resp.Choices) == 0 {
		return inference.Result{}, &inference.ServiceError{Provider: providerName, Message: "empty choices"}
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		args := map[string]any{}
		if strings.TrimSpace(tc.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return inference.Result{}, &inference.ServiceError{Provider: providerName, Message: fmt.Sprintf("tool arguments: %v", err), Err: err}
			}
		}
		return inference.Call(tc.Function.Name, args), nil
	}
	return inference.Text(msg.Content), nil
}

func attachmentPart(a inference.Attachment) (openai.ChatCompletionContentPartUnionParam, error) {
	b64 := base64.StdEncoding.EncodeToString(a.Data)
	switch {
	case strings.HasPrefix(a.MIMEType, "image/"):
		return openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:" + a.MIMEType + ";base64," + b64,
		}), nil
	case a.MIMEType == "audio/wav" || a.MIMEType == "audio/x-wav":
		return openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{Data: b64, Format: "wav"}), nil
	case a.MIMEType == "audio/mpeg" || a.MIMEType == "audio/mp3":
		return openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{Data: b64, Format: "mp3"}), nil
	default:
		return openai.ChatCompletionContentPartUnionParam{}, fmt.Errorf("unsupported attachment type %q", a.MIMEType)
	}
}

func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &inference.ServiceError{Provider: providerName, Code: apiErr.StatusCode, Message: apiErr.Message, Err: err}
	}
	return &inference.ServiceError{Provider: providerName, Message: err.Error(), Err: err}
}
