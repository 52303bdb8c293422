package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/lifeos/internal/inference"
)

func newTestClient(t *testing.T, h http.HandlerFunc) inference.Service {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	svc, err := New(context.Background(), Options{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Models:  Models{inference.PurposePerception: "gemini-test", inference.PurposeRouting: "gemini-router"},
	})
	require.NoError(t, err)
	return svc
}

func TestCompleteText(t *testing.T) {
	var path string
	var body map[string]any
	svc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"ocr_text\":\"hello\"}"}]}}]}`)
	})

	res, err := svc.Complete(context.Background(), inference.Request{
		Purpose:     inference.PurposePerception,
		Prompt:      "describe",
		Attachments: []inference.Attachment{{MIMEType: "image/png", Data: []byte{0x89, 0x50}}},
		Schema:      &inference.Schema{Type: inference.TypeObject, Properties: map[string]*inference.Schema{"ocr_text": {Type: inference.TypeString}}},
	})
	require.NoError(t, err)
	assert.Equal(t, inference.KindText, res.Kind)
	assert.Equal(t, `{"ocr_text":"hello"}`, res.Text)
	assert.True(t, strings.Contains(path, "gemini-test"), path)
	gen, _ := body["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", gen["responseMimeType"])
}

func TestCompleteToolCall(t *testing.T) {
	var path string
	svc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"create_calendar_event","args":{"title":"Lunch"}}}]}}]}`)
	})
	res, err := svc.Complete(context.Background(), inference.Request{
		Purpose: inference.PurposeRouting,
		Prompt:  "extract",
		Tools:   []inference.Tool{{Name: "create_calendar_event", Parameters: &inference.Schema{Type: inference.TypeObject}}},
	})
	require.NoError(t, err)
	require.Equal(t, inference.KindToolCall, res.Kind)
	assert.Equal(t, "create_calendar_event", res.ToolCall.Name)
	assert.Equal(t, "Lunch", res.ToolCall.Args["title"])
	assert.True(t, strings.Contains(path, "gemini-router"), path)
}

func TestCompleteGrounded(t *testing.T) {
	svc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"answer"}]},
			"groundingMetadata":{"groundingChunks":[{"web":{"uri":"https://a.example","title":"A"}},{"web":{"uri":"https://a.example","title":"A"}}]}}]}`)
	})
	res, err := svc.Complete(context.Background(), inference.Request{Purpose: inference.PurposeEnrichment, Prompt: "q", Grounding: true})
	require.NoError(t, err)
	assert.Equal(t, inference.KindGrounded, res.Kind)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "https://a.example", res.Sources[0].URL)
}

func TestCompleteMapsRateLimit(t *testing.T) {
	svc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`)
	})
	_, err := svc.Complete(context.Background(), inference.Request{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, inference.ErrRateLimited))
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
}
