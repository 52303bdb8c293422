package classify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/inference"
	"github.com/mohammad-safakhou/lifeos/internal/inference/inferencetest"
)

func TestParseFencedOutput(t *testing.T) {
	out, err := Parse("```json\n" + `{"domain":"Work","intent":"EVENT","priority":7,"summary":"Team sync tomorrow 3pm, also finish the report",
		"tags":["#Meetings","meetings"," report "],"actionable_items":["- also finish the report.","Team sync tomorrow 3pm"]}` + "\n```")
	require.NoError(t, err)
	assert.Equal(t, capture.DomainWork, out.Domain)
	assert.Equal(t, capture.IntentEvent, out.Intent)
	assert.Equal(t, 5, out.Priority)
	assert.Equal(t, []string{"meetings", "report"}, out.Tags)
	assert.Equal(t, []string{"Finish the report", "Team sync tomorrow 3pm"}, out.ActionableItems)
}

func TestParseCoercesUnknownEnums(t *testing.T) {
	out, err := Parse(`{"domain":"astrology","intent":"vibes","priority":"high","summary":"x","tags":[],"actionable_items":[]}`)
	require.NoError(t, err)
	assert.Equal(t, capture.DomainUnknown, out.Domain)
	assert.Equal(t, capture.IntentUnknown, out.Intent)
	assert.Equal(t, 3, out.Priority)

	out, err = Parse(`{"domain":"fitness","intent":"todo","priority":0}`)
	require.NoError(t, err)
	assert.Equal(t, capture.DomainHealth, out.Domain)
	assert.Equal(t, capture.IntentTask, out.Intent)
	assert.Equal(t, 1, out.Priority)
}

func TestParseAcceptsObjectItems(t *testing.T) {
	out, err := Parse(`{"intent":"task","actionable_items":[{"title":"call mom"},{"text":"pay rent"}]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Call mom", "Pay rent"}, out.ActionableItems)
}

func TestNormalizeItemsCapsAndStripsFiller(t *testing.T) {
	items := NormalizeItems([]string{
		"Please remember to call the dentist asap",
		"1. buy milk",
		"[ ] don't forget to water plants",
		"I need to email Sam",
		"and then book flights",
		"renew passport",
		"this one is past the cap",
	})
	assert.Equal(t, []string{"Call the dentist", "Buy milk", "Water plants", "Email Sam", "Book flights"}, items)
	assert.Empty(t, NormalizeItems([]string{"", "  ", "- ", "please "}))

	long := NormalizeItem("write a very long item that keeps going and going well beyond the eighty character limit that we impose")
	assert.LessOrEqual(t, len([]rune(long)), 80)
}

func TestClampPriority(t *testing.T) {
	assert.Equal(t, 4, ClampPriority(json.Number("4")))
	assert.Equal(t, 5, ClampPriority(json.Number("4.6")))
	assert.Equal(t, 3, ClampPriority(json.Number("")))
}

func TestClassifyFallsBackOnMalformedOutput(t *testing.T) {
	svc := inferencetest.New().On(inference.PurposeClassification, inferencetest.Text("I think this is about work!"))
	c := New(svc, nil)
	out, err := c.Classify(context.Background(), "Quarterly numbers look great. Send deck", capture.Context{})
	require.NoError(t, err)
	assert.Equal(t, capture.IntentUnknown, out.Intent)
	assert.Equal(t, capture.DomainUnknown, out.Domain)
	assert.Equal(t, "Quarterly numbers look great", out.Summary)
	assert.Empty(t, out.ActionableItems)
}

func TestClassifyPropagatesTransportFailure(t *testing.T) {
	svc := inferencetest.New().On(inference.PurposeClassification, inferencetest.Fail(&inference.RateLimitExhaustedError{Attempts: 3}))
	c := New(svc, nil)
	_, err := c.Classify(context.Background(), "x", capture.Context{})
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.ErrorIs(t, err, inference.ErrRateLimitExhausted)
}

func TestClassifyIncludesContext(t *testing.T) {
	svc := inferencetest.New().On(inference.PurposeClassification, inferencetest.Text(`{"intent":"reference"}`))
	c := New(svc, nil)
	_, err := c.Classify(context.Background(), "docs", capture.Context{SourceApp: "Safari", URL: "https://go.dev"})
	require.NoError(t, err)
	calls := svc.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "app: Safari")
	assert.Contains(t, calls[0].Prompt, "url: https://go.dev")
	assert.NotNil(t, calls[0].Schema)
}
