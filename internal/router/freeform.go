package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/executor"
	"github.com/mohammad-safakhou/lifeos/internal/inference"
)

var calendarTool = inference.Tool{
	Name:        executor.ActionCalendarEvent,
	Description: "Create a calendar event for the captured item.",
	Parameters: &inference.Schema{
		Type: inference.TypeObject,
		Properties: map[string]*inference.Schema{
			"title":       {Type: inference.TypeString, Description: "Short event title"},
			"start":       {Type: inference.TypeString, Description: "Start time, RFC3339 with offset"},
			"end":         {Type: inference.TypeString, Description: "End time, RFC3339 with offset"},
			"location":    {Type: inference.TypeString},
			"description": {Type: inference.TypeString},
		},
		Required: []string{"title", "start"},
	},
}

const freeFormSystem = `You turn a captured note into a calendar event. Call create_calendar_event
exactly once when the note describes something happening at a time. Do not answer in text.`

// freeForm asks the model for a single calendar tool call. It returns either
// the call to execute or the outcome to record instead.
func (r *Router) freeForm(ctx context.Context, rec *capture.Record, ref time.Time) (*Call, capture.ActionOutcome) {
	if r.svc == nil {
		return nil, r.skipped(executor.ActionCalendarEvent, "free-form extraction unavailable")
	}
	loc := rec.Context.Location()
	c := rec.Classification
	var b strings.Builder
	fmt.Fprintf(&b, "Now: %s (%s)\n", ref.In(loc).Format(time.RFC3339), loc.String())
	fmt.Fprintf(&b, "Summary: %s\n", c.Summary)
	if len(c.ActionableItems) > 0 {
		fmt.Fprintf(&b, "Items: %s\n", strings.Join(c.ActionableItems, "; "))
	}
	if rec.Perception != nil {
		if text := rec.Perception.Text(); text != "" {
			fmt.Fprintf(&b, "\nCaptured text:\n%s\n", text)
		}
	}
	res, err := r.svc.Complete(ctx, inference.Request{
		Purpose: inference.PurposeRouting,
		System:  freeFormSystem,
		Prompt:  b.String(),
		Tools:   []inference.Tool{calendarTool},
	})
	if err != nil {
		r.logger.Warn("free-form extraction failed", zap.String("capture_id", rec.ID), zap.Error(err))
		return nil, capture.ActionOutcome{
			ActionType: executor.ActionCalendarEvent,
			Status:     capture.OutcomeError,
			Message:    err.Error(),
			ExecutedAt: r.now().UTC(),
		}
	}
	if res.Kind != inference.KindToolCall || res.ToolCall == nil || res.ToolCall.Name != executor.ActionCalendarEvent {
		return nil, r.skipped(executor.ActionCalendarEvent, "model returned no calendar tool call")
	}
	args := make(map[string]any, len(res.ToolCall.Args)+1)
	for k, v := range res.ToolCall.Args {
		args[k] = v
	}
	if s, _ := args["title"].(string); strings.TrimSpace(s) == "" {
		args["title"] = c.Summary
	}
	if _, ok := args["timezone"]; !ok {
		args["timezone"] = loc.String()
	}
	return &Call{Action: executor.ActionCalendarEvent, Args: args}, capture.ActionOutcome{}
}
