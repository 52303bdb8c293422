package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
)

// TokenSource yields a bearer token for a user's connector.
// *credentials.Store satisfies it.
type TokenSource interface {
	AccessToken(ctx context.Context, userID, provider string) (string, error)
}

// Webhook posts the invocation to a connector endpoint.
type Webhook struct {
	URL      string
	Provider string
	Tokens   TokenSource
	Client   *http.Client
}

type webhookReply struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (w *Webhook) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	body, err := json.Marshal(inv)
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Provider != "" && w.Tokens != nil {
		tok, err := w.Tokens.AccessToken(ctx, inv.UserID, w.Provider)
		if err != nil {
			return Result{}, fmt.Errorf("%s credentials: %w", w.Provider, err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var reply webhookReply
	_ = json.Unmarshal(raw, &reply)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := reply.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return Result{Status: capture.OutcomeError, Message: msg}, fmt.Errorf("%s webhook: status %d", inv.Action, resp.StatusCode)
	}
	return Result{Status: capture.OutcomeSuccess, ExternalRef: reply.ID, Message: reply.Message}, nil
}
