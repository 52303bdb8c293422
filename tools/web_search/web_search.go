package web_search

import (
	"context"
	"errors"
	"net/http"

	"github.com/mohammad-safakhou/lifeos/config"
	"github.com/mohammad-safakhou/lifeos/tools/web_search/brave"
	"github.com/mohammad-safakhou/lifeos/tools/web_search/models"
	"github.com/mohammad-safakhou/lifeos/tools/web_search/serper"
)

type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var (
	ErrUnsupportedProvider = errors.New("web_search: unsupported provider")
	ErrNotConfigured       = errors.New("web_search: no api key configured")
)

func NewWebSearcher(provider Provider, apiKey string, client *http.Client) (WebSearcher, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	switch provider {
	case SerperProvider:
		return serper.Search{APIKey: apiKey, Client: client}, nil
	case BraveProvider:
		return brave.Search{APIKey: apiKey, Client: client}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

// FromConfig prefers Brave when both keys are set.
func FromConfig(cfg config.WebSearchConfig) (WebSearcher, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	switch {
	case cfg.BraveAPIKey != "":
		return NewWebSearcher(BraveProvider, cfg.BraveAPIKey, client)
	case cfg.SerperAPIKey != "":
		return NewWebSearcher(SerperProvider, cfg.SerperAPIKey, client)
	default:
		return nil, ErrNotConfigured
	}
}
