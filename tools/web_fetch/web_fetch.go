package web_fetch

import (
	"context"
	"errors"
	"time"

	"github.com/mohammad-safakhou/lifeos/config"
	"github.com/mohammad-safakhou/lifeos/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/lifeos/tools/web_fetch/httpfetch"
	"github.com/mohammad-safakhou/lifeos/tools/web_fetch/models"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
)

type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

type FetcherType string

const (
	HTTPFetcherType     FetcherType = "http"
	ChromedpFetcherType FetcherType = "chromedp"
)

var ErrUnsupportedFetcher = errors.New("web_fetch: unsupported fetcher type")

func NewWebFetcher(fetcherType FetcherType, timeout time.Duration, maxChars int) (WebFetcher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	switch fetcherType {
	case HTTPFetcherType, "":
		return httpfetch.New(timeout, maxChars), nil
	case ChromedpFetcherType:
		return &chromedp.Fetch{Timeout: timeout, MaxChars: maxChars}, nil
	default:
		return nil, ErrUnsupportedFetcher
	}
}

// FromConfig returns nil when fetching is disabled.
func FromConfig(cfg config.FetchConfig) (WebFetcher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return NewWebFetcher(FetcherType(cfg.Renderer), cfg.Timeout, cfg.MaxChars)
}
