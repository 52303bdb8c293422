package httpfetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/lifeos/tools/web_fetch/models"
)

const userAgent = "lifeos/1.0 (+resource-check)"

// Fetch downloads a page over plain HTTP and extracts it with readability.
type Fetch struct {
	Client   *http.Client
	MaxChars int
}

func New(timeout time.Duration, maxChars int) *Fetch {
	return &Fetch{Client: &http.Client{Timeout: timeout}, MaxChars: maxChars}
}

func (f *Fetch) Exec(ctx context.Context, raw string) (models.Result, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.Result{}, errors.New("invalid url")
	}
	t0 := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.Result{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.Client.Do(req)
	if err != nil {
		return models.Result{URL: raw, Status: 599, RenderMS: int(time.Since(t0) / time.Millisecond)}, nil
	}
	defer resp.Body.Close()
	res := models.Result{URL: raw, Status: resp.StatusCode}
	if !res.OK() || !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		res.RenderMS = int(time.Since(t0) / time.Millisecond)
		return res, nil
	}
	article, err := readability.FromReader(io.LimitReader(resp.Body, 4<<20), u)
	res.RenderMS = int(time.Since(t0) / time.Millisecond)
	if err != nil {
		return res, nil
	}
	text := strings.TrimSpace(article.TextContent)
	if f.MaxChars > 0 && len(text) > f.MaxChars {
		text = text[:f.MaxChars]
	}
	res.Title = strings.TrimSpace(article.Title)
	res.Excerpt = strings.TrimSpace(article.Excerpt)
	res.SiteName = article.SiteName
	res.Text = text
	return res, nil
}
