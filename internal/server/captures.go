package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/pipeline"
	"github.com/mohammad-safakhou/lifeos/internal/search"
	"github.com/mohammad-safakhou/lifeos/internal/store"
)

// createCapture accepts JSON or multipart/form-data and returns 202 with the
// new capture id. Processing continues in the background.
func (s *Server) createCapture(c echo.Context) error {
	var (
		in   capture.RawInput
		cctx capture.Context
		err  error
	)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		in, cctx, err = readMultipart(c)
	} else {
		in, cctx, err = readJSON(c)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id, err := s.deps.Ingestor.Ingest(c.Request().Context(), pipeline.IngestRequest{
		UserID:  userID(c),
		Input:   in,
		Context: cctx,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidRequest) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusAccepted, CaptureAccepted{ID: id})
}

func readJSON(c echo.Context) (capture.RawInput, capture.Context, error) {
	var req CaptureRequest
	if err := c.Bind(&req); err != nil {
		return capture.RawInput{}, capture.Context{}, fmt.Errorf("invalid body: %w", err)
	}
	in := capture.RawInput{Text: req.Text, ScreenshotMIME: req.ScreenshotMIME, AudioMIME: req.AudioMIME}
	var err error
	if in.Screenshot, err = decodeBase64(req.ScreenshotBase64); err != nil {
		return in, req.Context, fmt.Errorf("screenshot_base64: %w", err)
	}
	if in.Audio, err = decodeBase64(req.AudioBase64); err != nil {
		return in, req.Context, fmt.Errorf("audio_base64: %w", err)
	}
	return in, req.Context, nil
}

func decodeBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func readMultipart(c echo.Context) (capture.RawInput, capture.Context, error) {
	in := capture.RawInput{Text: c.FormValue("text")}
	cctx := capture.Context{
		SourceApp:   c.FormValue("source_app"),
		WindowTitle: c.FormValue("window_title"),
		URL:         c.FormValue("url"),
		Timezone:    c.FormValue("timezone"),
	}
	var err error
	if in.Screenshot, in.ScreenshotMIME, err = formFile(c, "screenshot"); err != nil {
		return in, cctx, err
	}
	if in.Audio, in.AudioMIME, err = formFile(c, "audio"); err != nil {
		return in, cctx, err
	}
	return in, cctx, nil
}

func formFile(c echo.Context, name string) ([]byte, string, error) {
	fh, err := c.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", name, err)
	}
	data, err := readFile(fh)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", name, err)
	}
	return data, fh.Header.Get(echo.HeaderContentType), nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// getCapture returns the caller's capture. Other users' captures are
// reported as not found.
func (s *Server) getCapture(c echo.Context) error {
	rec, err := s.deps.Records.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) || (err == nil && rec.UserID != userID(c)) {
		return echo.NewHTTPError(http.StatusNotFound, "capture not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toResponse(rec))
}

func (s *Server) listCaptures(c echo.Context) error {
	recs, err := s.deps.Records.ListRecent(c.Request().Context(), userID(c), queryInt(c, "limit", 50))
	if err != nil {
		return err
	}
	out := make([]CaptureResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, toResponse(r))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) searchCaptures(c echo.Context) error {
	if s.deps.Search == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search disabled")
	}
	hits, err := s.deps.Search.Search(c.Request().Context(), userID(c), c.QueryParam("q"), queryInt(c, "limit", 20))
	if errors.Is(err, search.ErrEmptyQuery) {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hits)
}

func queryInt(c echo.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.QueryParam(name)); err == nil && v > 0 {
		return v
	}
	return def
}
