package worker

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"context"
)

// HandlerFetcher performs loopback fetches through an in-process HTTP
// handler (the API origin). A 5xx origin status is reported as a fetch
// failure so the manager's cache fallback engages, mirroring how an
// unreachable upstream looks to a network fetch; 2xx-4xx pass through as
// valid responses.
type HandlerFetcher struct {
	handler http.Handler
}

// NewHandlerFetcher wraps an http.Handler as a Fetcher.
func NewHandlerFetcher(h http.Handler) *HandlerFetcher {
	return &HandlerFetcher{handler: h}
}

// Fetch serves the URL through the wrapped handler.
func (f *HandlerFetcher) Fetch(ctx context.Context, url string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build loopback request: %w", err)
	}

	rec := &bufferRecorder{header: make(http.Header), status: http.StatusOK}
	f.handler.ServeHTTP(rec, req)

	if rec.status >= 500 {
		return Response{}, fmt.Errorf("origin unavailable: HTTP %d for %s", rec.status, url)
	}
	return Response{
		URL:         url,
		StatusCode:  rec.status,
		ContentType: rec.header.Get("Content-Type"),
		Body:        rec.buf.Bytes(),
	}, nil
}

// bufferRecorder is a minimal in-process http.ResponseWriter.
type bufferRecorder struct {
	header http.Header
	buf    bytes.Buffer
	status int
	wrote  bool
}

func (r *bufferRecorder) Header() http.Header { return r.header }

func (r *bufferRecorder) Write(p []byte) (int, error) {
	r.wrote = true
	return r.buf.Write(p)
}

func (r *bufferRecorder) WriteHeader(status int) {
	if !r.wrote {
		r.status = status
		r.wrote = true
	}
}

// FileFetcher serves app-shell assets from a directory, for the precache and
// static fall-through paths. "/" maps to index.html. A missing file is a 404
// response, not a fetch error.
type FileFetcher struct {
	root string
}

// NewFileFetcher serves files under root.
func NewFileFetcher(root string) *FileFetcher {
	return &FileFetcher{root: root}
}

// Fetch reads the asset for the URL path.
func (f *FileFetcher) Fetch(ctx context.Context, url string) (Response, error) {
	p := url
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "/" || p == "" {
		p = "/index.html"
	}
	p = path.Clean("/" + p)

	data, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(strings.TrimPrefix(p, "/"))))
	if err != nil {
		if os.IsNotExist(err) {
			return Response{URL: url, StatusCode: http.StatusNotFound}, nil
		}
		return Response{}, fmt.Errorf("read asset %s: %w", p, err)
	}

	ct := mime.TypeByExtension(path.Ext(p))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return Response{URL: url, StatusCode: http.StatusOK, ContentType: ct, Body: data}, nil
}

// RouteFetcher splits fetches between the API origin and the static asset
// source, the way the worker context sees one fetch surface over both.
type RouteFetcher struct {
	api    Fetcher
	static Fetcher
}

// NewRouteFetcher routes API-classified URLs to api and the rest to static.
func NewRouteFetcher(api, static Fetcher) *RouteFetcher {
	return &RouteFetcher{api: api, static: static}
}

// Fetch dispatches by the API path marker.
func (f *RouteFetcher) Fetch(ctx context.Context, url string) (Response, error) {
	if strings.Contains(url, apiPathMarker) {
		return f.api.Fetch(ctx, url)
	}
	return f.static.Fetch(ctx, url)
}
