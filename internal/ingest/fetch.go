package ingest

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
	"golang.org/x/xerrors"
)

// ErrNotFound is returned by Open when an http(s) source answers 404,
// adapted from the teacher's repo.ErrNotFound.
type ErrNotFound struct {
	URL string
}

func (e *ErrNotFound) Error() string {
	return e.URL + ": HTTP status 404"
}

var httpClient = &http.Client{Transport: &http.Transport{
	MaxIdleConnsPerHost: 10,
}}

// Open returns a ReadCloser for a source's Path: a local file, or an
// http(s) URL fetched with gzip transport compression. This mirrors the
// teacher's internal/repo.Reader, adapted from fetching distri package
// repository files to fetching individual XML sources.
func Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		return os.Open(path)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, &ErrNotFound{URL: path}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, xerrors.Errorf("%s: HTTP status %v", path, resp.Status)
	}
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := pgzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, xerrors.Errorf("gzip transport body: %w", err)
		}
		return &gzipBody{body: resp.Body, zr: zr}, nil
	}
	return resp.Body, nil
}

// gzipBody closes both the inflate reader and the underlying HTTP body.
type gzipBody struct {
	body io.ReadCloser
	zr   *pgzip.Reader
}

func (g *gzipBody) Read(p []byte) (int, error) { return g.zr.Read(p) }

func (g *gzipBody) Close() error {
	g.zr.Close()
	return g.body.Close()
}
