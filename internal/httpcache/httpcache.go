// Package httpcache is an on-disk cache for idempotent upstream GETs.
package httpcache

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTTL matches the one-day expiry upstream data is refreshed on.
const DefaultTTL = 24 * time.Hour

const fileExt = ".http"

// Transport serves fresh cached responses from dir and stores successful
// (200 and 206) GET responses there.
type Transport struct {
	dir    string
	ttl    time.Duration
	next   http.RoundTripper
	logger *slog.Logger
	now    func() time.Time
}

// New creates a caching transport in front of next (http.DefaultTransport if nil).
func New(dir string, ttl time.Duration, next http.RoundTripper, logger *slog.Logger) (*Transport, error) {
	if dir == "" {
		return nil, errors.New("httpcache: empty cache directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("httpcache: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		dir:    dir,
		ttl:    ttl,
		next:   next,
		logger: logger.With("component", "httpcache"),
		now:    time.Now,
	}, nil
}

func (t *Transport) path(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(t.dir, hex.EncodeToString(sum[:])+fileExt)
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.next.RoundTrip(req)
	}

	key := req.URL.String()
	p := t.path(key)
	if resp, ok := t.load(p, req); ok {
		t.logger.Debug("cache hit", "url", key)
		return resp, nil
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return resp, nil
	}

	raw, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return resp, nil
	}
	if err := writeAtomic(p, raw); err != nil {
		t.logger.Warn("cache write failed", "url", key, "error", err)
	}
	return resp, nil
}

func (t *Transport) load(p string, req *http.Request) (*http.Response, bool) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, false
	}
	if t.now().Sub(info.ModTime()) > t.ttl {
		_ = os.Remove(p)
		return nil, false
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), req)
	if err != nil {
		_ = os.Remove(p)
		return nil, false
	}
	return resp, true
}

func writeAtomic(p string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// Clear removes every cached response in dir, and dir itself once empty.
// A missing directory is not an error.
func Clear(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	if rest, err := os.ReadDir(dir); err == nil && len(rest) == 0 {
		_ = os.Remove(dir)
	}
	return removed, nil
}

// DefaultDir is the per-user cache location.
func DefaultDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "river-data-aggregation")
}
