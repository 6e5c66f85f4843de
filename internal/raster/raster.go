// Package raster loads image resources referenced by notebook cells and
// decodes them into pixel buffers for analysis.
package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"

	"github.com/hpungsan/nbaudit/internal/errors"
)

// Defaults applied when the matching Options field is zero.
const (
	DefaultMaxBytes  = 20 << 20
	DefaultMaxPixels = 40_000_000
)

// Options configures a Rasterizer.
type Options struct {
	// Origin is the notebook server origin. Empty selects local filesystem mode.
	Origin string
	// Timeout bounds one HTTP fetch. Zero means no client-side timeout.
	Timeout time.Duration
	// MaxBytes caps the bytes read for one image.
	MaxBytes int64
	// MaxPixels caps width*height of one image, checked before decoding.
	MaxPixels int64
	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// Rasterizer resolves image sources, fetches them, and decodes pixels.
// Safe for concurrent use; concurrent fetches of one URI are coalesced.
type Rasterizer struct {
	client   *http.Client
	origin   string
	maxBytes  int64
	maxPixels int64
	group    singleflight.Group
}

// New creates a Rasterizer.
func New(opts Options) *Rasterizer {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	maxPixels := opts.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Rasterizer{
		client:    client,
		origin:    strings.TrimRight(opts.Origin, "/"),
		maxBytes:  maxBytes,
		maxPixels: maxPixels,
	}
}

// Resolve turns an image reference from docPath into a loadable URI.
func (r *Rasterizer) Resolve(src, docPath string) (string, error) {
	return Resolve(src, r.origin, docPath)
}

// Resolve turns an image reference into a loadable URI.
//
// Absolute URLs pass through. With an origin, relative paths resolve to
// <origin>/files/<dir(docPath)>/<src>, and root-relative paths to
// <origin>/files/<src>. Without an origin, paths resolve against the
// notebook's directory on disk and are returned as file URLs.
func Resolve(src, origin, docPath string) (string, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return "", errors.NewInvalidRequest("image source is empty")
	}
	// data: URIs can be large and are never relative; skip url.Parse
	if strings.HasPrefix(src, "data:") {
		return src, nil
	}

	u, err := url.Parse(src)
	if err != nil {
		return "", errors.NewParseFailure("image source", src)
	}
	// Single-letter schemes are Windows drive letters, not URLs
	if len(u.Scheme) > 1 {
		return src, nil
	}

	if origin != "" {
		docDir := path.Dir(filepath.ToSlash(docPath))
		joined := path.Join(docDir, u.Path)
		if strings.HasPrefix(u.Path, "/") {
			joined = path.Clean(u.Path)
		}
		base, err := url.Parse(strings.TrimRight(origin, "/"))
		if err != nil || base.Scheme == "" {
			return "", errors.NewParseFailure("files origin", origin)
		}
		resolved := base.JoinPath("files", strings.TrimPrefix(joined, "/"))
		resolved.RawQuery = u.RawQuery
		return resolved.String(), nil
	}

	p := filepath.FromSlash(u.Path)
	if !filepath.IsAbs(p) {
		p = filepath.Join(filepath.Dir(docPath), p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errors.NewResourceUnavailable(src, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// Rasterize resolves src against docPath, loads it, and decodes it into a
// Sample. Every failure is reported as RESOURCE_UNAVAILABLE.
func (r *Rasterizer) Rasterize(ctx context.Context, src, docPath string) (*Sample, error) {
	label := truncate(src, 64)
	resolved, err := r.Resolve(src, docPath)
	if err != nil {
		return nil, errors.NewResourceUnavailable(label, err)
	}

	data, err := r.Load(ctx, resolved)
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewResourceUnavailable(label, fmt.Errorf("decode: %w", err))
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > r.maxPixels {
		return nil, errors.NewResourceUnavailable(label,
			fmt.Errorf("image is %dx%d, over %d pixels", cfg.Width, cfg.Height, r.maxPixels))
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewResourceUnavailable(label, fmt.Errorf("decode: %w", err))
	}
	if img.Bounds().Empty() {
		return nil, errors.NewResourceUnavailable(label, fmt.Errorf("image has no pixels"))
	}

	sample := NewSample(img)
	sample.Digest = digest(data)
	return sample, nil
}

// Load fetches the raw bytes of a resolved URI. Concurrent loads of the same
// URI share one fetch; callers must not modify the returned slice.
func (r *Rasterizer) Load(ctx context.Context, resolved string) ([]byte, error) {
	v, err, _ := r.group.Do(resolved, func() (any, error) {
		return r.load(ctx, resolved)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (r *Rasterizer) load(ctx context.Context, resolved string) ([]byte, error) {
	if strings.HasPrefix(resolved, "data:") {
		data, err := decodeDataURI(resolved)
		if err != nil {
			return nil, errors.NewResourceUnavailable(truncate(resolved, 64), err)
		}
		return data, nil
	}

	u, err := url.Parse(resolved)
	if err != nil {
		return nil, errors.NewResourceUnavailable(resolved, err)
	}

	switch u.Scheme {
	case "http", "https":
		return r.fetchHTTP(ctx, resolved)
	case "file":
		return r.readFile(u.Path)
	default:
		return nil, errors.NewResourceUnavailable(resolved, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
}

func (r *Rasterizer) fetchHTTP(ctx context.Context, resolved string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return nil, errors.NewResourceUnavailable(resolved, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.NewResourceUnavailable(resolved, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewResourceUnavailable(resolved, fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, errors.NewResourceUnavailable(resolved, err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, errors.NewResourceUnavailable(resolved, fmt.Errorf("image exceeds %d bytes", r.maxBytes))
	}
	return data, nil
}

func (r *Rasterizer) readFile(p string) ([]byte, error) {
	local := filepath.FromSlash(p)
	info, err := os.Stat(local)
	if err != nil {
		return nil, errors.NewResourceUnavailable(p, err)
	}
	if info.IsDir() {
		return nil, errors.NewResourceUnavailable(p, fmt.Errorf("is a directory"))
	}
	if info.Size() > r.maxBytes {
		return nil, errors.NewResourceUnavailable(p, fmt.Errorf("image exceeds %d bytes", r.maxBytes))
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return nil, errors.NewResourceUnavailable(p, err)
	}
	return data, nil
}

// decodeDataURI decodes data:[<mediatype>][;base64],<data>.
func decodeDataURI(uri string) ([]byte, error) {
	rest := strings.TrimPrefix(uri, "data:")
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("malformed data URI")
	}
	if strings.HasSuffix(meta, ";base64") {
		// Notebook outputs sometimes wrap base64 across lines
		payload = strings.Join(strings.Fields(payload), "")
		return base64.StdEncoding.DecodeString(payload)
	}
	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, err
	}
	return []byte(decoded), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
