// Package fetch downloads source files over HTTP(S) with retries, or reads
// them from the local filesystem.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Defaults.
const (
	DefaultRetries   = 4
	DefaultTimeout   = 10 * time.Minute
	DefaultUserAgent = "annul"
)

// Errors.
var (
	// ErrStatus is returned for a response that is not 200 OK.
	ErrStatus = errors.New("unexpected HTTP status")

	// ErrScheme is returned for a URL scheme that cannot be fetched.
	ErrScheme = errors.New("unsupported URL scheme")

	// ErrNoName is returned by Name for a URL with no final path segment.
	ErrNoName = errors.New("URL has no file name")
)

// Fetcher retrieves source files by URL.
type Fetcher struct {
	client    *nethttp.Client
	retries   int
	timeout   time.Duration
	userAgent string
	backoff   retryablehttp.Backoff
	logger    *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithRetries sets how many times a failed request is retried.
func WithRetries(n int) Option {
	return func(f *Fetcher) {
		f.retries = n
	}
}

// WithTimeout bounds a single fetch, including retries.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithBackoff sets the retry backoff policy.
func WithBackoff(b retryablehttp.Backoff) Option {
	return func(f *Fetcher) {
		f.backoff = b
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *nethttp.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithLogger sets the logger for fetch operations. Retries are logged
// through it.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		retries:   DefaultRetries,
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// log returns the configured logger or a discard logger if none was set.
func (f *Fetcher) log() *slog.Logger {
	if f.logger != nil {
		return f.logger
	}
	return slog.New(slog.DiscardHandler)
}

func (f *Fetcher) retryClient() *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	if f.client != nil {
		rc.HTTPClient = f.client
	}
	rc.RetryMax = f.retries
	rc.Logger = f.log()
	if f.backoff != nil {
		rc.Backoff = f.backoff
	}
	return rc
}

// Fetch writes the content at rawURL to w and returns the number of bytes
// written. http and https URLs are downloaded; file URLs and plain paths are
// read from disk.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, u, w)
	case "file", "":
		return fetchFile(u, w)
	default:
		return 0, fmt.Errorf("%s: %w", u.Scheme, ErrScheme)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL, w io.Writer) (int64, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, nethttp.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	start := time.Now()
	resp, err := f.retryClient().Do(req)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return 0, fmt.Errorf("get %s: %w: %s", u.Redacted(), ErrStatus, resp.Status)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", u.Redacted(), err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("download %s: got %d of %d bytes: %w", u.Redacted(), n, resp.ContentLength, io.ErrUnexpectedEOF)
	}

	f.log().Debug("fetched",
		slog.String("url", u.Redacted()),
		slog.Int64("bytes", n),
		slog.Duration("duration", time.Since(start)))
	return n, nil
}

func fetchFile(u *url.URL, w io.Writer) (int64, error) {
	p := u.Path
	if u.Scheme == "" {
		p = u.String()
	}
	src, err := os.Open(p) //nolint:gosec // caller-supplied source path
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return io.Copy(w, src)
}

// Name returns the final path segment of rawURL, which names the fetched
// file.
func Name(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", rawURL, err)
	}
	p := u.Path
	if u.Scheme == "" {
		p = rawURL
	}
	name := path.Base(p)
	if name == "." || name == "/" || name == "" || p[len(p)-1] == '/' {
		return "", fmt.Errorf("%s: %w", rawURL, ErrNoName)
	}
	return name, nil
}

// Resolve resolves ref relative to base.
func Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}
