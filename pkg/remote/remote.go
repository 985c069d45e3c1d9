// Package remote fetches rule documents over HTTPS, pinned to a sha256 so a
// bundle can't change under a repository silently.
package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrInvalidRef   = errors.New("invalid remote reference")
	ErrHashMismatch = errors.New("remote content hash mismatch")
	ErrFetch        = errors.New("fetch remote document")
)

// Ref is a pinned remote document reference, written as `<url>::<sha256>`.
type Ref struct {
	URL    string
	SHA256 string
}

// ParseRef parses a `<url>::<sha256>` reference.
func ParseRef(s string) (Ref, error) {
	url, hash, ok := strings.Cut(s, "::")
	if !ok || url == "" {
		return Ref{}, fmt.Errorf("%w: %q, want <url>::<sha256>", ErrInvalidRef, s)
	}

	hash = strings.ToLower(hash)
	if len(hash) != sha256.Size*2 {
		return Ref{}, fmt.Errorf("%w: %q has a malformed sha256", ErrInvalidRef, s)
	}

	if _, err := hex.DecodeString(hash); err != nil {
		return Ref{}, fmt.Errorf("%w: %q has a malformed sha256", ErrInvalidRef, s)
	}

	return Ref{URL: url, SHA256: hash}, nil
}

// FetcherOpt configures a [Fetcher].
type FetcherOpt func(*Fetcher)

// WithClient replaces the HTTP client.
func WithClient(client *http.Client) FetcherOpt {
	return func(f *Fetcher) {
		f.client = client
	}
}

// Fetcher downloads pinned documents into a local directory, keyed by hash.
// A document already present under its hash is reused without a request.
type Fetcher struct {
	client *http.Client
	dir    string
}

// NewFetcher creates a [Fetcher] storing documents under dir.
func NewFetcher(dir string, opts ...FetcherOpt) *Fetcher {
	f := &Fetcher{
		dir:    dir,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Get returns a local path for the referenced document, downloading and
// verifying it when not already present.
func (f *Fetcher) Get(ctx context.Context, ref Ref) (string, error) {
	path := filepath.Join(f.dir, ref.SHA256+".yaml")

	if data, err := os.ReadFile(path); err == nil { //nolint:gosec // G304: Potential file inclusion via variable.
		if contentSum(data) == ref.SHA256 {
			slog.Debug("remote document already present",
				slog.String("url", ref.URL),
				slog.String("path", path),
			)

			return path, nil
		}

		// Corrupted local copy. Refetch.
		_ = os.Remove(path)
	}

	data, err := f.download(ctx, ref.URL)
	if err != nil {
		return "", err
	}

	if sum := contentSum(data); sum != ref.SHA256 {
		return "", fmt.Errorf("%w: %s: got %s, want %s", ErrHashMismatch, ref.URL, sum, ref.SHA256)
	}

	err = os.MkdirAll(f.dir, 0o700)
	if err != nil {
		return "", fmt.Errorf("create remote document directory: %w", err)
	}

	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		return "", fmt.Errorf("write remote document: %w", err)
	}

	return path, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: unexpected status %s", ErrFetch, url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	return data, nil
}

func contentSum(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}
