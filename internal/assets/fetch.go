// ABOUTME: Fetchers that open asset bytes from disk or over HTTP
// ABOUTME: Asset URLs are resolved against a base directory or base URL
package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fetcher opens the encoded bytes of an asset
type Fetcher interface {
	Fetch(ctx context.Context, assetURL string) (io.ReadCloser, error)
}

// FileFetcher resolves asset URLs as paths under BaseDir
type FileFetcher struct {
	BaseDir string
}

func (f FileFetcher) Fetch(_ context.Context, assetURL string) (io.ReadCloser, error) {
	rel := filepath.FromSlash(strings.TrimPrefix(assetURL, "/"))
	if !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("asset path escapes base dir: %s", assetURL)
	}
	return os.Open(filepath.Join(f.BaseDir, rel))
}

// HTTPFetcher resolves asset URLs against BaseURL
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPFetcher creates a fetcher with a bounded client timeout
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *HTTPFetcher) resolve(assetURL string) (string, error) {
	base, err := url.Parse(f.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(assetURL)
	if err != nil {
		return "", fmt.Errorf("parse asset url: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, assetURL string) (io.ReadCloser, error) {
	target, err := f.resolve(assetURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: %s", target, resp.Status)
	}
	return resp.Body, nil
}
