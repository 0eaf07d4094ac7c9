// Package fetch downloads remote resources for ingestion, enforcing the
// size ceiling incrementally while streaming so an oversized resource is
// aborted mid-download instead of after being fully buffered.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/opendatateam/csvapi"
)

// ErrInvalidURL indicates the source address is not a fetchable URL.
var ErrInvalidURL = errors.New("fetch: invalid url")

// defaultTimeout bounds one whole download.
const defaultTimeout = 60 * time.Second

// Fetcher downloads source bytes over HTTP.
type Fetcher struct {
	client  *http.Client
	maxSize int64
}

// New returns a Fetcher with the given byte ceiling. maxSize <= 0 disables
// the ceiling.
func New(maxSize int64) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: defaultTimeout},
		maxSize: maxSize,
	}
}

// ValidateURL checks that an address is an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	return nil
}

// Fetch downloads the resource. The declared Content-Length is checked
// first when present, then the body is read through a limit so the ceiling
// holds even for resources of unknown size. Exceeding the ceiling returns
// csvapi.ErrSizeExceeded.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	if f.maxSize > 0 && resp.ContentLength > f.maxSize {
		return nil, csvapi.ErrSizeExceeded
	}

	reader := resp.Body
	if f.maxSize > 0 {
		data, err := io.ReadAll(io.LimitReader(reader, f.maxSize+1))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rawURL, err)
		}
		if int64(len(data)) > f.maxSize {
			return nil, csvapi.ErrSizeExceeded
		}
		return data, nil
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return data, nil
}
