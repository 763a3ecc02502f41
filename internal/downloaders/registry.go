// Package downloaders maps URL schemes to the sources that can serve them.
package downloaders

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"

	rangehttp "github.com/tanq16/rangedl/internal/downloaders/http"
	s3source "github.com/tanq16/rangedl/internal/downloaders/s3"
	"github.com/tanq16/rangedl/internal/utils"
)

// Source sizes a resource and fetches byte ranges of it.
type Source interface {
	ContentLength(ctx context.Context, url string) (int64, error)
	Fetch(ctx context.Context, url string, from, to int64) (io.ReadCloser, error)
}

// Registry dispatches each call to the source registered for the URL scheme.
// The S3 source is built on first use since it loads AWS configuration.
type Registry struct {
	mu      sync.Mutex
	sources map[string]Source
	s3Cfg   utils.S3ClientConfig
}

func NewRegistry(httpCfg utils.HTTPClientConfig, s3Cfg utils.S3ClientConfig) *Registry {
	h := rangehttp.New(httpCfg)
	return &Registry{
		sources: map[string]Source{"http": h, "https": h},
		s3Cfg:   s3Cfg,
	}
}

// Register overrides the source used for scheme.
func (r *Registry) Register(scheme string, src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[scheme] = src
}

func (r *Registry) Lookup(ctx context.Context, rawURL string) (Source, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if src, ok := r.sources[parsedURL.Scheme]; ok {
		return src, nil
	}
	if parsedURL.Scheme == "s3" {
		src, err := s3source.New(ctx, r.s3Cfg)
		if err != nil {
			return nil, err
		}
		r.sources["s3"] = src
		return src, nil
	}
	return nil, fmt.Errorf("%w: %q", utils.ErrUnsupportedScheme, parsedURL.Scheme)
}

func (r *Registry) ContentLength(ctx context.Context, rawURL string) (int64, error) {
	src, err := r.Lookup(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	return src.ContentLength(ctx, rawURL)
}

func (r *Registry) Fetch(ctx context.Context, rawURL string, from, to int64) (io.ReadCloser, error) {
	src, err := r.Lookup(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return src.Fetch(ctx, rawURL, from, to)
}
