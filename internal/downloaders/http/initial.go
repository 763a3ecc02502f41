package rangehttp

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/rangedl/internal/utils"
)

// Source serves http and https resources through byte-range requests.
type Source struct {
	client utils.HTTPDoer
}

// Info is what a HEAD request reveals about a resource.
type Info struct {
	Size           int64
	FileName       string
	RangeSupported bool
	ContentType    string
}

func New(cfg utils.HTTPClientConfig) *Source {
	return &Source{client: utils.NewRangedHTTPClient(cfg)}
}

func NewWithClient(client utils.HTTPDoer) *Source {
	return &Source{client: client}
}

var filenameRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

func checkScheme(link string) error {
	parsedURL, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%w: %s", utils.ErrUnsupportedScheme, parsedURL.Scheme)
	}
	return nil
}

// ContentLength returns the size the server reports for link.
func (s *Source) ContentLength(ctx context.Context, link string) (int64, error) {
	info, err := s.Inspect(ctx, link)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (s *Source) Inspect(ctx context.Context, link string) (Info, error) {
	var info Info
	if err := checkScheme(link); err != nil {
		return info, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return info, fmt.Errorf("error creating request: %v", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return info, fmt.Errorf("error checking URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return info, fmt.Errorf("%w: %d", utils.ErrUnexpectedStatus, resp.StatusCode)
	}
	info.FileName = fileNameFromDisposition(resp.Header.Get("Content-Disposition"))
	info.RangeSupported = resp.Header.Get("Accept-Ranges") == "bytes"
	info.ContentType = resp.Header.Get("Content-Type")

	contentLength := resp.Header.Get("Content-Length")
	if contentLength == "" {
		return info, utils.ErrMissingContentLength
	}
	size, err := strconv.ParseInt(contentLength, 10, 64)
	if err != nil || size < 0 {
		return info, fmt.Errorf("invalid Content-Length %q", contentLength)
	}
	info.Size = size
	log.Debug().Str("op", "http/inspect").Msgf("%s reports %d bytes, ranges supported: %t", link, size, info.RangeSupported)
	return info, nil
}

func fileNameFromDisposition(contentDisposition string) string {
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		return ""
	}
	if fn, ok := params["filename"]; ok && fn != "" {
		return filenameRegex.ReplaceAllString(fn, "_")
	}
	if fn, ok := params["filename*"]; ok && strings.HasPrefix(fn, "UTF-8''") {
		unescaped, _ := url.PathUnescape(strings.TrimPrefix(fn, "UTF-8''"))
		return filenameRegex.ReplaceAllString(unescaped, "_")
	}
	return ""
}
