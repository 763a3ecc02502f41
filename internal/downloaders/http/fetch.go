package rangehttp

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tanq16/rangedl/internal/utils"
)

// Fetch requests bytes from..to (inclusive) of link. A server that ignores
// the Range header is only accepted when the range starts at zero; the body
// then runs past to and the caller stops reading at the segment end.
func (s *Source) Fetch(ctx context.Context, link string, from, to int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", from, to))
	req.Header.Set("Connection", "keep-alive")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusPartialContent:
		if resp.Header.Get("Content-Range") == "" {
			resp.Body.Close()
			return nil, fmt.Errorf("missing Content-Range header")
		}
	case resp.StatusCode == http.StatusOK && from == 0:
	case resp.StatusCode == http.StatusOK:
		resp.Body.Close()
		return nil, utils.ErrRangeRequestsNotSupported
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", utils.ErrUnexpectedStatus, resp.StatusCode)
	}
	return resp.Body, nil
}
