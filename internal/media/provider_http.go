package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// HTTPProvider fetches playlist tracks from the upstream catalog service.
type HTTPProvider struct {
	base string
	http *http.Client
}

func NewHTTPProvider(base string) *HTTPProvider {
	return &HTTPProvider{
		base: strings.TrimRight(base, "/"),
		// Per-request deadlines come from the resolver's context.
		http: &http.Client{},
	}
}

func (p *HTTPProvider) FetchCandidates(ctx context.Context, sourceRef string, limit int) ([]RawItem, error) {
	u := p.base + "/playlists/" + url.PathEscape(sourceRef) + "/tracks?limit=" + strconv.Itoa(limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	res, err := p.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		return nil, fmt.Errorf("provider returned status %d", res.StatusCode)
	}

	var payload struct {
		Tracks []RawItem `json:"tracks"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	return payload.Tracks, nil
}
