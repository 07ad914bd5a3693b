package media

import "context"

// RawItem is a provider candidate before the playability filter.
type RawItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	PreviewURL  string `json:"preview_url"`
	DurationSec int    `json:"duration_sec"`
}

// Playable reports whether the provider shipped a usable preview asset.
func (r RawItem) Playable() bool {
	return r.PreviewURL != ""
}

// Item is a resolved, playable round item.
type Item struct {
	ID          string
	Title       string
	MediaRef    string
	DurationSec int
}

// Batch is the result of one Resolve call. Fallback marks built-in stand-in
// items so downstream layers can disclose them; it is never set in
// production mode.
type Batch struct {
	Items    []Item
	Fallback bool
}

type Provider interface {
	FetchCandidates(ctx context.Context, sourceRef string, limit int) ([]RawItem, error)
}
