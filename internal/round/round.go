package round

// Round is one unit of the challenge: a time-boxed play phase followed by a
// reveal. Immutable once resolved, except for Revealed.
type Round struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	MediaRef    string `json:"media_ref"`
	DurationSec int    `json:"duration_sec"`
	Revealed    bool   `json:"revealed"`
}
