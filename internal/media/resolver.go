package media

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"time"

	"go.uber.org/zap"
)

const (
	// Some fraction of provider items ship without a preview asset, so we
	// over-fetch relative to the desired round count.
	overFetchFactor = 2
	overFetchCap    = 50

	defaultFetchTimeout = 10 * time.Second
	defaultRetryBackoff = 500 * time.Millisecond
)

// Resolver turns a source reference into a finite, deduplicated batch of
// playable round items. It applies the fetch timeout, a single retry, and the
// optional non-production fallback set.
type Resolver struct {
	provider Provider
	log      *zap.SugaredLogger

	fetchTimeout time.Duration
	retryBackoff time.Duration

	// allowFallback substitutes a built-in item set when the provider fails.
	// Local-play affordance only; the batch is flagged so the UI can
	// disclose it.
	allowFallback bool

	rng *rand.Rand
}

type ResolverOption func(*Resolver)

func WithFetchTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.fetchTimeout = d }
}

func WithRetryBackoff(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.retryBackoff = d }
}

func WithFallback() ResolverOption {
	return func(r *Resolver) { r.allowFallback = true }
}

func WithRand(rng *rand.Rand) ResolverOption {
	return func(r *Resolver) { r.rng = rng }
}

func NewResolver(provider Provider, log *zap.SugaredLogger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		provider:     provider,
		log:          log,
		fetchTimeout: defaultFetchTimeout,
		retryBackoff: defaultRetryBackoff,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var sourceRefPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

func ValidSourceRef(ref string) bool {
	return sourceRefPattern.MatchString(ref)
}

// Resolve fetches candidates for sourceRef and selects up to desiredCount
// distinct playable items. Fewer playable items than desired is not an error;
// the session simply runs short.
func (r *Resolver) Resolve(ctx context.Context, sourceRef string, desiredCount int) (Batch, error) {
	if !ValidSourceRef(sourceRef) {
		return Batch{}, ErrInvalidReference
	}
	if desiredCount < 1 {
		desiredCount = 1
	}

	limit := desiredCount * overFetchFactor
	if limit > overFetchCap {
		limit = overFetchCap
	}

	raw, err := r.fetch(ctx, sourceRef, limit)
	if err != nil && retryable(err) {
		r.log.Warnw("provider fetch failed, retrying once", "source_ref", sourceRef, "error", err)
		select {
		case <-time.After(r.retryBackoff):
		case <-ctx.Done():
			return Batch{}, ctx.Err()
		}
		raw, err = r.fetch(ctx, sourceRef, limit)
	}
	if err != nil {
		if r.allowFallback {
			r.log.Warnw("provider unavailable, using built-in fallback set", "source_ref", sourceRef, "error", err)
			return fallbackBatch(r.rng, desiredCount), nil
		}
		return Batch{}, err
	}

	playable := make([]RawItem, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, item := range raw {
		if !item.Playable() || seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		playable = append(playable, item)
	}
	if len(playable) == 0 {
		return Batch{}, ErrNoPlayableItems
	}

	return Batch{Items: r.selectItems(playable, desiredCount)}, nil
}

func (r *Resolver) fetch(ctx context.Context, sourceRef string, limit int) ([]RawItem, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	raw, err := r.provider.FetchCandidates(fetchCtx, sourceRef, limit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	return raw, nil
}

// selectItems draws min(desiredCount, len(playable)) items uniformly without
// replacement, so no item repeats within one session.
func (r *Resolver) selectItems(playable []RawItem, desiredCount int) []Item {
	n := desiredCount
	if len(playable) < n {
		n = len(playable)
	}

	items := make([]Item, 0, n)
	for _, idx := range r.rng.Perm(len(playable))[:n] {
		raw := playable[idx]
		items = append(items, Item{
			ID:          raw.ID,
			Title:       raw.Title,
			MediaRef:    raw.PreviewURL,
			DurationSec: raw.DurationSec,
		})
	}
	return items
}
