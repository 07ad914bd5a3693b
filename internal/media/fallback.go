package media

import "math/rand"

// Built-in stand-in clips for local play when the provider is unreachable.
// Never served in production mode; Batch.Fallback is set so the UI can
// disclose them.
var fallbackItems = []Item{
	{ID: "fallback-1", Title: "Eight Bit Anthem", MediaRef: "assets/fallback/eight-bit-anthem.mp3", DurationSec: 30},
	{ID: "fallback-2", Title: "Late Night Drive", MediaRef: "assets/fallback/late-night-drive.mp3", DurationSec: 30},
	{ID: "fallback-3", Title: "Paper Planes Waltz", MediaRef: "assets/fallback/paper-planes-waltz.mp3", DurationSec: 30},
	{ID: "fallback-4", Title: "Static Bloom", MediaRef: "assets/fallback/static-bloom.mp3", DurationSec: 30},
	{ID: "fallback-5", Title: "Harbor Lights", MediaRef: "assets/fallback/harbor-lights.mp3", DurationSec: 30},
	{ID: "fallback-6", Title: "Copper Kettle Stomp", MediaRef: "assets/fallback/copper-kettle-stomp.mp3", DurationSec: 30},
}

func fallbackBatch(rng *rand.Rand, desiredCount int) Batch {
	n := desiredCount
	if len(fallbackItems) < n {
		n = len(fallbackItems)
	}
	items := make([]Item, 0, n)
	for _, idx := range rng.Perm(len(fallbackItems))[:n] {
		items = append(items, fallbackItems[idx])
	}
	return Batch{Items: items, Fallback: true}
}
