package dedupe

import "strings"

// Option configures a Deduper.
type Option func(*seenSet)

// WithSeen preloads payloads that are already stored.
func WithSeen(data []string) Option {
	return func(d *seenSet) {
		for _, s := range data {
			d.seen[strings.TrimSpace(s)] = struct{}{}
		}
	}
}
