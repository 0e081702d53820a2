package dedupe

import "context"

// Deduper remembers log keys for a while.
type Deduper interface {
	// Seen marks id and reports whether it had been marked before.
	Seen(ctx context.Context, id string) (alreadySeen bool, err error)
	// Forget unmarks id so a later delivery is accepted again.
	Forget(ctx context.Context, id string) error
}
