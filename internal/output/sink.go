package output

import (
	"context"

	"github.com/emmett/chime/internal/events"
)

// Pump subscribes to hub and writes its events to f until ctx is done or
// the hub closes
func Pump(ctx context.Context, hub *events.Hub, f Formatter, kinds ...events.Kind) error {
	ch, unsubscribe := hub.Subscribe(256)
	defer unsubscribe()
	return Drain(ctx, ch, f, kinds...)
}

// Drain writes events from ch to f until ch closes or ctx is done, in which
// case events already buffered are still written. Kinds restricts the
// written events; no kinds writes everything.
func Drain(ctx context.Context, ch <-chan events.Event, f Formatter, kinds ...events.Kind) error {
	wanted := make(map[events.Kind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}
	write := func(e events.Event) error {
		if len(wanted) > 0 && !wanted[e.Kind] {
			return nil
		}
		return f.WriteEvent(e)
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-ch:
					if !ok {
						return f.Flush()
					}
					if err := write(e); err != nil {
						return err
					}
				default:
					return f.Flush()
				}
			}
		case e, ok := <-ch:
			if !ok {
				return f.Flush()
			}
			if err := write(e); err != nil {
				return err
			}
		}
	}
}
