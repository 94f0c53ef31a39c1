package occupancy

import (
	"context"

	"github.com/bedtrack/bedtrack/internal/domain/bed"
	"github.com/bedtrack/bedtrack/internal/platform/realtime"
)

// Watcher forwards every event to the wrapped publisher and re-checks the
// occupancy thresholds after each broadcast bed change.
type Watcher struct {
	next realtime.Publisher
	svc  *Service
}

func NewWatcher(next realtime.Publisher, svc *Service) *Watcher {
	return &Watcher{next: next, svc: svc}
}

func (w *Watcher) Broadcast(ctx context.Context, ev realtime.Event) error {
	err := w.next.Broadcast(ctx, ev)
	if ev.Type == bed.EventBedUpdated {
		if _, cerr := w.svc.CheckThresholds(ctx); cerr != nil {
			w.svc.logger.Warn().Err(cerr).Msg("occupancy check failed")
		}
	}
	return err
}

func (w *Watcher) Publish(ctx context.Context, topic string, ev realtime.Event) error {
	return w.next.Publish(ctx, topic, ev)
}
