package settlement

import (
	"context"
	"time"

	"lv-settle/internal/metrics"
	"lv-settle/internal/store"
)

// Worker drains the settlement outbox: items whose synchronous attempt
// failed, or that were enqueued while no processor was registered, are
// retried until they settle or exhaust their attempts.
type Worker struct {
	svc      *Service
	interval time.Duration
}

func NewWorker(svc *Service, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Worker{svc: svc, interval: interval}
}

// Run blocks until ctx is done, draining the queue on every tick.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain claims and processes pending items until the queue is empty.
func (w *Worker) Drain(ctx context.Context) {
	for {
		item, err := w.svc.store.ClaimOutbox(ctx, maxOutboxAttempts)
		if err != nil {
			w.svc.log.Error().Err(err).Msg("claim outbox failed")
			return
		}
		if item == nil {
			return
		}
		metrics.OutboxRetries.WithLabelValues(string(item.Kind)).Inc()
		proc, ok := w.svc.processors[item.Kind]
		if !ok {
			markErr(ctx, w.svc.store, item.ID, "no processor registered")
			continue
		}
		if err := proc(ctx, item.Payload); err != nil {
			w.svc.log.Warn().Err(err).Str("outbox_id", item.ID).
				Str("kind", string(item.Kind)).Int("attempts", item.Attempts).
				Msg("outbox retry failed")
			markErr(ctx, w.svc.store, item.ID, err.Error())
			continue
		}
		if err := w.svc.store.MarkOutboxDone(ctx, item.ID); err != nil {
			w.svc.log.Error().Err(err).Str("outbox_id", item.ID).Msg("mark outbox done failed")
		}
	}
}

func markErr(ctx context.Context, st store.Store, id, msg string) {
	_ = st.MarkOutboxError(ctx, id, msg, maxOutboxAttempts)
}
