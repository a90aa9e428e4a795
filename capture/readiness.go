package capture

import (
	"context"
	"errors"
	"log/slog"

	"github.com/John-Curcio/grepl-scraper/browser"
	"github.com/John-Curcio/grepl-scraper/config"
)

// readinessDetector decides when a scroll or page-advance has produced enough
// new content to be worth snapshotting. Both checks are best-effort: a
// timeout is a soft signal, the session snapshots anyway because partial
// content is still useful and waiting forever would stall the pipeline.
type readinessDetector struct {
	b       browser.Browser
	cfg     *config.Config
	metrics *Metrics
}

func newReadinessDetector(b browser.Browser, cfg *config.Config, metrics *Metrics) *readinessDetector {
	return &readinessDetector{b: b, cfg: cfg, metrics: metrics}
}

// waitForReady returns false when either check timed out. Callers never
// abort on false.
func (r *readinessDetector) waitForReady(ctx context.Context) bool {
	ready := true

	if err := r.b.WaitReady(ctx, r.cfg.ReadinessTimeout); err != nil {
		if ctx.Err() != nil {
			return false
		}
		if errors.Is(err, browser.ErrWaitTimeout) {
			slog.Warn("document ready timeout, continuing")
		} else {
			slog.Warn("document ready check failed, continuing", slog.Any("error", err))
		}
		r.metrics.IncReadinessTimeout()
		ready = false
	}

	if err := r.b.WaitElement(ctx, r.cfg.MediaMarkerSelector, r.cfg.ElementWaitTimeout); err != nil {
		if ctx.Err() != nil {
			return false
		}
		slog.Warn("media marker not detected, continuing",
			slog.String("selector", r.cfg.MediaMarkerSelector),
			slog.Any("error", err),
		)
		r.metrics.IncReadinessTimeout()
		ready = false
	}

	return ready
}
