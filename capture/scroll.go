package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/John-Curcio/grepl-scraper/browser"
	"github.com/John-Curcio/grepl-scraper/config"
)

// ScrollOutcome reports how a scroll step was performed. Degraded means the
// virtualized inner container was not found and the top-level window was
// scrolled instead; the step still succeeded.
type ScrollOutcome struct {
	Advanced bool
	Degraded bool
}

// scrollStrategy is one way of moving the listing forward. Strategies are
// tried in priority order; returning browser.ErrNoElement means "unavailable,
// try the next one", any other error is a browser failure.
type scrollStrategy struct {
	name     string
	degraded bool
	run      func(ctx context.Context) error
}

// scrollDriver issues one incremental scroll step per call against the first
// available strategy.
type scrollDriver struct {
	strategies []scrollStrategy
	metrics    *Metrics
}

func newScrollDriver(b browser.Browser, cfg *config.Config, metrics *Metrics) *scrollDriver {
	return &scrollDriver{
		metrics: metrics,
		strategies: []scrollStrategy{
			{
				name: "container",
				run: func(ctx context.Context) error {
					el, err := b.Element(ctx, cfg.ContainerSelector)
					if err != nil {
						return err
					}
					return el.ScrollBy(ctx, cfg.ContainerScrollPx)
				},
			},
			{
				name:     "window",
				degraded: true,
				run: func(ctx context.Context) error {
					return b.Eval(ctx, fmt.Sprintf("window.scrollBy(0, %d)", cfg.WindowScrollPx))
				},
			},
		},
	}
}

// scrollOnce performs one scroll step. A missing container is the degraded
// path, never a failure; only an unreachable browser is fatal.
func (d *scrollDriver) scrollOnce(ctx context.Context) (ScrollOutcome, error) {
	for _, strat := range d.strategies {
		err := strat.run(ctx)
		if errors.Is(err, browser.ErrNoElement) {
			slog.Debug("scroll strategy unavailable", slog.String("strategy", strat.name))
			continue
		}
		if err != nil {
			return ScrollOutcome{}, ErrBrowserLost{Err: err}
		}
		d.metrics.IncScrollStep(strat.name)
		if strat.degraded {
			slog.Warn("scroll container not found, scrolled window instead")
		}
		return ScrollOutcome{Advanced: true, Degraded: strat.degraded}, nil
	}
	// The window strategy cannot report unavailable, so this is unreachable
	// unless the strategy list is misconfigured.
	return ScrollOutcome{}, fmt.Errorf("no scroll strategy available")
}
