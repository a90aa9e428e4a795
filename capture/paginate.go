package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/John-Curcio/grepl-scraper/browser"
	"github.com/John-Curcio/grepl-scraper/config"
)

const jitterScrollPx = 500

// paginator advances the listing to its next page. Dynamically rendered
// pagination controls are the least reliable part of the surface, so each
// call runs a bounded retry ladder: scroll to the bottom, wait for the last
// enabled advance control, click; on failure add corrective jitter and an
// increasing backoff; on exhaustion escalate to a human if one can see the
// browser, otherwise report no further pages.
type paginator struct {
	b       browser.Browser
	cfg     *config.Config
	prompt  Prompter
	metrics *Metrics

	retries       int
	interventions int
}

func newPaginator(b browser.Browser, cfg *config.Config, prompt Prompter, metrics *Metrics) *paginator {
	return &paginator{b: b, cfg: cfg, prompt: prompt, metrics: metrics}
}

// advance returns true when the session is on the next page (clicked or
// human-navigated), false when pagination cannot proceed. Only a lost
// browser is an error.
func (p *paginator) advance(ctx context.Context) (bool, error) {
	maxAttempts := p.cfg.MaxAdvanceAttempts

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		p.metrics.IncAdvanceAttempt()

		if attempt > 1 {
			p.retries++
			slog.Info("retrying page advance",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", maxAttempts),
			)
			// Corrective jitter: scrolling up slightly and back down
			// sometimes reveals controls a virtualized render left detached.
			if err := p.b.Eval(ctx, fmt.Sprintf("window.scrollBy(0, -%d)", jitterScrollPx)); err != nil {
				return false, ErrBrowserLost{Err: err}
			}
			if !sleepCtx(ctx, p.cfg.PauseBetweenSteps/2) {
				return false, ctx.Err()
			}
		}

		if err := p.b.Eval(ctx, "window.scrollTo(0, document.body.scrollHeight)"); err != nil {
			return false, ErrBrowserLost{Err: err}
		}

		el, err := p.b.WaitElementX(ctx, p.cfg.NextControlXPath, p.cfg.ElementWaitTimeout)
		if err == nil {
			if clickErr := el.Click(ctx); clickErr != nil {
				// Click interception is transient; fall through to retry.
				slog.Warn("advance control click failed",
					slog.Int("attempt", attempt),
					slog.Any("error", clickErr),
				)
			} else {
				slog.Info("advanced to next page", slog.Int("attempt", attempt))
				if !sleepCtx(ctx, p.cfg.PauseBetweenSteps) {
					return false, ctx.Err()
				}
				return true, nil
			}
		} else if !errors.Is(err, browser.ErrWaitTimeout) && !errors.Is(err, browser.ErrNoElement) {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, ErrBrowserLost{Err: err}
		}

		slog.Warn("advance control not available",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
		)
		if attempt < maxAttempts {
			if !sleepCtx(ctx, p.backoff(attempt)) {
				return false, ctx.Err()
			}
		}
	}

	p.metrics.IncError(errorTypeLabel(ErrAdvanceExhausted{Attempts: maxAttempts}))
	return p.escalate(ctx, maxAttempts)
}

// escalate hands control to a human operator when the surface is visible,
// otherwise terminates pagination.
func (p *paginator) escalate(ctx context.Context, attempts int) (bool, error) {
	if p.cfg.Headless {
		slog.Warn("pagination exhausted in headless mode, stopping",
			slog.Int("attempts", attempts),
		)
		return false, nil
	}
	visible, err := p.b.Visible(ctx)
	if err != nil {
		return false, ErrBrowserLost{Err: err}
	}
	if !visible {
		slog.Warn("browser surface not visible, cannot request manual intervention; stopping pagination",
			slog.Int("attempts", attempts),
		)
		return false, nil
	}

	p.interventions++
	p.metrics.IncIntervention()
	message := fmt.Sprintf(
		"MANUAL INTERVENTION NEEDED: the next-page control could not be found after %d attempts.\nPlease navigate to the next page manually in the browser window.",
		attempts,
	)
	if err := p.prompt.Ack(ctx, message); err != nil {
		return false, fmt.Errorf("manual intervention: %w", err)
	}
	slog.Info("resuming after manual intervention")
	return true, nil
}

// backoff grows the pause between attempts, capped at the configured max.
func (p *paginator) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := p.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base * time.Duration(1<<(attempt-1))
	if max := p.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// sleepCtx pauses for d, returning false if the context was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
