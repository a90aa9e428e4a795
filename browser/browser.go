// Package browser provides the automation capability the capture session
// drives: navigation, script evaluation, element lookup, readiness waits, and
// full-markup serialisation against a real Chrome instance. Two backends are
// available (rod and chromedp); both present the same Browser surface.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/John-Curcio/grepl-scraper/config"
)

var (
	// ErrNoElement reports that an element lookup found no match. This is an
	// expected outcome for fallback logic, not a browser failure.
	ErrNoElement = errors.New("browser: element not found")

	// ErrWaitTimeout reports that a bounded wait expired before its condition
	// held. Callers treat this as a soft signal.
	ErrWaitTimeout = errors.New("browser: wait timed out")
)

// Element is a handle to a located DOM element.
type Element interface {
	// Click issues a left-button click on the element.
	Click(ctx context.Context) error
	// ScrollBy increments the element's scroll offset by px pixels.
	ScrollBy(ctx context.Context, px int) error
}

// Browser is the automation surface the capture session consumes. All calls
// are sequential; implementations hold one page and one scroll position.
type Browser interface {
	// Navigate loads url and waits best-effort for the load event.
	Navigate(ctx context.Context, url string) error
	// Eval runs a JavaScript expression for its side effects.
	Eval(ctx context.Context, js string) error
	// Element returns a handle to the first match of a CSS selector without
	// waiting; ErrNoElement if absent.
	Element(ctx context.Context, selector string) (Element, error)
	// WaitElement blocks until a CSS selector matches or timeout elapses
	// (ErrWaitTimeout).
	WaitElement(ctx context.Context, selector string, timeout time.Duration) error
	// WaitElementX blocks until an XPath expression matches a visible element
	// or timeout elapses, returning a handle on success.
	WaitElementX(ctx context.Context, xpath string, timeout time.Duration) (Element, error)
	// WaitReady blocks until document.readyState is "complete" or timeout
	// elapses (ErrWaitTimeout).
	WaitReady(ctx context.Context, timeout time.Duration) error
	// HTML serialises the full rendered document.
	HTML(ctx context.Context) (string, error)
	// Visible reports whether the browser surface is visible to a human
	// operator (i.e. not document.hidden).
	Visible(ctx context.Context) (bool, error)
	// Close tears down the page, the browser process, and the disposable
	// profile. Cleanup failures are logged, never returned as fatal.
	Close() error
}

// New constructs the backend selected by cfg.Backend.
func New(ctx context.Context, cfg *config.Config) (Browser, error) {
	switch cfg.Backend {
	case "rod":
		return NewRod(cfg)
	case "chromedp":
		return NewChromedp(ctx, cfg)
	default:
		return nil, fmt.Errorf("browser: unknown backend %q", cfg.Backend)
	}
}
