package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/John-Curcio/grepl-scraper/config"
)

// Chromedp drives Chrome through chromedp. Element handles are selector
// based: chromedp re-resolves the selector on each interaction, which is
// good enough for the short click-after-locate windows the session uses.
type Chromedp struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	pageCtx     context.Context
	cancelPage  context.CancelFunc
	profile     *ProfileDir
}

// NewChromedp builds the exec allocator and one browser context.
func NewChromedp(ctx context.Context, cfg *config.Config) (*Chromedp, error) {
	profile, err := NewProfileDir("grepl-profile-")
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserDataDir(profile.Path),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	pageCtx, cancelPage := chromedp.NewContext(allocCtx)

	// Force the browser process to start now so a broken Chrome install
	// fails construction rather than the first navigation.
	if err := chromedp.Run(pageCtx); err != nil {
		cancelPage()
		cancelAlloc()
		profile.Remove()
		return nil, fmt.Errorf("browser: start chrome: %w", err)
	}

	slog.Info("browser launched",
		slog.String("backend", "chromedp"),
		slog.Bool("headless", cfg.Headless),
		slog.String("profile", profile.Path),
	)

	return &Chromedp{
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		pageCtx:     pageCtx,
		cancelPage:  cancelPage,
		profile:     profile,
	}, nil
}

// Navigate loads url and waits best-effort for the body to be ready.
func (c *Chromedp) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := chromedp.Run(c.pageCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	waitCtx, cancel := context.WithTimeout(c.pageCtx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitReady("body")); err != nil {
		slog.Warn("wait ready after navigate", slog.String("url", url), slog.Any("error", err))
	}
	return nil
}

// Eval runs a JavaScript expression for its side effects.
func (c *Chromedp) Eval(ctx context.Context, js string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := chromedp.Run(c.pageCtx, chromedp.Evaluate(js, nil)); err != nil {
		return fmt.Errorf("browser: eval: %w", err)
	}
	return nil
}

// Element checks for a CSS selector match without waiting.
func (c *Chromedp) Element(ctx context.Context, selector string) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var found bool
	js := fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
	if err := chromedp.Run(c.pageCtx, chromedp.Evaluate(js, &found)); err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	if !found {
		return nil, ErrNoElement
	}
	return &chromedpElement{c: c, query: selector, byXPath: false}, nil
}

// WaitElement blocks until selector matches or timeout elapses.
func (c *Chromedp) WaitElement(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(c.pageCtx, timeout)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrWaitTimeout
		}
		return fmt.Errorf("browser: wait %q: %w", selector, err)
	}
	return nil
}

// WaitElementX blocks until the XPath matches a visible element.
func (c *Chromedp) WaitElementX(ctx context.Context, xpath string, timeout time.Duration) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	waitCtx, cancel := context.WithTimeout(c.pageCtx, timeout)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(xpath, chromedp.BySearch)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrWaitTimeout
		}
		return nil, fmt.Errorf("browser: wait xpath %q: %w", xpath, err)
	}
	return &chromedpElement{c: c, query: xpath, byXPath: true}, nil
}

// WaitReady polls document.readyState until it reports "complete".
func (c *Chromedp) WaitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var state string
		if err := chromedp.Run(c.pageCtx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
			return fmt.Errorf("browser: ready state: %w", err)
		}
		if state == "complete" {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrWaitTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// HTML serialises the full rendered document.
func (c *Chromedp) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var html string
	if err := chromedp.Run(c.pageCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("browser: get markup: %w", err)
	}
	return html, nil
}

// Visible reports whether the surface is visible to a human operator.
func (c *Chromedp) Visible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var visible bool
	if err := chromedp.Run(c.pageCtx, chromedp.Evaluate(`!document.hidden`, &visible)); err != nil {
		return false, fmt.Errorf("browser: visibility: %w", err)
	}
	return visible, nil
}

// Close cancels the browser contexts and removes the profile directory.
func (c *Chromedp) Close() error {
	c.cancelPage()
	c.cancelAlloc()
	c.profile.Remove()
	return nil
}

type chromedpElement struct {
	c       *Chromedp
	query   string
	byXPath bool
}

func (e *chromedpElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opt := chromedp.ByQuery
	if e.byXPath {
		opt = chromedp.BySearch
	}
	if err := chromedp.Run(e.c.pageCtx, chromedp.Click(e.query, opt)); err != nil {
		return fmt.Errorf("browser: click: %w", err)
	}
	return nil
}

func (e *chromedpElement) ScrollBy(ctx context.Context, px int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var js string
	if e.byXPath {
		js = fmt.Sprintf(
			`document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue.scrollTop += %d`,
			e.query, px)
	} else {
		js = fmt.Sprintf(`document.querySelector(%q).scrollTop += %d`, e.query, px)
	}
	if err := chromedp.Run(e.c.pageCtx, chromedp.Evaluate(js, nil)); err != nil {
		return fmt.Errorf("browser: element scroll: %w", err)
	}
	return nil
}
