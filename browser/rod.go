package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/John-Curcio/grepl-scraper/config"
)

// Rod drives Chrome through go-rod. This is the primary backend: stealth
// pages keep the automation fingerprint low on the auth-gated target.
type Rod struct {
	browser *rod.Browser
	page    *rod.Page
	lnch    *launcher.Launcher
	profile *ProfileDir
}

// NewRod launches Chrome with a disposable profile and opens one stealth page.
func NewRod(cfg *config.Config) (*Rod, error) {
	profile, err := NewProfileDir("grepl-profile-")
	if err != nil {
		return nil, err
	}

	l := launcher.New().
		Headless(cfg.Headless).
		UserDataDir(profile.Path).
		Set("disable-blink-features", "AutomationControlled").
		Set("no-sandbox").
		Set("disable-dev-shm-usage")
	if !cfg.Headless {
		l = l.Set("start-maximized")
	}

	u, err := l.Launch()
	if err != nil {
		profile.Remove()
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		profile.Remove()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		l.Cleanup()
		profile.Remove()
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	if cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
			slog.Warn("set user agent failed", slog.Any("error", err))
		}
	}

	slog.Info("browser launched",
		slog.String("backend", "rod"),
		slog.Bool("headless", cfg.Headless),
		slog.String("profile", profile.Path),
	)

	return &Rod{browser: b, page: page, lnch: l, profile: profile}, nil
}

// Navigate loads url and waits best-effort for the load event.
func (r *Rod) Navigate(ctx context.Context, url string) error {
	if err := r.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := r.page.Context(ctx).WaitLoad(); err != nil {
		slog.Warn("wait load after navigate", slog.String("url", url), slog.Any("error", err))
	}
	return nil
}

// Eval runs a JavaScript expression for its side effects.
func (r *Rod) Eval(ctx context.Context, js string) error {
	if _, err := r.page.Context(ctx).Eval(js); err != nil {
		return fmt.Errorf("browser: eval: %w", err)
	}
	return nil
}

// Element returns the first match of a CSS selector without waiting.
func (r *Rod) Element(ctx context.Context, selector string) (Element, error) {
	has, el, err := r.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	if !has {
		return nil, ErrNoElement
	}
	return &rodElement{el: el}, nil
}

// WaitElement blocks until selector matches or timeout elapses.
func (r *Rod) WaitElement(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := r.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrWaitTimeout
		}
		return fmt.Errorf("browser: wait %q: %w", selector, err)
	}
	return nil
}

// WaitElementX blocks until the XPath matches or timeout elapses.
func (r *Rod) WaitElementX(ctx context.Context, xpath string, timeout time.Duration) (Element, error) {
	el, err := r.page.Context(ctx).Timeout(timeout).ElementX(xpath)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrWaitTimeout
		}
		return nil, fmt.Errorf("browser: wait xpath %q: %w", xpath, err)
	}
	return &rodElement{el: el}, nil
}

// WaitReady polls document.readyState until it reports "complete".
func (r *Rod) WaitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		res, err := r.page.Context(ctx).Eval(`document.readyState`)
		if err != nil {
			return fmt.Errorf("browser: ready state: %w", err)
		}
		if res.Value.Str() == "complete" {
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
func (r *Rod) HTML(ctx context.Context) (string, error) {
	res, err := r.page.Context(ctx).Eval(`document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get markup: %w", err)
	}
	return res.Value.Str(), nil
}

// Visible reports whether the surface is visible to a human operator.
func (r *Rod) Visible(ctx context.Context) (bool, error) {
	res, err := r.page.Context(ctx).Eval(`!document.hidden`)
	if err != nil {
		return false, fmt.Errorf("browser: visibility: %w", err)
	}
	return res.Value.Bool(), nil
}

// Close shuts down the page, browser, launcher, and profile directory.
func (r *Rod) Close() error {
	if r.page != nil {
		if err := r.page.Close(); err != nil {
			slog.Warn("close page", slog.Any("error", err))
		}
	}
	if r.browser != nil {
		if err := r.browser.Close(); err != nil {
			slog.Warn("close browser", slog.Any("error", err))
		}
	}
	if r.lnch != nil {
		r.lnch.Cleanup()
	}
	r.profile.Remove()
	return nil
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click(ctx context.Context) error {
	if err := e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click: %w", err)
	}
	return nil
}

func (e *rodElement) ScrollBy(ctx context.Context, px int) error {
	if _, err := e.el.Context(ctx).Eval(`(px) => { this.scrollTop += px }`, px); err != nil {
		return fmt.Errorf("browser: element scroll: %w", err)
	}
	return nil
}
