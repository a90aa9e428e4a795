package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/John-Curcio/grepl-scraper/browser"
)

func TestScrollPrefersContainer(t *testing.T) {
	cfg := sessionConfig()
	b := &fakeBrowser{containerEl: &fakeElement{}}
	d := newScrollDriver(b, cfg, NewMetrics())

	outcome, err := d.scrollOnce(context.Background())
	if err != nil {
		t.Fatalf("scroll: %v", err)
	}
	if !outcome.Advanced || outcome.Degraded {
		t.Fatalf("outcome = %+v, want advanced and not degraded", outcome)
	}
	if got := b.containerEl.scrolls; len(got) != 1 || got[0] != cfg.ContainerScrollPx {
		t.Fatalf("container scrolls = %v, want one step of %d px", got, cfg.ContainerScrollPx)
	}
	if len(b.evals) != 0 {
		t.Fatalf("window scroll should not run when container is available: %v", b.evals)
	}
}

func TestScrollFallsBackToWindow(t *testing.T) {
	cfg := sessionConfig()
	b := &fakeBrowser{containerErr: browser.ErrNoElement}
	d := newScrollDriver(b, cfg, NewMetrics())

	outcome, err := d.scrollOnce(context.Background())
	if err != nil {
		t.Fatalf("scroll: %v", err)
	}
	if !outcome.Degraded {
		t.Fatalf("outcome = %+v, want degraded fallback", outcome)
	}
	if len(b.evals) != 1 {
		t.Fatalf("evals = %v, want one window scroll", b.evals)
	}
	want := fmt.Sprintf("%d", cfg.WindowScrollPx)
	if !strings.Contains(b.evals[0], want) {
		t.Fatalf("window scroll %q should use %s px", b.evals[0], want)
	}
}

func TestScrollBrowserFailureIsFatal(t *testing.T) {
	cfg := sessionConfig()
	b := &fakeBrowser{containerErr: errors.New("target crashed")}
	d := newScrollDriver(b, cfg, NewMetrics())

	_, err := d.scrollOnce(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	var lost ErrBrowserLost
	if !errors.As(err, &lost) {
		t.Fatalf("error = %v, want ErrBrowserLost", err)
	}
}

func TestScrollContainerScrollErrorIsFatal(t *testing.T) {
	cfg := sessionConfig()
	b := &fakeBrowser{containerEl: &fakeElement{scrollErr: errors.New("context deadline")}}
	d := newScrollDriver(b, cfg, NewMetrics())

	_, err := d.scrollOnce(context.Background())
	var lost ErrBrowserLost
	if !errors.As(err, &lost) {
		t.Fatalf("error = %v, want ErrBrowserLost", err)
	}
}
