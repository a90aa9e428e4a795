package capture

import (
	"errors"
	"fmt"

	"github.com/John-Curcio/grepl-scraper/browser"
)

// ErrBrowserLost indicates the automation capability itself is unreachable
// (remote session died, websocket closed). This is the only fatal error class
// in the session: it is never retried here, and external supervision decides
// whether to restart with a resume offset.
type ErrBrowserLost struct {
	Err error
}

func (e ErrBrowserLost) Error() string {
	return fmt.Errorf("browser lost: %w", e.Err).Error()
}

func (e ErrBrowserLost) Unwrap() error {
	return e.Err
}

// ErrAdvanceExhausted indicates the page-advance control never became
// available within the attempt budget. The session terminates cleanly on it;
// whatever was captured remains valid.
type ErrAdvanceExhausted struct {
	Attempts int
}

func (e ErrAdvanceExhausted) Error() string {
	return fmt.Sprintf("advance control unavailable after %d attempts", e.Attempts)
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var lost ErrBrowserLost
	if errors.As(err, &lost) {
		return "browser_lost"
	}
	var exhausted ErrAdvanceExhausted
	if errors.As(err, &exhausted) {
		return "advance_exhausted"
	}
	if errors.Is(err, browser.ErrWaitTimeout) {
		return "wait_timeout"
	}
	if errors.Is(err, browser.ErrNoElement) {
		return "no_element"
	}
	return "other"
}
