// Package capture drives a remote browser through scroll/wait/advance cycles
// and persists every revealed scroll window as an append-only snapshot, so
// downstream extraction can run offline against stable markup instead of a
// live, rate-limited, auth-gated site.
package capture

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/John-Curcio/grepl-scraper/browser"
	"github.com/John-Curcio/grepl-scraper/config"
	"github.com/John-Curcio/grepl-scraper/models"
	"github.com/John-Curcio/grepl-scraper/store"
)

// StateKind enumerates the session states.
type StateKind int

const (
	// StateSkipping fast-forwards an already-captured page without persisting.
	StateSkipping StateKind = iota
	// StateCapturing performs scroll+ready+persist cycles on a page.
	StateCapturing
	// StateAdvancing hands off to the pagination controller.
	StateAdvancing
	// StateDone is reached only when the page budget is exhausted.
	StateDone
	// StateTerminatedNoMorePages is reached when pagination cannot proceed.
	// Like StateDone this is a clean shutdown, not an error.
	StateTerminatedNoMorePages
)

// State is one position in the session's lifecycle. Page and Scroll are only
// meaningful for the kinds that carry them.
type State struct {
	Kind   StateKind
	Page   int
	Scroll int
}

func (s State) String() string {
	switch s.Kind {
	case StateSkipping:
		return fmt.Sprintf("SKIPPING(%d)", s.Page)
	case StateCapturing:
		return fmt.Sprintf("CAPTURING(%d,%d)", s.Page, s.Scroll)
	case StateAdvancing:
		return "ADVANCING"
	case StateDone:
		return "DONE"
	case StateTerminatedNoMorePages:
		return "TERMINATED_NO_MORE_PAGES"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s.Kind))
	}
}

// recentMarkupWindow bounds the stall-detection fingerprint cache. Adjacent
// scroll windows legitimately overlap on a virtualized list; only an exact
// repeat of a recent full snapshot is flagged.
const recentMarkupWindow = 8

// Session is the top-level capture state machine. It owns nothing it did not
// receive: the browser, store, and prompter are injected at construction and
// torn down by the caller on every exit path.
type Session struct {
	cfg     *config.Config
	b       browser.Browser
	st      store.SnapshotStore
	prompt  Prompter
	Metrics *Metrics

	scroll *scrollDriver
	ready  *readinessDetector
	pager  *paginator

	// capturedAt is fixed once per session so every snapshot of one run
	// shares a timestamp and re-running the same logical session is
	// idempotent at the store.
	capturedAt      string
	pagesLeftToSkip int
	trace           []State
	recent          *lru.Cache[uint64, struct{}]
	result          models.SessionResult
}

// NewSession wires a session from its injected collaborators.
func NewSession(cfg *config.Config, b browser.Browser, st store.SnapshotStore, prompt Prompter) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("capture: config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	recent, err := lru.New[uint64, struct{}](recentMarkupWindow)
	if err != nil {
		return nil, fmt.Errorf("capture: markup cache: %w", err)
	}
	metrics := NewMetrics()
	return &Session{
		cfg:     cfg,
		b:       b,
		st:      st,
		prompt:  prompt,
		Metrics: metrics,
		scroll:  newScrollDriver(b, cfg, metrics),
		ready:   newReadinessDetector(b, cfg, metrics),
		pager:   newPaginator(b, cfg, prompt, metrics),
		recent:  recent,
	}, nil
}

// ManualLogin navigates to the login surface and blocks until the operator
// confirms. Call before Run; unavailable in headless mode.
func (s *Session) ManualLogin(ctx context.Context) error {
	if s.cfg.Headless {
		return fmt.Errorf("capture: manual login is unreachable in headless mode")
	}
	if err := s.b.Navigate(ctx, s.cfg.LoginURL); err != nil {
		return ErrBrowserLost{Err: err}
	}
	return s.prompt.Ack(ctx, "Please log in in the opened browser window.")
}

// Trace returns the ordered states the session has visited.
func (s *Session) Trace() []State {
	out := make([]State, len(s.trace))
	copy(out, s.trace)
	return out
}

// Run executes the session to a terminal state. The returned result is valid
// even on error: whatever was captured before a fatal failure remains usable,
// and external supervision can restart with a resume offset.
func (s *Session) Run(ctx context.Context) (*models.SessionResult, error) {
	s.result = models.SessionResult{StartTime: time.Now()}
	s.capturedAt = s.result.StartTime.UTC().Format(time.RFC3339)
	s.pagesLeftToSkip = s.cfg.ResumeFromPage - 1

	slog.Info("capture session starting",
		slog.String("collection_url", s.cfg.CollectionURL),
		slog.Int("scroll_steps_per_page", s.cfg.ScrollStepsPerPage),
		slog.Int("page_budget", s.cfg.PageBudget),
		slog.Int("pages_to_skip", s.pagesLeftToSkip),
		slog.String("captured_at", s.capturedAt),
	)

	if err := s.b.Navigate(ctx, s.cfg.CollectionURL); err != nil {
		return s.finish(ErrBrowserLost{Err: err})
	}

	page := 0
	for {
		if err := ctx.Err(); err != nil {
			return s.finish(err)
		}

		if s.pagesLeftToSkip > 0 {
			advanced, err := s.skipPage(ctx, page)
			if err != nil {
				return s.finish(err)
			}
			if !advanced {
				slog.Warn("cannot advance past page during skip-traversal, terminating",
					slog.Int("page", page),
				)
				s.enter(State{Kind: StateTerminatedNoMorePages})
				return s.finish(nil)
			}
			s.pagesLeftToSkip--
			s.result.PagesSkipped++
			s.Metrics.IncPage("skipped")
			page++
			continue
		}

		if err := s.capturePage(ctx, page); err != nil {
			return s.finish(err)
		}
		s.result.PagesCaptured++
		s.Metrics.IncPage("captured")

		if s.result.PagesCaptured >= s.cfg.PageBudget {
			s.enter(State{Kind: StateDone})
			return s.finish(nil)
		}

		s.enter(State{Kind: StateAdvancing})
		advanced, err := s.pager.advance(ctx)
		if err != nil {
			return s.finish(err)
		}
		if !advanced {
			s.enter(State{Kind: StateTerminatedNoMorePages})
			return s.finish(nil)
		}
		page++
	}
}

// skipPage runs the scroll/readiness cycles of a full page without persisting
// snapshots, then attempts to advance. Readiness still runs: the advance
// control only renders once the virtualized list has been walked.
func (s *Session) skipPage(ctx context.Context, page int) (bool, error) {
	s.enter(State{Kind: StateSkipping, Page: page})
	slog.Info("skipping page", slog.Int("page", page))

	for scroll := 0; scroll < s.cfg.ScrollStepsPerPage; scroll++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if _, err := s.scroll.scrollOnce(ctx); err != nil {
			return false, err
		}
		s.ready.waitForReady(ctx)
	}

	return s.pager.advance(ctx)
}

// capturePage performs scroll+ready+persist for every scroll step of a page.
func (s *Session) capturePage(ctx context.Context, page int) error {
	slog.Info("capturing page", slog.Int("page", page))

	for scroll := 0; scroll < s.cfg.ScrollStepsPerPage; scroll++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.enter(State{Kind: StateCapturing, Page: page, Scroll: scroll})

		outcome, err := s.scroll.scrollOnce(ctx)
		if err != nil {
			return err
		}
		if outcome.Degraded {
			s.result.DegradedScrolls++
		}

		if !s.ready.waitForReady(ctx) {
			s.result.ReadinessTimeouts++
		}

		markup, err := s.b.HTML(ctx)
		if err != nil {
			return ErrBrowserLost{Err: err}
		}
		s.noteStall(markup, page, scroll)

		snap := &models.Snapshot{
			CollectionURL: s.cfg.CollectionURL,
			PageIndex:     page,
			ScrollIndex:   scroll,
			CapturedAt:    s.capturedAt,
			Markup:        markup,
		}
		inserted, err := s.st.InsertIfAbsent(ctx, snap)
		if err != nil {
			return fmt.Errorf("persist snapshot %s: %w", snap.Key(), err)
		}
		if inserted {
			s.result.SnapshotsWritten++
			s.Metrics.IncSnapshot()
		} else {
			s.result.DuplicateInserts++
			s.Metrics.IncDuplicate()
			slog.Debug("snapshot already present", slog.String("key", snap.Key()))
		}

		if !sleepCtx(ctx, s.cfg.PauseBetweenSteps) {
			return ctx.Err()
		}
	}
	return nil
}

// noteStall flags snapshots whose markup exactly repeats a recent scroll
// window. Overlap between adjacent windows is normal on a virtualized list;
// a byte-identical repeat usually means the scroll position is stuck.
func (s *Session) noteStall(markup string, page, scroll int) {
	h := fnv.New64a()
	h.Write([]byte(markup))
	sum := h.Sum64()
	if _, seen := s.recent.Get(sum); seen {
		s.result.StalledSnapshots++
		s.Metrics.IncStalled()
		slog.Warn("markup repeats a recent scroll window",
			slog.Int("page", page),
			slog.Int("scroll", scroll),
		)
		return
	}
	s.recent.Add(sum, struct{}{})
}

func (s *Session) enter(st State) {
	s.trace = append(s.trace, st)
	slog.Debug("state", slog.String("state", st.String()))
}

// finish stamps the result with the terminal state and aggregated counters.
func (s *Session) finish(err error) (*models.SessionResult, error) {
	s.result.EndTime = time.Now()
	s.result.PaginationRetries = s.pager.retries
	if len(s.trace) > 0 {
		s.result.FinalState = s.trace[len(s.trace)-1].String()
	}
	s.result.Interventions = s.pager.interventions
	if err != nil {
		s.Metrics.IncError(errorTypeLabel(err))
		slog.Error("capture session aborted",
			slog.String("final_state", s.result.FinalState),
			slog.Any("error", err),
		)
		return &s.result, err
	}
	slog.Info("capture session finished",
		slog.String("final_state", s.result.FinalState),
		slog.Int("snapshots", s.result.SnapshotsWritten),
		slog.Int("pages_captured", s.result.PagesCaptured),
		slog.Int("pages_skipped", s.result.PagesSkipped),
	)
	return &s.result, nil
}
