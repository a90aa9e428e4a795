package capture

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/John-Curcio/grepl-scraper/browser"
	"github.com/John-Curcio/grepl-scraper/config"
	"github.com/John-Curcio/grepl-scraper/models"
)

// fakeElement records interactions with a located element.
type fakeElement struct {
	clicks    int
	clickErr  error
	scrolls   []int
	scrollErr error
}

func (e *fakeElement) Click(ctx context.Context) error {
	e.clicks++
	return e.clickErr
}

func (e *fakeElement) ScrollBy(ctx context.Context, px int) error {
	e.scrolls = append(e.scrolls, px)
	return e.scrollErr
}

// fakeBrowser is a scriptable Browser for session-level tests.
type fakeBrowser struct {
	navigated []string
	navErr    error

	evals   []string
	evalErr error

	containerEl  *fakeElement
	containerErr error

	waitElementErr error
	waitReadyErr   error

	htmlCalls int
	htmlFn    func(call int) string
	htmlErr   error

	visible    bool
	visibleErr error

	advanceEl  *fakeElement
	waitXCalls int
	// waitXResults scripts WaitElementX outcomes per call; the last entry
	// repeats once exhausted. nil means success.
	waitXResults []error
}

func (f *fakeBrowser) Navigate(ctx context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	return f.navErr
}

func (f *fakeBrowser) Eval(ctx context.Context, js string) error {
	f.evals = append(f.evals, js)
	return f.evalErr
}

func (f *fakeBrowser) Element(ctx context.Context, selector string) (browser.Element, error) {
	if f.containerErr != nil {
		return nil, f.containerErr
	}
	if f.containerEl == nil {
		f.containerEl = &fakeElement{}
	}
	return f.containerEl, nil
}

func (f *fakeBrowser) WaitElement(ctx context.Context, selector string, timeout time.Duration) error {
	return f.waitElementErr
}

func (f *fakeBrowser) WaitElementX(ctx context.Context, xpath string, timeout time.Duration) (browser.Element, error) {
	call := f.waitXCalls
	f.waitXCalls++
	var err error
	if n := len(f.waitXResults); n > 0 {
		if call < n {
			err = f.waitXResults[call]
		} else {
			err = f.waitXResults[n-1]
		}
	}
	if err != nil {
		return nil, err
	}
	if f.advanceEl == nil {
		f.advanceEl = &fakeElement{}
	}
	return f.advanceEl, nil
}

func (f *fakeBrowser) WaitReady(ctx context.Context, timeout time.Duration) error {
	return f.waitReadyErr
}

func (f *fakeBrowser) HTML(ctx context.Context) (string, error) {
	call := f.htmlCalls
	f.htmlCalls++
	if f.htmlErr != nil {
		return "", f.htmlErr
	}
	if f.htmlFn != nil {
		return f.htmlFn(call), nil
	}
	return fmt.Sprintf("<html><body>window %d</body></html>", call), nil
}

func (f *fakeBrowser) Visible(ctx context.Context) (bool, error) {
	return f.visible, f.visibleErr
}

func (f *fakeBrowser) Close() error {
	return nil
}

// fakeStore is an in-memory SnapshotStore preserving insert order.
type fakeStore struct {
	snaps     []*models.Snapshot
	keys      map[string]bool
	insertErr error
	// forceDuplicate makes every insert report an existing key.
	forceDuplicate bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{keys: make(map[string]bool)}
}

func (s *fakeStore) InsertIfAbsent(ctx context.Context, snap *models.Snapshot) (bool, error) {
	if s.insertErr != nil {
		return false, s.insertErr
	}
	if err := snap.Validate(); err != nil {
		return false, err
	}
	if s.forceDuplicate || s.keys[snap.Key()] {
		return false, nil
	}
	s.keys[snap.Key()] = true
	copied := *snap
	s.snaps = append(s.snaps, &copied)
	return true, nil
}

func (s *fakeStore) List(ctx context.Context, collectionURL string, limit, offset int) ([]*models.Snapshot, error) {
	var out []*models.Snapshot
	for _, snap := range s.snaps {
		if snap.CollectionURL == collectionURL {
			out = append(out, snap)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) MaxPageIndex(ctx context.Context, collectionURL string) (int, bool, error) {
	found := false
	max := 0
	for _, snap := range s.snaps {
		if snap.CollectionURL != collectionURL {
			continue
		}
		if !found || snap.PageIndex > max {
			max = snap.PageIndex
		}
		found = true
	}
	return max, found, nil
}

func (s *fakeStore) Count(ctx context.Context) (int64, error) {
	return int64(len(s.snaps)), nil
}

func (s *fakeStore) Close() error {
	return nil
}

// fakePrompter records intervention requests.
type fakePrompter struct {
	messages []string
	ackErr   error
}

func (p *fakePrompter) Ack(ctx context.Context, message string) error {
	p.messages = append(p.messages, message)
	return p.ackErr
}

func sessionConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.CollectionURL = "http://example.test/sessions"
	cfg.ScrollStepsPerPage = 3
	cfg.PageBudget = 2
	cfg.PauseBetweenSteps = 0
	cfg.MaxAdvanceAttempts = 2
	cfg.ReadinessTimeout = 10 * time.Millisecond
	cfg.ElementWaitTimeout = 10 * time.Millisecond
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Millisecond
	return cfg
}

func TestSessionRunCapturesBudgetedPages(t *testing.T) {
	cfg := sessionConfig()
	b := &fakeBrowser{}
	st := newFakeStore()

	s, err := NewSession(cfg, b, st, &fakePrompter{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.FinalState != "DONE" {
		t.Fatalf("final state = %q, want DONE", result.FinalState)
	}
	if result.PagesCaptured != 2 {
		t.Fatalf("pages captured = %d, want 2", result.PagesCaptured)
	}
	if result.SnapshotsWritten != 6 {
		t.Fatalf("snapshots = %d, want 6", result.SnapshotsWritten)
	}
	if len(b.navigated) != 1 || b.navigated[0] != cfg.CollectionURL {
		t.Fatalf("navigated = %v, want one visit to %s", b.navigated, cfg.CollectionURL)
	}

	wantTrace := []string{
		"CAPTURING(0,0)", "CAPTURING(0,1)", "CAPTURING(0,2)",
		"ADVANCING",
		"CAPTURING(1,0)", "CAPTURING(1,1)", "CAPTURING(1,2)",
		"DONE",
	}
	trace := s.Trace()
	if len(trace) != len(wantTrace) {
		t.Fatalf("trace length = %d, want %d (%v)", len(trace), len(wantTrace), trace)
	}
	for i, want := range wantTrace {
		if got := trace[i].String(); got != want {
			t.Fatalf("trace[%d] = %q, want %q", i, got, want)
		}
	}
}

func TestSessionSnapshotsShareOneTimestamp(t *testing.T) {
	cfg := sessionConfig()
	st := newFakeStore()

	s, err := NewSession(cfg, &fakeBrowser{}, st, &fakePrompter{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(st.snaps) == 0 {
		t.Fatalf("no snapshots written")
	}
	first := st.snaps[0].CapturedAt
	if _, err := time.Parse(time.RFC3339, first); err != nil {
		t.Fatalf("timestamp %q not RFC3339: %v", first, err)
	}
	for i, snap := range st.snaps {
		if snap.CapturedAt != first {
			t.Fatalf("snapshot %d timestamp %q differs from %q", i, snap.CapturedAt, first)
		}
	}
}

func TestSessionTerminatesWhenPaginationExhausted(t *testing.T) {
	cfg := sessionConfig()
	cfg.PageBudget = 5
	cfg.Headless = true
	b := &fakeBrowser{
		waitXResults: []error{browser.ErrWaitTimeout},
		visible:      false,
	}
	st := newFakeStore()

	s, err := NewSession(cfg, b, st, &fakePrompter{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.FinalState != "TERMINATED_NO_MORE_PAGES" {
		t.Fatalf("final state = %q, want TERMINATED_NO_MORE_PAGES", result.FinalState)
	}
	if result.PagesCaptured != 1 {
		t.Fatalf("pages captured = %d, want 1", result.PagesCaptured)
	}
	if result.SnapshotsWritten != cfg.ScrollStepsPerPage {
		t.Fatalf("snapshots = %d, want %d", result.SnapshotsWritten, cfg.ScrollStepsPerPage)
	}
	if b.waitXCalls != cfg.MaxAdvanceAttempts {
		t.Fatalf("advance attempts = %d, want %d", b.waitXCalls, cfg.MaxAdvanceAttempts)
	}
}

func TestSessionResumeSkipsPagesWithoutPersisting(t *testing.T) {
	cfg := sessionConfig()
	cfg.ResumeFromPage = 2
	cfg.PageBudget = 1
	b := &fakeBrowser{}
	st := newFakeStore()

	s, err := NewSession(cfg, b, st, &fakePrompter{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.FinalState != "DONE" {
		t.Fatalf("final state = %q, want DONE", result.FinalState)
	}
	if result.PagesSkipped != 1 {
		t.Fatalf("pages skipped = %d, want 1", result.PagesSkipped)
	}
	if result.PagesCaptured != 1 {
		t.Fatalf("pages captured = %d, want 1", result.PagesCaptured)
	}
	if len(st.snaps) != cfg.ScrollStepsPerPage {
		t.Fatalf("snapshots = %d, want %d", len(st.snaps), cfg.ScrollStepsPerPage)
	}
	for _, snap := range st.snaps {
		if snap.PageIndex != 1 {
			t.Fatalf("snapshot page index = %d, want 1", snap.PageIndex)
		}
	}

	trace := s.Trace()
	if trace[0].String() != "SKIPPING(0)" {
		t.Fatalf("trace[0] = %q, want SKIPPING(0)", trace[0])
	}
}

func TestSessionResumeSkipDepths(t *testing.T) {
	for _, resume := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("resume_from_%d", resume), func(t *testing.T) {
			cfg := sessionConfig()
			cfg.ResumeFromPage = resume
			cfg.PageBudget = 1
			st := newFakeStore()

			s, err := NewSession(cfg, &fakeBrowser{}, st, &fakePrompter{})
			if err != nil {
				t.Fatalf("new session: %v", err)
			}
			result, err := s.Run(context.Background())
			if err != nil {
				t.Fatalf("run: %v", err)
			}

			if result.FinalState != "DONE" {
				t.Fatalf("final state = %q, want DONE", result.FinalState)
			}
			if want := resume - 1; result.PagesSkipped != want {
				t.Fatalf("pages skipped = %d, want %d", result.PagesSkipped, want)
			}
			if result.PagesCaptured != 1 {
				t.Fatalf("pages captured = %d, want 1", result.PagesCaptured)
			}
			if len(st.snaps) != cfg.ScrollStepsPerPage {
				t.Fatalf("snapshots = %d, want %d", len(st.snaps), cfg.ScrollStepsPerPage)
			}
			for _, snap := range st.snaps {
				if snap.PageIndex != resume-1 {
					t.Fatalf("snapshot page index = %d, want %d", snap.PageIndex, resume-1)
				}
			}
		})
	}
}

func TestSessionTerminatesWhenSkipCannotAdvance(t *testing.T) {
	cfg := sessionConfig()
	cfg.ResumeFromPage = 3
	b := &fakeBrowser{
		waitXResults: []error{browser.ErrWaitTimeout},
		visible:      false,
	}
	st := newFakeStore()

	s, err := NewSession(cfg, b, st, &fakePrompter{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.FinalState != "TERMINATED_NO_MORE_PAGES" {
		t.Fatalf("final state = %q, want TERMINATED_NO_MORE_PAGES", result.FinalState)
	}
	if result.SnapshotsWritten != 0 {
		t.Fatalf("snapshots = %d, want 0 during skip-traversal", result.SnapshotsWritten)
	}
	if result.PagesSkipped != 0 {
		t.Fatalf("pages skipped = %d, want 0 (skip never completed)", result.PagesSkipped)
	}
}

func TestSessionCountsDuplicateInserts(t *testing.T) {
	cfg := sessionConfig()
	cfg.PageBudget = 1
	st := newFakeStore()
	st.forceDuplicate = true

	s, err := NewSession(cfg, &fakeBrowser{}, st, &fakePrompter{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.SnapshotsWritten != 0 {
		t.Fatalf("snapshots = %d, want 0", result.SnapshotsWritten)
	}
	if result.DuplicateInserts != cfg.ScrollStepsPerPage {
		t.Fatalf("duplicates = %d, want %d", result.DuplicateInserts, cfg.ScrollStepsPerPage)
	}
	if result.FinalState != "DONE" {
		t.Fatalf("final state = %q, want DONE (duplicates are not failures)", result.FinalState)
	}
}

func TestSessionFlagsStalledMarkup(t *testing.T) {
	cfg := sessionConfig()
	cfg.PageBudget = 1
	b := &fakeBrowser{
		htmlFn: func(call int) string { return "<html><body>frozen</body></html>" },
	}
	st := newFakeStore()

	s, err := NewSession(cfg, b, st, &fakePrompter{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if want := cfg.ScrollStepsPerPage - 1; result.StalledSnapshots != want {
		t.Fatalf("stalled = %d, want %d", result.StalledSnapshots, want)
	}
}

func TestSessionFailsFastWhenBrowserLost(t *testing.T) {
	cfg := sessionConfig()
	b := &fakeBrowser{htmlErr: errors.New("websocket closed")}
	st := newFakeStore()

	s, err := NewSession(cfg, b, st, &fakePrompter{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	result, err := s.Run(context.Background())
	if err == nil {
		t.Fatalf("expected error for lost browser")
	}
	var lost ErrBrowserLost
	if !errors.As(err, &lost) {
		t.Fatalf("error = %v, want ErrBrowserLost", err)
	}
	if result == nil {
		t.Fatalf("result should be returned even on failure")
	}
}

func TestSessionStopsOnContextCancel(t *testing.T) {
	cfg := sessionConfig()
	st := newFakeStore()

	s, err := NewSession(cfg, &fakeBrowser{}, st, &fakePrompter{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestManualLoginRejectedWhenHeadless(t *testing.T) {
	cfg := sessionConfig()
	cfg.Headless = true

	s, err := NewSession(cfg, &fakeBrowser{}, newFakeStore(), &fakePrompter{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.ManualLogin(context.Background()); err == nil {
		t.Fatalf("expected error for headless manual login")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{State{Kind: StateSkipping, Page: 2}, "SKIPPING(2)"},
		{State{Kind: StateCapturing, Page: 1, Scroll: 3}, "CAPTURING(1,3)"},
		{State{Kind: StateAdvancing}, "ADVANCING"},
		{State{Kind: StateDone}, "DONE"},
		{State{Kind: StateTerminatedNoMorePages}, "TERMINATED_NO_MORE_PAGES"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Fatalf("String() = %q, want %q", got, tt.want)
		}
	}
}
