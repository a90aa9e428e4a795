// Package preflight probes the capture target over plain HTTP before any
// browser is launched. A full Chrome boot is expensive and its failures are
// vague; a cheap probe up front distinguishes "site is down" and "you are
// behind a login wall" from genuine automation failures.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/John-Curcio/grepl-scraper/config"
)

// Report summarizes what the probe saw.
type Report struct {
	StatusCode int
	FinalURL   string
	// LoginWalled is set when the response is a login surface: either the
	// request landed on the login path or the body carries a password field.
	LoginWalled bool
}

// Probe issues a single GET against the collection URL and classifies the
// outcome.
type Probe struct {
	cfg       *config.Config
	collector *colly.Collector
	loginPath string
}

// NewProbe builds a probe from cfg. The collector is synchronous; preflight
// is one request, not a crawl.
func NewProbe(cfg *config.Config) (*Probe, error) {
	parsed, err := url.Parse(cfg.CollectionURL)
	if err != nil {
		return nil, fmt.Errorf("parse collection url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("collection url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
	)
	collector.SetRequestTimeout(cfg.ReadinessTimeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ReadinessTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	loginPath := ""
	if login, err := url.Parse(cfg.LoginURL); err == nil {
		loginPath = login.Path
	}

	return &Probe{cfg: cfg, collector: collector, loginPath: loginPath}, nil
}

// WithTransport overrides the collector transport.
func (p *Probe) WithTransport(rt http.RoundTripper) {
	p.collector.WithTransport(rt)
}

// Run performs the probe. A login wall or non-2xx status is reported, not
// returned as an error; only transport failures are errors.
func (p *Probe) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	var probeErr error

	p.collector.OnResponse(func(r *colly.Response) {
		report.StatusCode = r.StatusCode
		report.FinalURL = r.Request.URL.String()

		body := strings.ToLower(string(r.Body))
		if strings.Contains(body, `type="password"`) || strings.Contains(body, "type='password'") {
			report.LoginWalled = true
		}
		if p.loginPath != "" && r.Request.URL.Path == p.loginPath {
			report.LoginWalled = true
		}
	})

	p.collector.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
			report.StatusCode = statusCode
		}
		probeErr = classifyError(err, statusCode)
		slog.Error("preflight request failed",
			slog.String("url", p.cfg.CollectionURL),
			slog.String("category", ErrorTypeLabel(probeErr)),
			slog.Any("error", err),
		)
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.collector.Visit(p.cfg.CollectionURL); err != nil {
		return nil, fmt.Errorf("preflight visit: %w", err)
	}
	p.collector.Wait()

	if probeErr != nil {
		// 403 and 429 responses also surface through OnError; the report
		// still carries the status so the caller can decide to continue.
		var forbidden ErrForbidden
		var rateLimited ErrRateLimited
		if errors.As(probeErr, &forbidden) || errors.As(probeErr, &rateLimited) {
			return report, nil
		}
		return report, probeErr
	}

	slog.Info("preflight probe complete",
		slog.Int("status", report.StatusCode),
		slog.Bool("login_walled", report.LoginWalled),
		slog.String("final_url", report.FinalURL),
	)
	return report, nil
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
	}

	return err
}
