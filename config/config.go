// Package config holds the capture session configuration surface.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds capture session configuration.
type Config struct {
	CollectionURL string
	LoginURL      string

	// Backend selects the browser automation backend: rod or chromedp.
	Backend string
	// Headless runs with an isolated disposable profile and no visible
	// surface. Manual intervention is unreachable in this mode.
	Headless  bool
	SkipLogin bool
	UserAgent string

	ScrollStepsPerPage int
	PageBudget         int
	// ResumeFromPage is 1-based; pages before it are skip-traversed without
	// persisting snapshots.
	ResumeFromPage    int
	PauseBetweenSteps time.Duration

	// ContainerScrollPx is the per-step scroll increment for the virtualized
	// inner container; WindowScrollPx the larger fallback increment for the
	// top-level window.
	ContainerScrollPx int
	WindowScrollPx    int

	// ContainerSelector locates the virtualized scroll container.
	// MediaMarkerSelector matches the embedded-media element whose presence
	// signals that newly revealed content has rendered.
	// NextControlXPath matches candidate page-advance controls; the last
	// enabled match is the live one.
	ContainerSelector   string
	MediaMarkerSelector string
	NextControlXPath    string

	MaxAdvanceAttempts int
	ReadinessTimeout   time.Duration
	ElementWaitTimeout time.Duration
	RetryBackoff       time.Duration
	RetryBackoffMax    time.Duration

	Store       string // sqlite or es
	DBPath      string
	ESAddress   string
	ESUsername  string
	ESPassword  string
	ESIndex     string
	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns the tuned defaults for the listing target.
func DefaultConfig() *Config {
	return &Config{
		CollectionURL:       "https://outlierdb.com/",
		LoginURL:            "https://outlierdb.com/login",
		Backend:             "rod",
		Headless:            false,
		UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		ScrollStepsPerPage:  20,
		PageBudget:          5,
		ResumeFromPage:      1,
		PauseBetweenSteps:   1200 * time.Millisecond,
		ContainerScrollPx:   900,
		WindowScrollPx:      4000,
		ContainerSelector:   "div[style*='overflow: auto']",
		MediaMarkerSelector: "iframe[src*='youtube-nocookie.com/embed']",
		NextControlXPath:    "(//button[contains(@class,'bg-green-500') and not(@disabled)])[last()]",
		MaxAdvanceAttempts:  20,
		ReadinessTimeout:    10 * time.Second,
		ElementWaitTimeout:  5 * time.Second,
		RetryBackoff:        600 * time.Millisecond,
		RetryBackoffMax:     10 * time.Second,
		Store:               "sqlite",
		DBPath:              "outlierdb.sqlite",
		ESIndex:             "raw_page",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.CollectionURL == "" {
		return fmt.Errorf("collection URL cannot be empty")
	}
	parsed, err := url.Parse(c.CollectionURL)
	if err != nil {
		return fmt.Errorf("invalid collection URL: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("collection URL must include a host")
	}
	if c.Backend != "rod" && c.Backend != "chromedp" {
		return fmt.Errorf("backend must be rod or chromedp")
	}
	if c.ScrollStepsPerPage <= 0 {
		return fmt.Errorf("scroll steps per page must be positive")
	}
	if c.PageBudget <= 0 {
		return fmt.Errorf("page budget must be positive")
	}
	if c.ResumeFromPage < 1 {
		return fmt.Errorf("resume page is 1-based and must be at least 1")
	}
	if c.PauseBetweenSteps < 0 {
		return fmt.Errorf("pause between steps cannot be negative")
	}
	if c.ContainerScrollPx <= 0 || c.WindowScrollPx <= 0 {
		return fmt.Errorf("scroll increments must be positive")
	}
	if c.ContainerSelector == "" || c.MediaMarkerSelector == "" || c.NextControlXPath == "" {
		return fmt.Errorf("selectors cannot be empty")
	}
	if c.MaxAdvanceAttempts <= 0 {
		return fmt.Errorf("max advance attempts must be positive")
	}
	if c.ReadinessTimeout <= 0 {
		return fmt.Errorf("readiness timeout must be positive")
	}
	if c.ElementWaitTimeout <= 0 {
		return fmt.Errorf("element wait timeout must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	switch c.Store {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("db path cannot be empty for the sqlite store")
		}
	case "es":
		if c.ESAddress == "" {
			return fmt.Errorf("es address cannot be empty for the es store")
		}
		if c.ESIndex == "" {
			return fmt.Errorf("es index cannot be empty for the es store")
		}
	default:
		return fmt.Errorf("store must be sqlite or es")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	return nil
}

// EnvString reads a string environment override.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment override.
func EnvInt(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}
