package browser

import (
	"fmt"
	"log/slog"
	"os"
)

// ProfileDir is a disposable Chrome user-data directory. Each run gets a
// fresh one so the auth-gated target never sees a polluted profile, and the
// directory is removed on close.
type ProfileDir struct {
	Path string
}

// NewProfileDir creates a temp profile directory with the given prefix.
func NewProfileDir(prefix string) (*ProfileDir, error) {
	path, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, fmt.Errorf("browser: create profile dir: %w", err)
	}
	return &ProfileDir{Path: path}, nil
}

// Remove deletes the profile directory. Removal failures are logged and never
// escalate; a leaked temp directory must not block shutdown.
func (p *ProfileDir) Remove() {
	if p == nil || p.Path == "" {
		return
	}
	path := p.Path
	p.Path = ""
	if err := os.RemoveAll(path); err != nil {
		slog.Warn("profile dir removal failed", slog.String("path", path), slog.Any("error", err))
		return
	}
	slog.Debug("profile dir removed", slog.String("path", path))
}
