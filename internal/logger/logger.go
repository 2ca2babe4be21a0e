// Package logger builds the zerolog logger used by chatdesk.
// The terminal is reserved for conversation output, so logs go to a file.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const fileName = "chatdesk.log"

// New returns a logger writing JSON lines to w at the given level.
// Unknown or empty levels fall back to info.
func New(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// Nop returns a disabled logger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// Open creates the log file in the first writable log directory and returns
// a logger bound to it. The returned closer must be closed on exit.
func Open(level string) (zerolog.Logger, io.Closer, error) {
	var lastErr error
	for _, dir := range logDirs() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			lastErr = fmt.Errorf("create log directory %s: %w", dir, err)
			continue
		}
		path := filepath.Join(dir, fileName)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			lastErr = fmt.Errorf("open log file %s: %w", path, err)
			continue
		}
		return New(f, level), f, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no writable log directory found")
	}
	return Nop(), io.NopCloser(nil), lastErr
}

// logDirs returns candidate directories in priority order.
// 1) CHATDESK_LOG_DIR (explicit override)
// 2) ~/.local/share/chatdesk
// 3) $TMPDIR/chatdesk (fallback for restricted environments)
func logDirs() []string {
	seen := make(map[string]bool)
	var dirs []string

	add := func(dir string) {
		dir = strings.TrimSpace(dir)
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}

	add(os.Getenv("CHATDESK_LOG_DIR"))
	if home, err := os.UserHomeDir(); err == nil {
		add(filepath.Join(home, ".local", "share", "chatdesk"))
	}
	add(filepath.Join(os.TempDir(), "chatdesk"))
	return dirs
}

func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
