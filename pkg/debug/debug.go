// Package debug provides category-gated debug logging for the gateway.
//
// Categories select WHAT is logged (STREAMGATE_DEBUG or config), the level
// selects HOW MUCH (STREAMGATE_LOG_LEVEL or config):
//
//	debug.Log(debug.Relay, "upstream response", "status", resp.StatusCode)
//	if debug.Enabled(debug.Queue) { /* expensive formatting */ }
//
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// Debug categories.
const (
	Relay     = "relay"
	Queue     = "queue"
	Stream    = "stream"
	Transport = "transport"
	Config    = "config"
	Reconnect = "reconnect"
	Auth      = "auth"
	All       = "all"
)

const (
	envCategories = "STREAMGATE_DEBUG"
	envLevel      = "STREAMGATE_LOG_LEVEL"
)

// LevelTrace is below slog.LevelDebug. At TRACE, full frames and request
// bodies are logged.
const LevelTrace = slog.LevelDebug - 4

// categories can be swapped by Init during a config reload while request
// goroutines read it.
var categories atomic.Pointer[map[string]bool]

func init() {
	setCategories(os.Getenv(envCategories))
}

func setCategories(s string) {
	m := parseCategories(s)
	categories.Store(&m)
}

// Init configures categories and the default slog handler. Environment
// values take precedence over the configured ones.
func Init(configCategories string, configLevel string) {
	cats := os.Getenv(envCategories)
	if cats == "" {
		cats = configCategories
	}
	setCategories(cats)

	level := os.Getenv(envLevel)
	if level == "" {
		level = configLevel
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})))
}

// Enabled reports whether debug output is active for category.
func Enabled(category string) bool {
	m := *categories.Load()
	return m[All] || m[category]
}

// Log emits a debug message for category. No-op when disabled.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for category.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE output would be emitted for category.
func TraceIsEnabled(category string) bool {
	if !Enabled(category) {
		return false
	}
	return slog.Default().Enabled(context.Background(), LevelTrace)
}

// Raw writes plain text to stderr, only at TRACE for an enabled category.
func Raw(category string, text string) {
	if !TraceIsEnabled(category) {
		return
	}
	fmt.Fprintln(os.Stderr, text)
}

// ParseLevel converts a level name to a slog.Level. Unknown names are INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories, for status reporting.
func Categories() []string {
	var result []string
	for k := range *categories.Load() {
		result = append(result, k)
	}
	return result
}

// Truncate shortens s to at most maxLen bytes without splitting a UTF-8
// sequence, appending "..." when it cuts.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
