package debug

import (
	"log/slog"
	"testing"
)

func withCategories(t *testing.T, s string) {
	t.Helper()
	orig := categories.Load()
	t.Cleanup(func() { categories.Store(orig) })
	setCategories(s)
}

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]bool
	}{
		{"empty", "", map[string]bool{}},
		{"single", "relay", map[string]bool{"relay": true}},
		{"multiple", "relay,queue", map[string]bool{"relay": true, "queue": true}},
		{"with spaces", " relay , queue ", map[string]bool{"relay": true, "queue": true}},
		{"uppercase normalized", "RELAY,Queue", map[string]bool{"relay": true, "queue": true}},
		{"empty segments", "relay,,queue", map[string]bool{"relay": true, "queue": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCategories(tt.input)
			if len(got) != len(tt.want) {
				t.Errorf("len(got) = %d, want %d", len(got), len(tt.want))
			}
			for k := range tt.want {
				if !got[k] {
					t.Errorf("got[%q] = false, want true", k)
				}
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	withCategories(t, "relay,queue")

	if !Enabled(Relay) {
		t.Error("relay should be enabled")
	}
	if !Enabled(Queue) {
		t.Error("queue should be enabled")
	}
	if Enabled(Reconnect) {
		t.Error("reconnect should not be enabled")
	}
}

func TestEnabled_All(t *testing.T) {
	withCategories(t, "all")

	for _, c := range []string{Relay, Stream, "anything"} {
		if !Enabled(c) {
			t.Errorf("%s should be enabled via 'all'", c)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"TRACE", LevelTrace},
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"this is a long string", 10, "this is a ..."},
		{"aé", 2, "a..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestLog_DisabledCategory(t *testing.T) {
	withCategories(t, "")

	Log(Relay, "test message", "key", "value")
	Trace(Relay, "trace message", "key", "value")
}
