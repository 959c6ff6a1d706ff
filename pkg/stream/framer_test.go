package stream

import (
	"reflect"
	"strings"
	"testing"
)

func TestFramer_SplitsOnLineEndings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"lf", "data: a\ndata: b\n", []string{"data: a", "data: b"}},
		{"crlf", "data: a\r\ndata: b\r\n", []string{"data: a", "data: b"}},
		{"cr", "data: a\rdata: b\r", []string{"data: a", "data: b"}},
		{"non-data lines dropped", "event: x\n: comment\n\ndata: a\nid: 1\n", []string{"data: a"}},
		{"whitespace trimmed", "   data: a   \n", []string{"data: a"}},
		{"no space after colon", "data:{\"x\":1}\n", []string{"data:{\"x\":1}"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewFramer().Push([]byte(tt.input))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFramer_CarriesIncompleteLine(t *testing.T) {
	f := NewFramer()

	if got := f.Push([]byte("data: {\"a\":")); len(got) != 0 {
		t.Fatalf("expected no frames, got %q", got)
	}
	if f.Buffered() == 0 {
		t.Fatal("expected carry-over bytes")
	}
	got := f.Push([]byte("1}\ndata: tail"))
	if want := []string{`data: {"a":1}`}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := f.Flush(); !reflect.DeepEqual(got, []string{"data: tail"}) {
		t.Errorf("flush = %q", got)
	}
	if f.Buffered() != 0 {
		t.Error("flush must reset the buffer")
	}
}

func TestFramer_FlushIgnoresNonData(t *testing.T) {
	f := NewFramer()
	f.Push([]byte("event: ping"))
	if got := f.Flush(); got != nil {
		t.Errorf("flush = %q, want nil", got)
	}
}

// Any split of a body must produce the same frames as pushing it whole.
func TestFramer_SplitIndependence(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"héllo 世界\"}}]}\r\n\r\n" +
		"event: message\ndata: {\"type\":\"message_stop\"}\n\n" +
		"data: [DONE]"
	want := Frames([]byte(body))
	if len(want) != 3 {
		t.Fatalf("expected 3 frames from whole body, got %q", want)
	}

	raw := []byte(body)
	for i := 0; i <= len(raw); i++ {
		for j := i; j <= len(raw); j += 7 {
			f := NewFramer()
			var got []string
			got = append(got, f.Push(raw[:i])...)
			got = append(got, f.Push(raw[i:j])...)
			got = append(got, f.Push(raw[j:])...)
			got = append(got, f.Flush()...)
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("split at %d/%d: got %q, want %q", i, j, got, want)
			}
		}
	}
}

func TestFramer_ByteAtATimePreservesUTF8(t *testing.T) {
	body := "data: {\"text\":\"日本語\"}\n"
	f := NewFramer()
	var got []string
	for i := 0; i < len(body); i++ {
		got = append(got, f.Push([]byte{body[i]})...)
	}
	if len(got) != 1 || !strings.Contains(got[0], "日本語") {
		t.Errorf("got %q", got)
	}
}

func TestPayload(t *testing.T) {
	tests := map[string]string{
		"data: [DONE]":    "[DONE]",
		"data:[DONE]":     "[DONE]",
		"  data:  {}  ":   "{}",
		`data: {"a":"b"}`: `{"a":"b"}`,
	}
	for in, want := range tests {
		if got := Payload(in); got != want {
			t.Errorf("Payload(%q) = %q, want %q", in, got, want)
		}
	}
}
