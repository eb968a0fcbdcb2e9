package obs

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   Debug,
		"warn":    Warn,
		"warning": Warn,
		"error":   Error,
		"":        Info,
		"bogus":   Info,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNopLoggerDiscardsEverything(t *testing.T) {
	var l Logger = NopLogger{}
	l.Logf(Error, "this must not panic: %d", 1) // nothing to assert beyond no panic
}

func TestStdLoggerFiltersBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := StdLogger{L: log.New(&buf, "", 0), Min: Warn}
	l.Logf(Info, "should not appear")
	if buf.Len() != 0 {
		t.Fatalf("buf = %q, want empty (Info below Warn min)", buf.String())
	}
	l.Logf(Error, "should appear %s", "here")
	if !strings.Contains(buf.String(), "should appear here") {
		t.Fatalf("buf = %q, want it to contain the message", buf.String())
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Fatalf("buf = %q, want it to contain the level tag", buf.String())
	}
}

func TestStdLoggerPrefixIsIncluded(t *testing.T) {
	var buf bytes.Buffer
	l := StdLogger{L: log.New(&buf, "", 0), Min: Debug, Pref: "coro-http"}
	l.Logf(Info, "hello")
	if !strings.Contains(buf.String(), "coro-http") {
		t.Fatalf("buf = %q, want it to contain the prefix", buf.String())
	}
}

func TestStdLoggerNoopWithoutUnderlyingLogger(t *testing.T) {
	var l StdLogger
	l.Logf(Error, "must not panic") // L is nil; Logf must guard against it
}
