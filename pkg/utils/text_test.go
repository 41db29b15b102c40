package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
}

func TestCollapseWhitespace(t *testing.T) {
	if got := CollapseWhitespace("  hello   world \t\n"); got != "hello world" {
		t.Errorf("got %q", got)
	}
	if got := CollapseWhitespace(""); got != "" {
		t.Errorf("empty input: got %q", got)
	}
	if got := CollapseWhitespace("one"); got != "one" {
		t.Errorf("single word: got %q", got)
	}
}
