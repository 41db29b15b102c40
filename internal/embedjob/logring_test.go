package embedjob

import (
	"fmt"
	"testing"
	"time"
)

func entry(level, msg string) LogEntry {
	return LogEntry{Time: time.Now(), Level: level, Message: msg}
}

func TestLogRing_EvictsOldest(t *testing.T) {
	ring := newLogRing(3)
	for i := 1; i <= 5; i++ {
		ring.append(entry(LevelInfo, fmt.Sprintf("e%d", i)))
	}

	if ring.len() != 3 {
		t.Fatalf("len = %d, want 3", ring.len())
	}
	got := ring.recent(0, "")
	want := []string{"e5", "e4", "e3"}
	if len(got) != len(want) {
		t.Fatalf("recent returned %d entries", len(got))
	}
	for i, w := range want {
		if got[i].Message != w {
			t.Errorf("recent[%d] = %q, want %q", i, got[i].Message, w)
		}
	}
}

func TestLogRing_Limit(t *testing.T) {
	ring := newLogRing(10)
	for i := 1; i <= 5; i++ {
		ring.append(entry(LevelInfo, fmt.Sprintf("e%d", i)))
	}

	got := ring.recent(2, "")
	if len(got) != 2 || got[0].Message != "e5" || got[1].Message != "e4" {
		t.Errorf("recent(2) = %+v", got)
	}
}

func TestLogRing_LevelFilter(t *testing.T) {
	ring := newLogRing(10)
	ring.append(entry(LevelInfo, "i1"))
	ring.append(entry(LevelWarn, "w1"))
	ring.append(entry(LevelError, "x1"))
	ring.append(entry(LevelWarn, "w2"))

	warns := ring.recent(0, LevelWarn)
	if len(warns) != 2 || warns[0].Message != "w2" || warns[1].Message != "w1" {
		t.Errorf("warn entries = %+v", warns)
	}
	errs := ring.recent(0, LevelError)
	if len(errs) != 1 || errs[0].Message != "x1" {
		t.Errorf("error entries = %+v", errs)
	}
}

func TestLogRing_Clear(t *testing.T) {
	ring := newLogRing(3)
	for i := 0; i < 4; i++ {
		ring.append(entry(LevelInfo, "x"))
	}
	ring.clear()

	if ring.len() != 0 {
		t.Errorf("len after clear = %d", ring.len())
	}
	if got := ring.recent(0, ""); len(got) != 0 {
		t.Errorf("recent after clear = %+v", got)
	}

	// The ring must keep working after a clear.
	ring.append(entry(LevelInfo, "fresh"))
	if got := ring.recent(0, ""); len(got) != 1 || got[0].Message != "fresh" {
		t.Errorf("recent after refill = %+v", got)
	}
}
