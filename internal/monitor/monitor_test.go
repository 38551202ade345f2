package monitor

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const marker = "<<OPENATTACH:NEED_IMAGE>>"

func TestFeedMirrorsVerbatim(t *testing.T) {
	var out bytes.Buffer
	m := New(&out, marker, func() {})

	m.Feed([]byte("hello "))
	m.Feed([]byte("world"))

	if out.String() != "hello world" {
		t.Errorf("expected mirrored output, got %q", out.String())
	}
}

func TestMarkerInSingleChunk(t *testing.T) {
	var out bytes.Buffer
	fired := 0
	m := New(&out, marker, func() { fired++ })

	m.Feed([]byte("some output " + marker + " trailing"))

	if fired != 1 {
		t.Errorf("expected 1 trigger, got %d", fired)
	}
}

func TestMarkerSplitAcrossChunks(t *testing.T) {
	var out bytes.Buffer
	fired := 0
	m := New(&out, marker, func() { fired++ })

	m.Feed([]byte("prefix " + marker[:9]))
	m.Feed([]byte(marker[9:] + " suffix"))

	if fired != 1 {
		t.Errorf("expected 1 trigger for split marker, got %d", fired)
	}
}

func TestInFlightGuardSuppressesRetrigger(t *testing.T) {
	var out bytes.Buffer
	fired := 0
	m := New(&out, marker, func() { fired++ })

	m.Feed([]byte(marker))
	m.Feed([]byte(marker)) // residual echo during restart

	if fired != 1 {
		t.Errorf("expected guard to hold, got %d triggers", fired)
	}

	m.RestartDone()
	m.Feed([]byte(marker))
	if fired != 2 {
		t.Errorf("expected trigger after RestartDone, got %d", fired)
	}
}

func TestBufferClearedOnMatch(t *testing.T) {
	var out bytes.Buffer
	fired := 0
	m := New(&out, marker, func() { fired++ })

	m.Feed([]byte(marker))
	m.RestartDone()
	// Nothing of the old marker should linger in the tail.
	m.Feed([]byte("plain output"))

	if fired != 1 {
		t.Errorf("expected no retrigger from residual tail, got %d", fired)
	}
}

func TestTailTruncation(t *testing.T) {
	var out bytes.Buffer
	fired := 0
	m := New(&out, marker, func() { fired++ })

	// Push the first half of the marker out of the retained tail.
	m.Feed([]byte(marker[:9]))
	m.Feed([]byte(strings.Repeat("x", 8*len(marker))))
	m.Feed([]byte(marker[9:]))

	if fired != 0 {
		t.Errorf("expected no trigger after head truncation, got %d", fired)
	}
}

func TestMarkerInsideLargeChunk(t *testing.T) {
	var out bytes.Buffer
	fired := 0
	m := New(&out, marker, func() { fired++ })

	// The trailing output alone exceeds the retained tail; the marker must
	// still be seen because the scan runs before truncation.
	m.Feed([]byte("prefix " + marker + strings.Repeat("x", 8*len(marker))))

	if fired != 1 {
		t.Errorf("expected 1 trigger for marker inside a large chunk, got %d", fired)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("terminal gone")
}

func TestMirrorFailureDoesNotStopDetection(t *testing.T) {
	fired := 0
	m := New(failingWriter{}, marker, func() { fired++ })

	m.Feed([]byte(marker))

	if fired != 1 {
		t.Errorf("expected detection despite mirror write failure, got %d triggers", fired)
	}
}

func TestSubscribeReceivesChunks(t *testing.T) {
	var out bytes.Buffer
	m := New(&out, marker, func() {})

	ch, cancel := m.Subscribe()
	defer cancel()

	m.Feed([]byte("observable"))

	select {
	case got := <-ch:
		if string(got) != "observable" {
			t.Errorf("expected chunk copy, got %q", got)
		}
	default:
		t.Fatal("expected a chunk on the subscriber channel")
	}
}

func TestCancelledSubscriberStopsReceiving(t *testing.T) {
	var out bytes.Buffer
	m := New(&out, marker, func() {})

	ch, cancel := m.Subscribe()
	cancel()

	m.Feed([]byte("gone"))

	select {
	case got := <-ch:
		t.Errorf("expected no delivery after cancel, got %q", got)
	default:
	}
}
