// Package monitor taps the child's output stream: it mirrors every chunk to
// the local terminal, watches a bounded trailing buffer for the restart
// marker, and fans chunks out to observers.
package monitor

import (
	"bytes"
	"io"
	"log"
	"sync"
)

// tailFactor sizes the trailing buffer relative to the marker. Retaining
// 8x the marker length guarantees a marker split across chunk boundaries is
// still visible once both fragments have arrived.
const tailFactor = 8

// Monitor detects the marker token in a chunked output stream.
type Monitor struct {
	mirror   io.Writer
	marker   []byte
	onMarker func()

	tail     []byte
	inFlight bool

	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// New creates a Monitor that mirrors chunks to w and calls onMarker when
// the marker appears in the stream. onMarker fires at most once per restart
// cycle; matches while a restart is in flight are dropped.
func New(w io.Writer, marker string, onMarker func()) *Monitor {
	return &Monitor{
		mirror:   w,
		marker:   []byte(marker),
		onMarker: onMarker,
		subs:     make(map[chan []byte]struct{}),
	}
}

// Feed mirrors chunk verbatim, appends it to the trailing buffer, and
// triggers onMarker if the marker is now present and no restart is in
// flight. The scan happens before the buffer head is truncated back to 8x
// the marker length, so a marker wholly inside one large chunk is seen even
// when trailing output in the same chunk would push it out of the retained
// tail.
func (m *Monitor) Feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	if _, err := m.mirror.Write(chunk); err != nil {
		log.Printf("monitor: mirror output: %v", err)
	}
	m.broadcast(chunk)

	m.tail = append(m.tail, chunk...)
	if !m.inFlight && bytes.Contains(m.tail, m.marker) {
		m.tail = nil
		m.inFlight = true
		m.onMarker()
		return
	}

	if keep := tailFactor * len(m.marker); len(m.tail) > keep {
		m.tail = m.tail[len(m.tail)-keep:]
	}
}

// RestartDone clears the in-flight guard after a restart completes.
func (m *Monitor) RestartDone() {
	m.inFlight = false
}

// Reset drops the trailing buffer. Called when a new session's output
// begins so residual bytes from the old child cannot fake a match.
func (m *Monitor) Reset() {
	m.tail = nil
}

// Subscribe registers an observer for output chunks and returns its channel
// with a cancel function. A subscriber that falls behind has chunks dropped
// rather than stalling the stream.
func (m *Monitor) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 64)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, ch)
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Monitor) broadcast(chunk []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.subs) == 0 {
		return
	}
	// Subscribers keep their copy past this call; never hand out the
	// caller's buffer.
	out := make([]byte, len(chunk))
	copy(out, chunk)
	for ch := range m.subs {
		select {
		case ch <- out:
		default:
		}
	}
}
