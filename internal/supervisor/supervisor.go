// Package supervisor ties the pieces together: it runs the single event
// loop that owns the active session, watches the child's output for the
// restart marker, and drives the kill/respawn/nudge sequence.
package supervisor

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/openattach/openattach/internal/config"
	"github.com/openattach/openattach/internal/metrics"
	"github.com/openattach/openattach/internal/monitor"
	"github.com/openattach/openattach/internal/pathcheck"
	"github.com/openattach/openattach/internal/ratelimit"
	"github.com/openattach/openattach/internal/requestlog"
	"github.com/openattach/openattach/internal/session"
)

// Exit codes. Signal-driven termination uses the conventional 128+signal
// codes; a failed restart sequence uses ExitFatal.
const (
	ExitFatal      = 1
	ExitInterrupt  = 130
	ExitTerminated = 143
)

// Term is the supervisor's view of one live session. *session.Session
// implements it; tests substitute fakes.
type Term interface {
	Identity() string
	Write(p []byte) error
	Resize(cols, rows uint16) error
	Kill()
	Output() io.Reader
}

// SpawnFunc starts a child on a pseudo-terminal. session.Manager.Spawn is
// the real implementation.
type SpawnFunc func(argv []string, dir string, env []string, cols, rows uint16) (Term, error)

// outChunk is one piece of child output, tagged with the session it came
// from so residue from a killed session can be dropped.
type outChunk struct {
	sessionID string
	data      []byte
}

// Params carries the supervisor's collaborators.
type Params struct {
	Config *config.Config
	Argv   []string // the child command as supplied at startup
	Dir    string   // working directory for the child
	Spawn  SpawnFunc
	Exits  <-chan session.Exit
	Mirror io.Writer // local terminal; os.Stdout in production
}

// Supervisor owns all process-wide mutable state: the active session
// reference, the output tail buffer (via the monitor), and the restart
// window (via the limiter). Everything is mutated from the one event loop
// in Run.
type Supervisor struct {
	cfg   *config.Config
	argv  []string
	dir   string
	spawn SpawnFunc
	exits <-chan session.Exit

	mon     *monitor.Monitor
	limiter *ratelimit.Limiter

	// mu guards active and restarts, which Snapshot reads from the control
	// server's goroutines while the event loop writes them.
	mu         sync.Mutex
	active     Term
	restarts   int
	cols, rows uint16
	startedAt  time.Time

	outputc chan outChunk
	pending bool // marker seen, restart not yet performed

	// watch starts the output reader for a session; replaced in tests.
	watch func(Term)
}

// New builds a Supervisor. Run must be called to start it.
func New(p Params) *Supervisor {
	s := &Supervisor{
		cfg:       p.Config,
		argv:      p.Argv,
		dir:       p.Dir,
		spawn:     p.Spawn,
		exits:     p.Exits,
		limiter:   ratelimit.New(p.Config.RestartWindow, p.Config.MaxRestarts),
		cols:      80,
		rows:      24,
		startedAt: time.Now(),
		outputc:   make(chan outChunk, 16),
	}
	s.mon = monitor.New(p.Mirror, p.Config.Marker, func() { s.pending = true })
	s.watch = s.watchOutput
	return s
}

// Monitor exposes the output monitor so the control server can subscribe
// to the mirrored stream.
func (s *Supervisor) Monitor() *monitor.Monitor {
	return s.mon
}

// Status is a point-in-time snapshot for the control server.
type Status struct {
	SessionID string `json:"session_id"`
	Restarts  int    `json:"restarts"`
	UptimeSec int64  `json:"uptime_sec"`
	Marker    string `json:"marker"`
}

// Snapshot reports the current supervisor state.
func (s *Supervisor) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Restarts:  s.restarts,
		UptimeSec: int64(time.Since(s.startedAt).Seconds()),
		Marker:    s.cfg.Marker,
	}
	if s.active != nil {
		st.SessionID = s.active.Identity()
	}
	return st
}

// setActive publishes a new active-session reference. The event loop is
// the only writer; the lock pairs with Snapshot's reads.
func (s *Supervisor) setActive(t Term) {
	s.mu.Lock()
	s.active = t
	s.mu.Unlock()
}

// Run spawns the child and serializes all events (child output, local
// input, resize, exit notifications, signals) onto one loop until the
// child exits or a restart step fails. Returns the process exit code.
func (s *Supervisor) Run() int {
	stdinFd := int(os.Stdin.Fd())
	var rawState *term.State
	if term.IsTerminal(stdinFd) {
		if w, h, err := term.GetSize(stdinFd); err == nil {
			s.cols, s.rows = uint16(w), uint16(h)
		}
		st, err := term.MakeRaw(stdinFd)
		if err != nil {
			log.Printf("supervisor: set raw mode: %v", err)
			return ExitFatal
		}
		rawState = st
	}
	restore := func() {
		if rawState != nil {
			term.Restore(stdinFd, rawState)
		}
	}

	active, err := s.spawn(s.argv, s.dir, nil, s.cols, s.rows)
	if err != nil {
		restore()
		log.Printf("supervisor: %v", err)
		return ExitFatal
	}
	s.setActive(active)
	metrics.SessionActive.Set(1)
	s.watch(active)

	stdinc := make(chan []byte, 16)
	go readInput(os.Stdin, stdinc)

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, unix.SIGWINCH)
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(winch)
	defer signal.Stop(sigc)

	for {
		select {
		case chunk := <-s.outputc:
			if s.active == nil || chunk.sessionID != s.active.Identity() {
				continue // residue from a replaced session
			}
			metrics.OutputBytesTotal.Add(float64(len(chunk.data)))
			s.mon.Feed(chunk.data)
			if s.pending {
				s.pending = false
				if err := s.performRestart(time.Now()); err != nil {
					restore()
					metrics.SessionActive.Set(0)
					log.Printf("supervisor: restart failed: %v", err)
					if s.active != nil {
						s.active.Kill()
					}
					return ExitFatal
				}
			}

		case b := <-stdinc:
			if s.active != nil {
				if err := s.active.Write(b); err != nil {
					log.Printf("supervisor: forward input: %v", err)
				}
			}

		case <-winch:
			if w, h, err := term.GetSize(stdinFd); err == nil {
				s.cols, s.rows = uint16(w), uint16(h)
				if s.active != nil {
					s.active.Resize(s.cols, s.rows)
				}
			}

		case e := <-s.exits:
			if s.active == nil || e.SessionID != s.active.Identity() {
				continue // stale child from a prior restart
			}
			restore()
			metrics.SessionActive.Set(0)
			return e.Code

		case sig := <-sigc:
			restore()
			if s.active != nil {
				s.active.Kill()
			}
			metrics.SessionActive.Set(0)
			if sig == unix.SIGTERM {
				return ExitTerminated
			}
			return ExitInterrupt
		}
	}
}

// performRestart replaces the active session with one launched with the
// resume and attach-image directives. Strict order: rate limit, request
// lookup, path validation, spawn, kill old, nudge. Any failure is fatal to
// the whole supervisor; there is no half-restarted mode.
func (s *Supervisor) performRestart(now time.Time) error {
	if err := s.limiter.Admit(now); err != nil {
		metrics.RestartsTotal.WithLabelValues("rate_limited").Inc()
		return err
	}

	req, err := requestlog.LastValid(s.requestLogPath())
	if err != nil {
		metrics.RestartsTotal.WithLabelValues("no_request").Inc()
		return err
	}

	validated, err := pathcheck.Validate(req.Path, s.cfg.Root)
	if err != nil {
		metrics.RestartsTotal.WithLabelValues("invalid_path").Inc()
		return err
	}

	argv := make([]string, 0, len(s.argv)+3)
	argv = append(argv, s.argv...)
	argv = append(argv, s.cfg.ResumeFlag, s.cfg.AttachFlag, validated)

	replacement, err := s.spawn(argv, s.dir, nil, s.cols, s.rows)
	if err != nil {
		metrics.RestartsTotal.WithLabelValues("spawn_failed").Inc()
		return err
	}

	// The old child is killed best-effort after the replacement is up; its
	// late exit notification is filtered out by identity in the event loop.
	old := s.active
	s.setActive(replacement)
	if old != nil {
		old.Kill()
	}

	s.mon.Reset()
	s.watch(replacement)

	if err := replacement.Write([]byte(s.cfg.Nudge)); err != nil {
		metrics.RestartsTotal.WithLabelValues("nudge_failed").Inc()
		return fmt.Errorf("write nudge: %w", err)
	}

	s.mu.Lock()
	s.restarts++
	s.mu.Unlock()
	s.mon.RestartDone()
	metrics.RestartsTotal.WithLabelValues("success").Inc()
	log.Printf("supervisor: restarted session %s with %s", replacement.Identity(), validated)
	return nil
}

func (s *Supervisor) requestLogPath() string {
	if filepath.IsAbs(s.cfg.RequestLog) {
		return s.cfg.RequestLog
	}
	return filepath.Join(s.cfg.Root, s.cfg.RequestLog)
}

// watchOutput pumps a session's output into the event loop. Ends when the
// PTY read fails, which happens when the session is killed or its child
// exits.
func (s *Supervisor) watchOutput(t Term) {
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := t.Output().Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				s.outputc <- outChunk{sessionID: t.Identity(), data: data}
			}
			if err != nil {
				return
			}
		}
	}()
}

func readInput(r io.Reader, out chan<- []byte) {
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			out <- data
		}
		if err != nil {
			return
		}
	}
}
