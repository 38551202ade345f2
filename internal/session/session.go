// Package session owns the supervised child process and its pseudo-terminal.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	ptylib "github.com/creack/pty"
	"github.com/google/uuid"
)

// ErrLaunch means the child executable could not be located or started.
// This is fatal to the supervisor: there is nothing to supervise.
var ErrLaunch = errors.New("launch failed")

// Exit reports that a child process exited. SessionID identifies which
// session the child belonged to; after a restart, exits from the replaced
// session still arrive here and must be filtered out by the consumer.
type Exit struct {
	SessionID string
	Code      int
}

// Session is one live child process bound to a pseudo-terminal.
type Session struct {
	ID  string
	cmd *exec.Cmd
	pty *os.File // master side (read + write)
}

// Manager spawns sessions and delivers their exit notifications on a
// shared channel.
type Manager struct {
	exits chan Exit
}

// NewManager creates a session manager.
func NewManager() *Manager {
	return &Manager{exits: make(chan Exit, 4)}
}

// Exits returns the channel carrying exit notifications for every session
// this manager has spawned, stale ones included.
func (m *Manager) Exits() <-chan Exit {
	return m.exits
}

// Spawn starts argv[0] with the given arguments on a new pseudo-terminal.
// Launch failures wrap ErrLaunch. A goroutine waits for the child and
// reports its exit code (and the session identity) on the Exits channel.
func (m *Manager) Spawn(argv []string, dir string, env []string, cols, rows uint16) (*Session, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrLaunch)
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found in PATH", ErrLaunch, argv[0])
	}

	cmd := exec.Command(path, argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}

	ptmx, err := ptylib.StartWithSize(cmd, &ptylib.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("%w: start pty: %v", ErrLaunch, err)
	}

	s := &Session{
		ID:  uuid.New().String()[:8],
		cmd: cmd,
		pty: ptmx,
	}

	go func() {
		err := cmd.Wait()
		code := 0
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else if err != nil {
			code = 1
		}
		m.exits <- Exit{SessionID: s.ID, Code: code}
	}()

	return s, nil
}

// Identity returns the session's identity token.
func (s *Session) Identity() string {
	return s.ID
}

// Output returns the read side of the child's terminal.
func (s *Session) Output() io.Reader {
	return s.pty
}

// Write forwards input bytes to the child's terminal.
func (s *Session) Write(p []byte) error {
	_, err := s.pty.Write(p)
	return err
}

// Resize changes the child's terminal size.
func (s *Session) Resize(cols, rows uint16) error {
	return ptylib.Setsize(s.pty, &ptylib.Winsize{Cols: cols, Rows: rows})
}

// Kill tears the session down, best effort. Errors are ignored: the caller
// has already moved on to a replacement session (or is exiting) and a child
// that lingers briefly is harmless.
func (s *Session) Kill() {
	s.pty.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}
