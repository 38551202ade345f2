// Package requestlog reads and appends the append-only attach-request log.
// The log is newline-delimited JSON written by external tools; the
// supervisor only ever consumes the most recent valid entry.
package requestlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoRequest means the log is missing, empty, or contains no line with a
// usable path field.
var ErrNoRequest = errors.New("no attach request in log")

// Request is one parsed log line.
type Request struct {
	TS   int64  `json:"ts"`
	Path string `json:"path"`
}

// LastValid returns the most recent log line that parses as a request with
// a non-empty path. Malformed lines are skipped, never treated as errors;
// only a log with no usable line at all fails, with ErrNoRequest.
func LastValid(logPath string) (Request, error) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return Request{}, ErrNoRequest
	}

	lines := strings.Split(string(data), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			continue
		}
		if req.Path == "" {
			continue
		}
		return req, nil
	}

	return Request{}, ErrNoRequest
}

// Append writes one request line with the current timestamp. Used by the
// attach tool endpoint and the control server; the supervisor itself never
// writes the log.
func Append(logPath, path string) error {
	if dir := filepath.Dir(logPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create request log directory: %w", err)
		}
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open request log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(Request{TS: time.Now().UnixMilli(), Path: path})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append request: %w", err)
	}
	return nil
}
