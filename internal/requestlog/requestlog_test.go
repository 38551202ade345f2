package requestlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeLog(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "requests.jsonl")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestLastValidReturnsMostRecent(t *testing.T) {
	path := writeLog(t, `{"ts":1,"path":"./a.png"}
{"ts":2,"path":"./b.png"}
`)

	req, err := LastValid(path)
	if err != nil {
		t.Fatalf("LastValid returned error: %v", err)
	}
	if req.Path != "./b.png" {
		t.Errorf("expected ./b.png, got %q", req.Path)
	}
	if req.TS != 2 {
		t.Errorf("expected ts 2, got %d", req.TS)
	}
}

func TestLastValidSkipsMalformedTail(t *testing.T) {
	path := writeLog(t, `{"ts":1,"path":"./a.png"}
not json at all
{"ts":2,"path":"./b.png"}
{"ts":3}
{"ts":4,"path":""}

`)

	req, err := LastValid(path)
	if err != nil {
		t.Fatalf("LastValid returned error: %v", err)
	}
	if req.Path != "./b.png" {
		t.Errorf("expected ./b.png, got %q", req.Path)
	}
}

func TestLastValidEmptyLog(t *testing.T) {
	path := writeLog(t, "\n\n")

	if _, err := LastValid(path); !errors.Is(err, ErrNoRequest) {
		t.Fatalf("expected ErrNoRequest, got %v", err)
	}
}

func TestLastValidMissingLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.jsonl")

	if _, err := LastValid(path); !errors.Is(err, ErrNoRequest) {
		t.Fatalf("expected ErrNoRequest, got %v", err)
	}
}

func TestAppendThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "requests.jsonl")

	if err := Append(path, "./shots/new.png"); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := Append(path, "./shots/newer.png"); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	req, err := LastValid(path)
	if err != nil {
		t.Fatalf("LastValid returned error: %v", err)
	}
	if req.Path != "./shots/newer.png" {
		t.Errorf("expected ./shots/newer.png, got %q", req.Path)
	}
	if req.TS == 0 {
		t.Error("expected a nonzero timestamp")
	}
}
