package session

import (
	"errors"
	"testing"
	"time"
)

func TestSpawnMissingExecutable(t *testing.T) {
	m := NewManager()

	_, err := m.Spawn([]string{"definitely-not-a-real-binary-1b2c3d"}, "", nil, 80, 24)
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("expected ErrLaunch, got %v", err)
	}
}

func TestSpawnEmptyCommand(t *testing.T) {
	m := NewManager()

	_, err := m.Spawn(nil, "", nil, 80, 24)
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("expected ErrLaunch, got %v", err)
	}
}

func TestExitNotificationCarriesIdentity(t *testing.T) {
	m := NewManager()

	s, err := m.Spawn([]string{"sh", "-c", "exit 7"}, "", nil, 80, 24)
	if err != nil {
		t.Fatalf("Spawn returned error: %v", err)
	}
	defer s.Kill()

	select {
	case exit := <-m.Exits():
		if exit.SessionID != s.ID {
			t.Errorf("expected exit for session %s, got %s", s.ID, exit.SessionID)
		}
		if exit.Code != 7 {
			t.Errorf("expected exit code 7, got %d", exit.Code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit notification")
	}
}

func TestDistinctSessionIDs(t *testing.T) {
	m := NewManager()

	a, err := m.Spawn([]string{"sh", "-c", "exit 0"}, "", nil, 80, 24)
	if err != nil {
		t.Fatalf("Spawn returned error: %v", err)
	}
	b, err := m.Spawn([]string{"sh", "-c", "exit 0"}, "", nil, 80, 24)
	if err != nil {
		t.Fatalf("Spawn returned error: %v", err)
	}
	defer a.Kill()
	defer b.Kill()

	if a.ID == b.ID {
		t.Errorf("expected distinct session IDs, both %s", a.ID)
	}
}
