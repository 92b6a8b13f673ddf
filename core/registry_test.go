package orchestration

import (
	"testing"
	"time"
)

func TestRegistryTrackRemovesClosedSessions(t *testing.T) {
	registry := NewRegistry()
	session, _ := newTestSession(t, stubProviders())

	registry.Track(session)
	if got, ok := registry.Get(session.ID()); !ok || got != session {
		t.Fatalf("expected tracked session to be found")
	}

	handleFrames(t, session, stopFrame)
	waitForCondition(t, time.Second, "session removal", func() bool { return registry.Len() == 0 })
}

func TestRegistryCloseAll(t *testing.T) {
	registry := NewRegistry()
	first, firstConn := newTestSession(t, stubProviders())
	second, secondConn := newTestSession(t, stubProviders())
	registry.Add(first)
	registry.Add(second)

	registry.CloseAll()

	for _, session := range []*Session{first, second} {
		if session.State() != StateClosed || session.CloseReason() != CloseReasonShutdown {
			t.Fatalf("expected session closed for shutdown, got %s/%q", session.State(), session.CloseReason())
		}
	}
	if !firstConn.isClosed() || !secondConn.isClosed() {
		t.Fatalf("expected sockets to be closed")
	}
	if registry.Len() != 2 {
		t.Fatalf("Add does not remove closed sessions, expected 2, got %d", registry.Len())
	}
	registry.Remove(first.ID())
	if _, ok := registry.Get(first.ID()); ok {
		t.Fatalf("expected removed session to be gone")
	}
}
