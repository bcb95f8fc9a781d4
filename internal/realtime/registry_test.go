// internal/realtime/registry_test.go
package realtime

import (
	"context"
	"testing"
	"time"
)

func TestRegistryRebindPendingSession(t *testing.T) {
	registry := NewRegistry(time.Minute, 10)

	registry.RegisterUser(Session{SocketID: "s1", UserID: PendingUserID})
	if registry.IsUserActive(PendingUserID) {
		t.Error("Expected pending sentinel never to be indexed by user")
	}

	registry.RemoveUser("s1")
	registry.RegisterUser(Session{SocketID: "s1", UserID: "u1"})

	byUser, ok := registry.GetUserByUserID("u1")
	if !ok || byUser.SocketID != "s1" {
		t.Fatalf("Expected u1 to resolve to s1, got %+v (found=%v)", byUser, ok)
	}
	bySocket, ok := registry.GetUserBySocketID("s1")
	if !ok || bySocket.UserID != "u1" {
		t.Fatalf("Expected s1 to belong to u1, got %+v (found=%v)", bySocket, ok)
	}

	if !registry.RemoveUser("s1") {
		t.Error("Expected removal of a known session to succeed")
	}
	if _, ok := registry.GetUserBySocketID("s1"); ok {
		t.Error("Expected s1 to be gone")
	}
	if _, ok := registry.GetUserByUserID("u1"); ok {
		t.Error("Expected u1 to be gone")
	}
	if registry.IsUserActive("u1") {
		t.Error("Expected u1 to be inactive")
	}
}

func TestRegistryReplaceSameSocket(t *testing.T) {
	registry := NewRegistry(time.Minute, 10)

	registry.RegisterUser(Session{SocketID: "s1", UserID: "u1"})
	registry.RegisterUser(Session{SocketID: "s1", UserID: "u2"})

	if registry.IsUserActive("u1") {
		t.Error("Expected u1 to be unindexed after its socket was rebound")
	}
	if !registry.IsUserActive("u2") {
		t.Error("Expected u2 to be active")
	}
	if registry.Count() != 1 {
		t.Errorf("Expected 1 session, got %d", registry.Count())
	}
}

func TestRegistryRepointsToRemainingSession(t *testing.T) {
	registry := NewRegistry(time.Minute, 10)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	registry.RegisterUser(Session{SocketID: "s1", UserID: "u1", LastActivity: base})
	registry.RegisterUser(Session{SocketID: "s2", UserID: "u1", LastActivity: base.Add(time.Second)})

	current, _ := registry.GetUserByUserID("u1")
	if current.SocketID != "s2" {
		t.Fatalf("Expected newest registration to win, got %s", current.SocketID)
	}

	registry.RemoveUser("s2")
	current, ok := registry.GetUserByUserID("u1")
	if !ok || current.SocketID != "s1" {
		t.Errorf("Expected u1 to fall back to s1, got %+v (found=%v)", current, ok)
	}

	registry.RemoveUser("s1")
	if registry.IsUserActive("u1") {
		t.Error("Expected u1 to be inactive once all sessions are gone")
	}
}

func TestRegistryRemoveUnknownIsHarmless(t *testing.T) {
	registry := NewRegistry(time.Minute, 10)
	if registry.RemoveUser("nope") {
		t.Error("Expected removal of unknown session to report false")
	}
}

func TestRegistryEvictsAfterCeiling(t *testing.T) {
	registry := NewRegistry(time.Minute, 10)
	var evicted []Session
	registry.OnEvict(func(s Session) { evicted = append(evicted, s) })

	registry.RegisterUser(Session{SocketID: "s1", UserID: "u1"})

	for i := 1; i <= 10; i++ {
		attempts, gone := registry.IncrementReconnectAttempts("s1")
		if gone {
			t.Fatalf("Did not expect eviction at attempt %d", i)
		}
		if attempts != i {
			t.Errorf("Expected %d attempts, got %d", i, attempts)
		}
	}
	if _, gone := registry.IncrementReconnectAttempts("s1"); !gone {
		t.Fatal("Expected eviction on the 11th attempt")
	}

	if _, ok := registry.GetUserBySocketID("s1"); ok {
		t.Error("Expected evicted session to be removed")
	}
	if registry.IsUserActive("u1") {
		t.Error("Expected evicted user to be inactive")
	}
	if len(evicted) != 1 || evicted[0].SocketID != "s1" {
		t.Errorf("Expected eviction callback for s1, got %+v", evicted)
	}
}

func TestRegistryActivityResetsAttempts(t *testing.T) {
	registry := NewRegistry(time.Minute, 2)
	registry.RegisterUser(Session{SocketID: "s1", UserID: "u1"})

	registry.IncrementReconnectAttempts("s1")
	registry.IncrementReconnectAttempts("s1")
	if !registry.UpdateUserActivity("s1") {
		t.Fatal("Expected activity update to succeed")
	}

	session, _ := registry.GetUserBySocketID("s1")
	if session.ReconnectAttempts != 0 {
		t.Errorf("Expected attempts reset, got %d", session.ReconnectAttempts)
	}
	if _, gone := registry.IncrementReconnectAttempts("s1"); gone {
		t.Error("Did not expect eviction after reset")
	}
}

func TestRegistrySweepFlagsButKeepsIdleSessions(t *testing.T) {
	registry := NewRegistry(time.Minute, 10)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	registry.now = func() time.Time { return now }

	registry.RegisterUser(Session{SocketID: "s1", UserID: "u1"})
	registry.RegisterUser(Session{SocketID: "s2", UserID: "u2"})

	now = now.Add(90 * time.Second)
	registry.UpdateUserActivity("s2")

	flagged := registry.Sweep()
	if len(flagged) != 1 || flagged[0].SocketID != "s1" {
		t.Fatalf("Expected only s1 flagged, got %+v", flagged)
	}

	session, ok := registry.GetUserBySocketID("s1")
	if !ok {
		t.Fatal("Expected idle session to remain registered")
	}
	if !session.Idle {
		t.Error("Expected idle flag to be set")
	}

	registry.UpdateUserActivity("s1")
	session, _ = registry.GetUserBySocketID("s1")
	if session.Idle {
		t.Error("Expected activity to clear the idle flag")
	}
}

func TestRegistryStartStop(t *testing.T) {
	registry := NewRegistry(10*time.Millisecond, 10)
	registry.Start(context.Background())
	registry.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	registry.Stop()
	registry.Stop()
}

func TestRegistryAllOrdered(t *testing.T) {
	registry := NewRegistry(time.Minute, 10)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	registry.RegisterUser(Session{SocketID: "b", ConnectedAt: base.Add(time.Second)})
	registry.RegisterUser(Session{SocketID: "a", ConnectedAt: base})

	all := registry.All()
	if len(all) != 2 || all[0].SocketID != "a" || all[1].SocketID != "b" {
		t.Errorf("Expected sessions ordered by connection time, got %+v", all)
	}
	if all[0].UserID != PendingUserID {
		t.Errorf("Expected empty user id to become pending, got %q", all[0].UserID)
	}
}
