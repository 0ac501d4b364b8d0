package client

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func registryClient(t *testing.T, id string) *Client {
	t.Helper()
	server, peer := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = peer.Close()
	})
	return New(server, "pipe", testPlayer(id))
}

func TestRegistryInsertAndGet(t *testing.T) {
	registry := NewRegistry(time.Minute, testLogger())
	c := registryClient(t, "p1")

	if err := registry.Insert(c); err != nil {
		t.Fatalf("Insert() returned error: %s", err)
	}

	found, ok := registry.Get("p1")
	if !ok {
		t.Fatal("expected inserted client to be resolvable")
	}
	if found != c {
		t.Error("expected Get() to return the same record instance")
	}

	if _, ok := registry.Get("p2"); ok {
		t.Error("expected lookup of an unknown id to fail")
	}
}

func TestRegistryInsertRace(t *testing.T) {
	registry := NewRegistry(time.Minute, testLogger())

	// Two connect attempts for the same player id completing concurrently:
	// exactly one may win the registry slot.
	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n] = registry.Insert(registryClient(t, "p1"))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, ErrAlreadyRegistered) {
			t.Errorf("unexpected insert error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly one winning insert, got %d", winners)
	}
	if registry.Len() != 1 {
		t.Errorf("expected exactly one registered record, got %d", registry.Len())
	}
}

func TestRegistryRetainsDisconnected(t *testing.T) {
	registry := NewRegistry(time.Minute, testLogger())
	c := registryClient(t, "p1")

	if err := registry.Insert(c); err != nil {
		t.Fatalf("Insert() returned error: %s", err)
	}
	registry.MarkDisconnected(c)

	// The record must remain resolvable for the retention window so a
	// reconnect can find it.
	found, ok := registry.Get("p1")
	if !ok {
		t.Fatal("expected disconnected record to remain registered")
	}
	if found.Connected() {
		t.Error("expected record to be marked disconnected")
	}
}

func TestRegistryEvictsAfterRetention(t *testing.T) {
	registry := NewRegistry(20*time.Millisecond, testLogger())
	c := registryClient(t, "p1")

	if err := registry.Insert(c); err != nil {
		t.Fatalf("Insert() returned error: %s", err)
	}
	registry.MarkDisconnected(c)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := registry.Get("p1"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected disconnected record to be evicted after the retention window")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRegistryReconnectCancelsEviction(t *testing.T) {
	registry := NewRegistry(30*time.Millisecond, testLogger())
	c := registryClient(t, "p1")

	if err := registry.Insert(c); err != nil {
		t.Fatalf("Insert() returned error: %s", err)
	}
	registry.MarkDisconnected(c)

	server, peer := net.Pipe()
	defer server.Close()
	defer peer.Close()
	c.Reattach(server, "pipe-2")
	registry.MarkReconnected(c)
	c.MarkConnected()

	time.Sleep(100 * time.Millisecond)

	if _, ok := registry.Get("p1"); !ok {
		t.Error("expected reconnected record to survive past the retention window")
	}
}

func TestRegistryEvictionReleasesSeat(t *testing.T) {
	registry := NewRegistry(20*time.Millisecond, testLogger())
	released := make(chan string, 1)
	registry.OnRelease(func(playerID string) { released <- playerID })

	c := registryClient(t, "p1")
	if err := registry.Insert(c); err != nil {
		t.Fatalf("Insert() returned error: %s", err)
	}
	registry.MarkDisconnected(c)

	select {
	case playerID := <-released:
		if playerID != "p1" {
			t.Errorf("expected seat release for p1, got %s", playerID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected the release hook to fire after the retention window")
	}
}

func TestRegistryRemove(t *testing.T) {
	registry := NewRegistry(time.Minute, testLogger())
	c := registryClient(t, "p1")

	if err := registry.Insert(c); err != nil {
		t.Fatalf("Insert() returned error: %s", err)
	}
	registry.Remove("p1")

	if _, ok := registry.Get("p1"); ok {
		t.Error("expected removed record to be gone")
	}
	// The live update queue ends with the record.
	if _, open := <-c.Updates(); open {
		t.Error("expected the update queue to be closed on removal")
	}
}

func TestRegistrySnapshot(t *testing.T) {
	registry := NewRegistry(time.Minute, testLogger())
	for _, id := range []string{"p1", "p2", "p3"} {
		if err := registry.Insert(registryClient(t, id)); err != nil {
			t.Fatalf("Insert(%s) returned error: %s", id, err)
		}
	}

	snapshot := registry.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected snapshot of 3 records, got %d", len(snapshot))
	}

	seen := make(map[string]bool)
	for _, c := range snapshot {
		seen[c.ID()] = true
	}
	for _, id := range []string{"p1", "p2", "p3"} {
		if !seen[id] {
			t.Errorf("expected snapshot to contain %s", id)
		}
	}
}
