package collab_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waveroom/waveroom/internal/collab"
	"github.com/waveroom/waveroom/internal/store"
)

// Scenario: a lock holder's transport dies without a disconnect event;
// the sweep reclaims the lock and a fresh request by another user wins.
func TestSweepReclaimsOrphanedTrackLock(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set("p1", "alice", store.RoleOwner)
	resolver.set("p1", "bob", store.RoleCollaborator)
	c := newTestCoordinator(resolver)
	ctx := context.Background()

	aliceSender := &fakeSender{}
	c.Connect("conn-a", "alice", "Alice", aliceSender)
	require.NoError(t, c.JoinProject(ctx, "conn-a", "p1"))
	bob := join(t, c, "conn-b", "bob", "Bob", "p1")

	c.RequestTrackLock(ctx, "conn-a", "p1", "t1")
	bob.reset()

	// The transport drops hard: no close frame, no disconnect handler.
	aliceSender.close()
	c.Sweep()

	// The lock is gone and the survivors were told.
	_, _, trackLocks, _ := c.Stats()
	assert.Zero(t, trackLocks)
	assert.Len(t, bob.ofType(collab.EventTrackUnlocked), 1)
	assert.Len(t, bob.ofType(collab.EventUserLeft), 1)

	c.RequestTrackLock(ctx, "conn-b", "p1", "t1")
	assert.Len(t, bob.ofType(collab.EventTrackLockGranted), 1)
}

func TestSweepReclaimsOrphanedProjectLock(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set("p1", "alice", store.RoleOwner)
	resolver.set("p1", "bob", store.RoleCollaborator)
	c := newTestCoordinator(resolver)
	ctx := context.Background()

	aliceSender := &fakeSender{}
	c.Connect("conn-a", "alice", "Alice", aliceSender)
	require.NoError(t, c.JoinProject(ctx, "conn-a", "p1"))
	bob := join(t, c, "conn-b", "bob", "Bob", "p1")

	c.RequestProjectLock(ctx, "conn-a", "p1", "delete")
	bob.reset()

	aliceSender.close()
	c.Sweep()

	_, _, _, projectLocks := c.Stats()
	assert.Zero(t, projectLocks)
	assert.Len(t, bob.ofType(collab.EventProjectUnlocked), 1)

	c.RequestProjectLock(ctx, "conn-b", "p1", "paste")
	assert.Len(t, bob.ofType(collab.EventProjectLockGranted), 1)
}

func TestSweepDeletesEmptyRoomsAndDeadConnections(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set("p1", "alice", store.RoleOwner)
	c := newTestCoordinator(resolver)

	sender := &fakeSender{}
	c.Connect("conn-a", "alice", "Alice", sender)
	require.NoError(t, c.JoinProject(context.Background(), "conn-a", "p1"))

	sender.close()
	c.Sweep()

	conns, rooms, _, _ := c.Stats()
	assert.Zero(t, conns)
	assert.Zero(t, rooms)
}

func TestSweepLeavesHealthyStateAlone(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set("p1", "alice", store.RoleOwner)
	resolver.set("p1", "bob", store.RoleCollaborator)
	c := newTestCoordinator(resolver)
	ctx := context.Background()

	alice := join(t, c, "conn-a", "alice", "Alice", "p1")
	bob := join(t, c, "conn-b", "bob", "Bob", "p1")
	c.RequestTrackLock(ctx, "conn-a", "p1", "t1")
	alice.reset()
	bob.reset()

	c.Sweep()

	conns, rooms, trackLocks, _ := c.Stats()
	assert.Equal(t, 2, conns)
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, trackLocks)
	assert.Empty(t, alice.events)
	assert.Empty(t, bob.events)
}

// The project lock carries a lease: a client that holds it past the
// maximum hold is force-released even though it is still connected.
func TestSweepEnforcesProjectLockLease(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set("p1", "alice", store.RoleOwner)
	resolver.set("p1", "bob", store.RoleCollaborator)
	c := collab.New(resolver, collab.Options{
		SweepInterval:      time.Minute,
		MaxProjectLockHold: time.Millisecond,
	})
	ctx := context.Background()

	alice := join(t, c, "conn-a", "alice", "Alice", "p1")
	bob := join(t, c, "conn-b", "bob", "Bob", "p1")

	c.RequestProjectLock(ctx, "conn-a", "p1", "delete")
	alice.reset()
	bob.reset()

	time.Sleep(5 * time.Millisecond)
	c.Sweep()

	_, _, _, projectLocks := c.Stats()
	assert.Zero(t, projectLocks)
	// Both the stalled holder and the rest of the room learn about it.
	assert.Len(t, alice.ofType(collab.EventProjectUnlocked), 1)
	assert.Len(t, bob.ofType(collab.EventProjectUnlocked), 1)

	// Alice is still connected and may reacquire.
	c.RequestProjectLock(ctx, "conn-a", "p1", "delete")
	assert.Len(t, alice.ofType(collab.EventProjectLockGranted), 1)
}

func TestRunSweepsOnInterval(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set("p1", "alice", store.RoleOwner)
	c := collab.New(resolver, collab.Options{SweepInterval: 10 * time.Millisecond})

	sender := &fakeSender{}
	c.Connect("conn-a", "alice", "Alice", sender)
	require.NoError(t, c.JoinProject(context.Background(), "conn-a", "p1"))
	sender.close()

	go c.Run()
	defer c.Stop()

	deadline := time.After(2 * time.Second)
	for {
		conns, rooms, _, _ := c.Stats()
		if conns == 0 && rooms == 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("sweeper never reclaimed the dead connection")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
