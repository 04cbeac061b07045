package collab_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waveroom/waveroom/internal/collab"
	"github.com/waveroom/waveroom/internal/store"
)

// Scenario: owner and collaborator compete for track locks.
func TestTrackLockGrantAndConflict(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set("p1", "alice", store.RoleOwner)
	resolver.set("p1", "bob", store.RoleCollaborator)
	c := newTestCoordinator(resolver)
	ctx := context.Background()

	alice := join(t, c, "conn-a", "alice", "Alice", "p1")
	bob := join(t, c, "conn-b", "bob", "Bob", "p1")
	alice.reset()
	bob.reset()

	// Alice locks T1.
	c.RequestTrackLock(ctx, "conn-a", "p1", "t1")
	granted := alice.ofType(collab.EventTrackLockGranted)
	require.Len(t, granted, 1)
	assert.Equal(t, "t1", granted[0].TrackID)

	lockedSeen := bob.ofType(collab.EventTrackLocked)
	require.Len(t, lockedSeen, 1)
	assert.Equal(t, "alice", lockedSeen[0].UserID)

	// Bob is denied T1 and told who holds it.
	c.RequestTrackLock(ctx, "conn-b", "p1", "t1")
	denied := bob.ofType(collab.EventTrackLockDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, collab.DenyReasonHeld, denied[0].Reason)
	assert.Equal(t, "alice", denied[0].UserID)
	assert.Equal(t, "Alice", denied[0].UserName)

	// Bob locks T2 without conflict.
	c.RequestTrackLock(ctx, "conn-b", "p1", "t2")
	granted = bob.ofType(collab.EventTrackLockGranted)
	require.Len(t, granted, 1)
	assert.Equal(t, "t2", granted[0].TrackID)

	_, _, trackLocks, _ := c.Stats()
	assert.Equal(t, 2, trackLocks)
}

func TestTrackLockReentrant(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set("p1", "alice", store.RoleOwner)
	c := newTestCoordinator(resolver)
	ctx := context.Background()

	alice := join(t, c, "conn-a", "alice", "Alice", "p1")
	alice.reset()

	c.RequestTrackLock(ctx, "conn-a", "p1", "t1")
	c.RequestTrackLock(ctx, "conn-a", "p1", "t1")

	assert.Len(t, alice.ofType(collab.EventTrackLockGranted), 2)
	assert.Empty(t, alice.ofType(collab.EventTrackLockDenied))

	_, _, trackLocks, _ := c.Stats()
	assert.Equal(t, 1, trackLocks)
}

func TestTrackLockMovingReleasesPrevious(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set("p1", "alice", store.RoleOwner)
	resolver.set("p1", "bob", store.RoleCollaborator)
	c := newTestCoordinator(resolver)
	ctx := context.Background()

	join(t, c, "conn-a", "alice", "Alice", "p1")
	bob := join(t, c, "conn-b", "bob", "Bob", "p1")

	c.RequestTrackLock(ctx, "conn-a", "p1", "t1")
	bob.reset()
	c.RequestTrackLock(ctx, "conn-a", "p1", "t2")

	// Moving to t2 released t1 for everyone else.
	unlocked := bob.ofType(collab.EventTrackUnlocked)
	require.Len(t, unlocked, 1)
	assert.Equal(t, "t1", unlocked[0].TrackID)

	c.RequestTrackLock(ctx, "conn-b", "p1", "t1")
	assert.Len(t, bob.ofType(collab.EventTrackLockGranted), 1)

	_, _, trackLocks, _ := c.Stats()
	assert.Equal(t, 2, trackLocks)
}

func TestViewerAlwaysDenied(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set("p1", "alice", store.RoleOwner)
	resolver.set("p1", "eve", store.RoleViewer)
	c := newTestCoordinator(resolver)
	ctx := context.Background()

	join(t, c, "conn-a", "alice", "Alice", "p1")
	eve := join(t, c, "conn-e", "eve", "Eve", "p1")
	eve.reset()

	c.RequestTrackLock(ctx, "conn-e", "p1", "t1")
	denied := eve.ofType(collab.EventTrackLockDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, collab.DenyReasonPermission, denied[0].Reason)

	c.RequestProjectLock(ctx, "conn-e", "p1", "delete")
	pDenied := eve.ofType(collab.EventProjectLockDenied)
	require.Len(t, pDenied, 1)
	assert.Equal(t, collab.DenyReasonPermission, pDenied[0].Reason)

	c.RelayProjectUpdate(ctx, "conn-e", "p1", []byte(`{"bpm":128}`))
	c.RelayTrackChange(ctx, "conn-e", "p1", collab.EventTrackAdded, []byte(`{}`))
	assert.Len(t, eve.ofType(collab.EventError), 2)

	// None of it changed any state.
	_, _, trackLocks, projectLocks := c.Stats()
	assert.Zero(t, trackLocks)
	assert.Zero(t, projectLocks)
}

func TestReleaseTrackLockNotHolderIsNoOp(t *testing.T) {
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

	c.ReleaseTrackLock("conn-b", "p1", "t1")

	// No broadcast, no state change.
	assert.Empty(t, alice.ofType(collab.EventTrackUnlocked))
	assert.Empty(t, bob.ofType(collab.EventTrackUnlocked))
	_, _, trackLocks, _ := c.Stats()
	assert.Equal(t, 1, trackLocks)

	// Releasing a lock that does not exist is equally harmless.
	c.ReleaseTrackLock("conn-b", "p1", "t9")
	c.ReleaseProjectLock("conn-b", "p1")
}

func TestReleaseTrackLockByHolder(t *testing.T) {
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

	c.ReleaseTrackLock("conn-a", "p1", "t1")

	require.Len(t, bob.ofType(collab.EventTrackUnlocked), 1)
	_, _, trackLocks, _ := c.Stats()
	assert.Zero(t, trackLocks)

	// The holder's editing flags were cleared, visible to later joiners.
	resolver.set("p1", "carol", store.RoleViewer)
	carol := join(t, c, "conn-c", "carol", "Carol", "p1")
	online := carol.ofType(collab.EventOnlineUsers)
	require.Len(t, online, 1)
	for _, u := range online[0].Users {
		if u.UserID == "alice" {
			assert.False(t, u.IsEditing)
			assert.Empty(t, u.EditingTrackID)
		}
	}
}

func TestDisconnectReleasesHeldLocks(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set("p1", "alice", store.RoleOwner)
	resolver.set("p1", "bob", store.RoleCollaborator)
	c := newTestCoordinator(resolver)
	ctx := context.Background()

	join(t, c, "conn-a", "alice", "Alice", "p1")
	bob := join(t, c, "conn-b", "bob", "Bob", "p1")

	c.RequestTrackLock(ctx, "conn-a", "p1", "t1")
	c.RequestProjectLock(ctx, "conn-a", "p1", "delete")
	bob.reset()

	c.Disconnect("conn-a")

	// Exactly one track-unlocked and one project-unlocked reached bob.
	unlocked := bob.ofType(collab.EventTrackUnlocked)
	require.Len(t, unlocked, 1)
	assert.Equal(t, "t1", unlocked[0].TrackID)
	assert.Len(t, bob.ofType(collab.EventProjectUnlocked), 1)
	assert.Len(t, bob.ofType(collab.EventUserLeft), 1)

	_, _, trackLocks, projectLocks := c.Stats()
	assert.Zero(t, trackLocks)
	assert.Zero(t, projectLocks)
}

// Scenario: competing project locks for named operations.
func TestProjectLockSerializesOperations(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set("p1", "alice", store.RoleOwner)
	resolver.set("p1", "bob", store.RoleCollaborator)
	c := newTestCoordinator(resolver)
	ctx := context.Background()

	alice := join(t, c, "conn-a", "alice", "Alice", "p1")
	bob := join(t, c, "conn-b", "bob", "Bob", "p1")
	alice.reset()
	bob.reset()

	c.RequestProjectLock(ctx, "conn-a", "p1", "delete")
	granted := alice.ofType(collab.EventProjectLockGranted)
	require.Len(t, granted, 1)
	assert.Equal(t, "delete", granted[0].Operation)

	lockedSeen := bob.ofType(collab.EventProjectLocked)
	require.Len(t, lockedSeen, 1)
	assert.Equal(t, "alice", lockedSeen[0].UserID)
	assert.Equal(t, "delete", lockedSeen[0].Operation)

	// Bob is denied and told the holder and their operation.
	c.RequestProjectLock(ctx, "conn-b", "p1", "paste")
	denied := bob.ofType(collab.EventProjectLockDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, "alice", denied[0].UserID)
	assert.Equal(t, "delete", denied[0].Operation)

	// After release, bob acquires it for his own operation.
	c.ReleaseProjectLock("conn-a", "p1")
	bob.reset()
	c.RequestProjectLock(ctx, "conn-b", "p1", "paste")
	granted = bob.ofType(collab.EventProjectLockGranted)
	require.Len(t, granted, 1)
	assert.Equal(t, "paste", granted[0].Operation)
}

func TestRoleDemotionTakesEffectWithoutRejoin(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set("p1", "alice", store.RoleOwner)
	resolver.set("p1", "bob", store.RoleCollaborator)
	c := newTestCoordinator(resolver)
	ctx := context.Background()

	join(t, c, "conn-a", "alice", "Alice", "p1")
	bob := join(t, c, "conn-b", "bob", "Bob", "p1")
	bob.reset()

	// Bob is demoted mid-session; the next privileged request sees it.
	resolver.set("p1", "bob", store.RoleViewer)

	c.RequestTrackLock(ctx, "conn-b", "p1", "t1")
	denied := bob.ofType(collab.EventTrackLockDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, collab.DenyReasonPermission, denied[0].Reason)
}

func TestLockRequestFromOutsideRoom(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set("p1", "alice", store.RoleOwner)
	c := newTestCoordinator(resolver)
	ctx := context.Background()

	sender := &fakeSender{}
	c.Connect("conn-a", "alice", "Alice", sender)

	// Connected but never joined: the request is an error, not a crash.
	c.RequestTrackLock(ctx, "conn-a", "p1", "t1")
	assert.Len(t, sender.ofType(collab.EventError), 1)

	_, _, trackLocks, _ := c.Stats()
	assert.Zero(t, trackLocks)
}

func TestRelayAnnotatesActorAndSkipsSender(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set("p1", "alice", store.RoleOwner)
	resolver.set("p1", "bob", store.RoleCollaborator)
	c := newTestCoordinator(resolver)
	ctx := context.Background()

	alice := join(t, c, "conn-a", "alice", "Alice", "p1")
	bob := join(t, c, "conn-b", "bob", "Bob", "p1")
	alice.reset()
	bob.reset()

	c.RelayProjectUpdate(ctx, "conn-a", "p1", []byte(`{"bpm":140}`))

	changed := bob.ofType(collab.EventProjectChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, "alice", changed[0].UserID)
	assert.JSONEq(t, `{"bpm":140}`, string(changed[0].Changes))
	assert.Empty(t, alice.ofType(collab.EventProjectChanged))

	c.RelayTrackChange(ctx, "conn-a", "p1", collab.EventTrackAdded, []byte(`{"trackId":"t9","name":"Synth"}`))
	added := bob.ofType(collab.EventTrackAdded)
	require.Len(t, added, 1)
	assert.Equal(t, "alice", added[0].UserID)

	// Unknown relay event names are refused outright.
	bob.reset()
	c.RelayTrackChange(ctx, "conn-a", "p1", "drop-all-tracks", []byte(`{}`))
	assert.Empty(t, bob.events)
}

func TestJoinSnapshotIncludesHeldLocks(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set("p1", "alice", store.RoleOwner)
	resolver.set("p1", "bob", store.RoleCollaborator)
	c := newTestCoordinator(resolver)
	ctx := context.Background()

	join(t, c, "conn-a", "alice", "Alice", "p1")
	c.RequestTrackLock(ctx, "conn-a", "p1", "t1")

	bob := join(t, c, "conn-b", "bob", "Bob", "p1")
	locked := bob.ofType(collab.EventLockedTracks)
	require.Len(t, locked, 1)
	require.Len(t, locked[0].Locks, 1)
	assert.Equal(t, "t1", locked[0].Locks[0].TrackID)
	assert.Equal(t, "alice", locked[0].Locks[0].UserID)
}
