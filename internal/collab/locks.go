package collab

import (
	"context"
	"errors"
	"time"

	"github.com/waveroom/waveroom/internal/store"
)

type trackKey struct {
	projectID string
	trackID   string
}

// TrackLock is an exclusive, per-track, pessimistic edit permission.
// At most one exists per (project, track) at any time.
type TrackLock struct {
	ProjectID    string
	TrackID      string
	UserID       string
	UserName     string
	ConnectionID string
}

// ProjectLock is an exclusive, whole-project, pessimistic permission that
// serializes multi-step operations (delete region, paste segment) whose
// interleaving would corrupt the persisted project.
type ProjectLock struct {
	ProjectID    string
	UserID       string
	UserName     string
	ConnectionID string
	Operation    string
	AcquiredAt   time.Time
}

// RequestTrackLock attempts to acquire the exclusive edit lock for a
// track. VIEWERs are always denied; a lock held by another connection is
// denied with the holder's identity; everything else is granted,
// re-entrant grants included. The caller's role is re-resolved from the
// membership store so a demotion takes effect without a rejoin.
func (c *Coordinator) RequestTrackLock(ctx context.Context, connID, projectID, trackID string) {
	conn, sess := c.sessionSnapshot(connID, projectID)
	if conn == nil {
		return
	}
	if sess == nil {
		c.sendError(conn, projectID, "join the project before requesting locks")
		return
	}

	role, err := c.refreshRole(ctx, connID, projectID)
	if err != nil {
		c.denyTrackLock(conn, projectID, trackID, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	room, sess := c.sessionLocked(connID, projectID)
	if sess == nil {
		// Left or dropped while the role lookup was in flight.
		return
	}

	if !role.CanEdit() {
		c.reply(conn, &Event{
			Type:      EventTrackLockDenied,
			ProjectID: projectID,
			TrackID:   trackID,
			Reason:    DenyReasonPermission,
		})
		return
	}

	key := trackKey{projectID: projectID, trackID: trackID}
	if lock, ok := c.trackLocks[key]; ok && lock.ConnectionID != connID {
		c.reply(conn, &Event{
			Type:      EventTrackLockDenied,
			ProjectID: projectID,
			TrackID:   trackID,
			Reason:    DenyReasonHeld,
			UserID:    lock.UserID,
			UserName:  lock.UserName,
		})
		return
	}

	// A session edits at most one track at a time; acquiring a new track
	// releases the previous one.
	if sess.EditingTrackID != "" && sess.EditingTrackID != trackID {
		c.releaseTrackLockLocked(room, connID, sess.EditingTrackID)
	}

	c.trackLocks[key] = &TrackLock{
		ProjectID:    projectID,
		TrackID:      trackID,
		UserID:       sess.UserID,
		UserName:     sess.UserName,
		ConnectionID: connID,
	}
	sess.IsEditing = true
	sess.EditingTrackID = trackID

	c.reply(conn, &Event{
		Type:      EventTrackLockGranted,
		ProjectID: projectID,
		TrackID:   trackID,
	})
	c.broadcastLocked(room, connID, &Event{
		Type:      EventTrackLocked,
		ProjectID: projectID,
		TrackID:   trackID,
		UserID:    sess.UserID,
		UserName:  sess.UserName,
	})

	c.log.Debug("track %s/%s locked by %s", projectID, trackID, sess.UserName)
}

// ReleaseTrackLock releases a track lock held by this connection.
// Releasing a lock you do not hold is a no-op, never an error.
func (c *Coordinator) ReleaseTrackLock(connID, projectID, trackID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.rooms[projectID]
	if !ok {
		return
	}
	c.releaseTrackLockLocked(room, connID, trackID)
}

// releaseTrackLockLocked clears the lock if connID holds it, resets the
// holder session's editing flags, and broadcasts track-unlocked to the
// whole room.
func (c *Coordinator) releaseTrackLockLocked(room *Room, connID, trackID string) {
	key := trackKey{projectID: room.ProjectID, trackID: trackID}
	lock, ok := c.trackLocks[key]
	if !ok || lock.ConnectionID != connID {
		return
	}
	delete(c.trackLocks, key)

	if sess, ok := room.sessions[connID]; ok && sess.EditingTrackID == trackID {
		sess.IsEditing = false
		sess.EditingTrackID = ""
	}

	c.broadcastLocked(room, "", &Event{
		Type:      EventTrackUnlocked,
		ProjectID: room.ProjectID,
		TrackID:   trackID,
	})
}

// RequestProjectLock attempts to acquire the whole-project lock for a
// named multi-step operation.
func (c *Coordinator) RequestProjectLock(ctx context.Context, connID, projectID, operation string) {
	conn, sess := c.sessionSnapshot(connID, projectID)
	if conn == nil {
		return
	}
	if sess == nil {
		c.sendError(conn, projectID, "join the project before requesting locks")
		return
	}

	role, err := c.refreshRole(ctx, connID, projectID)
	if err != nil {
		c.denyProjectLock(conn, projectID, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	room, sess := c.sessionLocked(connID, projectID)
	if sess == nil {
		return
	}

	if !role.CanEdit() {
		c.reply(conn, &Event{
			Type:      EventProjectLockDenied,
			ProjectID: projectID,
			Reason:    DenyReasonPermission,
		})
		return
	}

	if lock, ok := c.projectLocks[projectID]; ok && lock.ConnectionID != connID {
		c.reply(conn, &Event{
			Type:      EventProjectLockDenied,
			ProjectID: projectID,
			Reason:    DenyReasonHeld,
			UserID:    lock.UserID,
			UserName:  lock.UserName,
			Operation: lock.Operation,
		})
		return
	}

	c.projectLocks[projectID] = &ProjectLock{
		ProjectID:    projectID,
		UserID:       sess.UserID,
		UserName:     sess.UserName,
		ConnectionID: connID,
		Operation:    operation,
		AcquiredAt:   time.Now(),
	}

	c.reply(conn, &Event{
		Type:      EventProjectLockGranted,
		ProjectID: projectID,
		Operation: operation,
	})
	c.broadcastLocked(room, connID, &Event{
		Type:      EventProjectLocked,
		ProjectID: projectID,
		UserID:    sess.UserID,
		UserName:  sess.UserName,
		Operation: operation,
	})

	c.log.Debug("project %s locked by %s for %s", projectID, sess.UserName, operation)
}

// ReleaseProjectLock releases the project lock if this connection holds
// it. Releasing a lock you do not hold is a no-op.
func (c *Coordinator) ReleaseProjectLock(connID, projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.projectLocks[projectID]
	if !ok || lock.ConnectionID != connID {
		return
	}
	delete(c.projectLocks, projectID)

	if room, ok := c.rooms[projectID]; ok {
		c.broadcastLocked(room, "", &Event{
			Type:      EventProjectUnlocked,
			ProjectID: projectID,
		})
	}
}

// trackLockInfosLocked snapshots the public view of every track lock in a
// project, for the locked-tracks join reply.
func (c *Coordinator) trackLockInfosLocked(projectID string) []TrackLockInfo {
	infos := make([]TrackLockInfo, 0)
	for key, lock := range c.trackLocks {
		if key.projectID != projectID {
			continue
		}
		infos = append(infos, TrackLockInfo{
			TrackID:  key.trackID,
			UserID:   lock.UserID,
			UserName: lock.UserName,
		})
	}
	return infos
}

// sessionSnapshot returns the connection and, if the connection is in the
// project's room, its session. Used to decide how to address failures
// before the role lookup.
func (c *Coordinator) sessionSnapshot(connID, projectID string) (*connection, *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.conns[connID]
	if !ok {
		return nil, nil
	}
	_, sess := c.sessionLocked(connID, projectID)
	return conn, sess
}

// refreshRole re-resolves the caller's role for a privileged request and
// updates the session's cached copy. The store call runs outside the
// coordinator mutex.
func (c *Coordinator) refreshRole(ctx context.Context, connID, projectID string) (role store.Role, err error) {
	c.mu.Lock()
	conn, ok := c.conns[connID]
	c.mu.Unlock()
	if !ok {
		return "", &NotConnectedError{ConnectionID: connID}
	}

	role, err = c.resolveRole(ctx, projectID, conn.userID)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if _, sess := c.sessionLocked(connID, projectID); sess != nil {
		sess.Role = role
	}
	c.mu.Unlock()
	return role, nil
}

func (c *Coordinator) denyTrackLock(conn *connection, projectID, trackID string, err error) {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		c.reply(conn, &Event{
			Type:      EventTrackLockDenied,
			ProjectID: projectID,
			TrackID:   trackID,
			Reason:    DenyReasonPermission,
		})
		return
	}
	c.sendError(conn, projectID, "could not verify project membership")
	c.log.Error("role resolution failed for %s: %v", conn.id, err)
}

func (c *Coordinator) denyProjectLock(conn *connection, projectID string, err error) {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		c.reply(conn, &Event{
			Type:      EventProjectLockDenied,
			ProjectID: projectID,
			Reason:    DenyReasonPermission,
		})
		return
	}
	c.sendError(conn, projectID, "could not verify project membership")
	c.log.Error("role resolution failed for %s: %v", conn.id, err)
}

func (c *Coordinator) sendError(conn *connection, projectID, message string) {
	c.reply(conn, &Event{
		Type:      EventError,
		ProjectID: projectID,
		Message:   message,
	})
}
