package collab

import (
	"context"
	"encoding/json"
	"errors"
)

// RelayProjectUpdate broadcasts an opaque project mutation to the rest of
// the room as project-changed, annotated with the actor's identity. The
// coordinator neither validates nor persists the payload; the sender
// writes it through the REST API independently, and receivers treat the
// broadcast as a hint to reconcile, not as the authoritative record.
func (c *Coordinator) RelayProjectUpdate(ctx context.Context, connID, projectID string, changes json.RawMessage) {
	c.relay(ctx, connID, projectID, EventProjectChanged, &Event{
		Type:      EventProjectChanged,
		ProjectID: projectID,
		Changes:   changes,
	})
}

// RelayTrackChange broadcasts a track-added, track-updated, or
// track-deleted notification under the same event name it arrived with.
func (c *Coordinator) RelayTrackChange(ctx context.Context, connID, projectID, eventType string, payload json.RawMessage) {
	switch eventType {
	case EventTrackAdded, EventTrackUpdated, EventTrackDeleted:
	default:
		c.log.Warn("refusing to relay unknown event type %q from %s", eventType, connID)
		return
	}

	c.relay(ctx, connID, projectID, eventType, &Event{
		Type:      eventType,
		ProjectID: projectID,
		Payload:   payload,
	})
}

func (c *Coordinator) relay(ctx context.Context, connID, projectID, eventType string, evt *Event) {
	conn, sess := c.sessionSnapshot(connID, projectID)
	if conn == nil {
		return
	}
	if sess == nil {
		c.sendError(conn, projectID, "join the project before sending updates")
		return
	}

	role, err := c.refreshRole(ctx, connID, projectID)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			c.sendError(conn, projectID, "not a member of this project")
		} else {
			c.sendError(conn, projectID, "could not verify project membership")
			c.log.Error("role resolution failed for %s: %v", connID, err)
		}
		return
	}
	if !role.CanEdit() {
		c.sendError(conn, projectID, "viewers cannot modify the project")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	room, sess := c.sessionLocked(connID, projectID)
	if sess == nil {
		return
	}

	evt.UserID = sess.UserID
	evt.UserName = sess.UserName
	c.broadcastLocked(room, connID, evt)

	c.log.Debug("relayed %s for project %s from %s", eventType, projectID, sess.UserName)
}
