// Package collab is the real-time collaboration coordinator: a volatile,
// in-memory session layer that tracks who is present in which project,
// serializes conflicting edits through pessimistic locks, and relays
// mutation notifications with role-based authorization. It never persists
// anything; the REST layer owns durable writes.
package collab

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/waveroom/waveroom/internal/logger"
	"github.com/waveroom/waveroom/internal/store"
)

// MembershipResolver computes a user's effective role on a project by
// consulting the durable membership store.
type MembershipResolver interface {
	ResolveRole(ctx context.Context, projectID, userID string) (store.Role, error)
}

// connection is one authenticated transport connection known to the
// coordinator, whether or not it has joined a room yet.
type connection struct {
	id       string
	userID   string
	userName string
	sender   Sender
}

// Options tune coordinator behavior
type Options struct {
	// SweepInterval is how often the garbage collector reconciles
	// registries and locks against live connections
	SweepInterval time.Duration
	// MaxProjectLockHold force-releases project locks held longer than
	// this; 0 disables the lease
	MaxProjectLockHold time.Duration
}

// Coordinator owns the room registry, the track and project lock tables,
// and the live-connection index. One mutex serializes every in-memory
// transition; membership lookups happen before the mutex is taken and the
// map operations afterwards are last-writer-wins.
type Coordinator struct {
	resolver MembershipResolver
	opts     Options
	log      *logger.Logger

	mu           sync.Mutex
	conns        map[string]*connection // connectionID → connection
	rooms        map[string]*Room       // projectID → room
	roomOf       map[string]string      // connectionID → projectID
	trackLocks   map[trackKey]*TrackLock
	projectLocks map[string]*ProjectLock

	quit     chan struct{}
	quitOnce sync.Once
}

// New creates a coordinator. Call Run to start the garbage collector.
func New(resolver MembershipResolver, opts Options) *Coordinator {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Minute
	}
	return &Coordinator{
		resolver:     resolver,
		opts:         opts,
		log:          logger.Global().WithPrefix("collab"),
		conns:        make(map[string]*connection),
		rooms:        make(map[string]*Room),
		roomOf:       make(map[string]string),
		trackLocks:   make(map[trackKey]*TrackLock),
		projectLocks: make(map[string]*ProjectLock),
		quit:         make(chan struct{}),
	}
}

// Connect registers an authenticated connection. The identity was already
// resolved by the transport handshake; no handler runs for a connection
// that failed authentication.
func (c *Coordinator) Connect(connID, userID, userName string, sender Sender) {
	c.mu.Lock()
	c.conns[connID] = &connection{id: connID, userID: userID, userName: userName, sender: sender}
	c.mu.Unlock()
	c.log.Debug("connection %s registered for user %s", connID, userID)
}

// Disconnect removes a connection, cascading through room membership and
// any locks it held.
func (c *Coordinator) Disconnect(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.leaveCurrentRoomLocked(connID)
	delete(c.conns, connID)
	c.log.Debug("connection %s unregistered", connID)
}

// JoinProject resolves membership, moves the connection into the target
// room (leaving any previous room first and purging a stale session for
// the same user), replies with presence and lock snapshots, and announces
// the newcomer to the rest of the room.
func (c *Coordinator) JoinProject(ctx context.Context, connID, projectID string) error {
	c.mu.Lock()
	conn, ok := c.conns[connID]
	c.mu.Unlock()
	if !ok {
		return &NotConnectedError{ConnectionID: connID}
	}

	role, err := c.resolveRole(ctx, projectID, conn.userID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// The connection may have dropped while we were resolving the role.
	conn, ok = c.conns[connID]
	if !ok {
		return &NotConnectedError{ConnectionID: connID}
	}

	// Joining a new project leaves all previous rooms first.
	c.leaveCurrentRoomLocked(connID)

	room, ok := c.rooms[projectID]
	if !ok {
		room = newRoom(projectID)
		c.rooms[projectID] = room
		c.log.Debug("room %s created", projectID)
	}

	// A user has at most one live session per room: purge a stale
	// session left behind by a reconnect. If the user was alone, the
	// purge empties the room and drops it from the registry; re-register
	// it since the joiner is about to repopulate it.
	if stale := room.sessionForUser(conn.userID); stale != nil {
		c.removeSessionLocked(room, stale)
		c.rooms[projectID] = room
	}

	sess := &Session{
		ConnectionID: connID,
		UserID:       conn.userID,
		UserName:     conn.userName,
		Role:         role,
	}
	room.sessions[connID] = sess
	c.roomOf[connID] = projectID

	// Reply to the joiner only: full presence and lock snapshots.
	c.reply(conn, &Event{
		Type:      EventOnlineUsers,
		ProjectID: projectID,
		Users:     room.presences(),
	})
	c.reply(conn, &Event{
		Type:      EventLockedTracks,
		ProjectID: projectID,
		Locks:     c.trackLockInfosLocked(projectID),
	})

	joined := sess.Presence()
	c.broadcastLocked(room, connID, &Event{
		Type:         EventUserJoined,
		ProjectID:    projectID,
		ConnectionID: connID,
		UserID:       sess.UserID,
		UserName:     sess.UserName,
		Users:        []UserPresence{joined},
	})

	c.log.Info("user %s (%s) joined project %s as %s", conn.userName, connID, projectID, role)
	return nil
}

// LeaveProject removes the connection from the project's room, releasing
// any locks it held. Leaving a room you are not in is a no-op.
func (c *Coordinator) LeaveProject(connID, projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.roomOf[connID] != projectID {
		return
	}
	c.leaveCurrentRoomLocked(connID)
}

// MoveCursor updates the session's playhead position and relays it to the
// rest of the room. Last write wins; stale updates are never an error.
func (c *Coordinator) MoveCursor(connID, projectID string, position float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room, sess := c.sessionLocked(connID, projectID)
	if sess == nil {
		return
	}
	sess.CursorPosition = position

	pos := position
	c.broadcastLocked(room, connID, &Event{
		Type:           EventCursorUpdated,
		ProjectID:      projectID,
		UserID:         sess.UserID,
		UserName:       sess.UserName,
		CursorPosition: &pos,
	})
}

// MoveMouse updates the session's pointer position and relays it to the
// rest of the room. Coordinates are percentages the sender already
// clamped; the coordinator does not validate them.
func (c *Coordinator) MoveMouse(connID, projectID string, pos MousePosition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room, sess := c.sessionLocked(connID, projectID)
	if sess == nil {
		return
	}
	p := pos
	sess.MousePosition = &p

	c.broadcastLocked(room, connID, &Event{
		Type:          EventMouseUpdated,
		ProjectID:     projectID,
		UserID:        sess.UserID,
		UserName:      sess.UserName,
		MousePosition: &p,
	})
}

// Stats reports registry sizes for health endpoints
func (c *Coordinator) Stats() (conns, rooms, trackLocks, projectLocks int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns), len(c.rooms), len(c.trackLocks), len(c.projectLocks)
}

// resolveRole consults the membership store and maps its sentinels onto
// the coordinator's error taxonomy. Unknown projects and non-members both
// read as not-found so a denial does not leak project existence.
func (c *Coordinator) resolveRole(ctx context.Context, projectID, userID string) (store.Role, error) {
	role, err := c.resolver.ResolveRole(ctx, projectID, userID)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrNotMember) {
		return "", &NotFoundError{ProjectID: projectID}
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// sessionLocked returns the room and session for a connection acting on
// projectID, or nils when the connection is not in that room.
func (c *Coordinator) sessionLocked(connID, projectID string) (*Room, *Session) {
	room, ok := c.rooms[projectID]
	if !ok {
		return nil, nil
	}
	sess, ok := room.sessions[connID]
	if !ok {
		return nil, nil
	}
	return room, sess
}

// leaveCurrentRoomLocked removes the connection's session from whichever
// room it is in, cascading through lock release and presence broadcasts.
func (c *Coordinator) leaveCurrentRoomLocked(connID string) {
	projectID, ok := c.roomOf[connID]
	if !ok {
		return
	}
	room, ok := c.rooms[projectID]
	if !ok {
		delete(c.roomOf, connID)
		return
	}
	sess, ok := room.sessions[connID]
	if !ok {
		delete(c.roomOf, connID)
		return
	}
	c.removeSessionLocked(room, sess)
}

// removeSessionLocked deletes a session, releases its locks (broadcasting
// the unlocks), announces user-left, and drops the room if now empty.
func (c *Coordinator) removeSessionLocked(room *Room, sess *Session) {
	delete(room.sessions, sess.ConnectionID)
	delete(c.roomOf, sess.ConnectionID)

	c.releaseConnLocksLocked(room, sess.ConnectionID)

	c.broadcastLocked(room, sess.ConnectionID, &Event{
		Type:         EventUserLeft,
		ProjectID:    room.ProjectID,
		ConnectionID: sess.ConnectionID,
		UserID:       sess.UserID,
		UserName:     sess.UserName,
	})

	if room.empty() {
		delete(c.rooms, room.ProjectID)
		c.log.Debug("room %s deleted", room.ProjectID)
	}

	c.log.Info("user %s (%s) left project %s", sess.UserName, sess.ConnectionID, room.ProjectID)
}

// releaseConnLocksLocked clears every lock the connection holds within the
// room's project and broadcasts the corresponding unlock events.
func (c *Coordinator) releaseConnLocksLocked(room *Room, connID string) {
	for key, lock := range c.trackLocks {
		if key.projectID != room.ProjectID || lock.ConnectionID != connID {
			continue
		}
		delete(c.trackLocks, key)
		c.broadcastLocked(room, connID, &Event{
			Type:      EventTrackUnlocked,
			ProjectID: room.ProjectID,
			TrackID:   key.trackID,
		})
	}

	if lock, ok := c.projectLocks[room.ProjectID]; ok && lock.ConnectionID == connID {
		delete(c.projectLocks, room.ProjectID)
		c.broadcastLocked(room, connID, &Event{
			Type:      EventProjectUnlocked,
			ProjectID: room.ProjectID,
		})
	}
}

// reply delivers an event to a single connection, stamped the same way
// broadcasts are.
func (c *Coordinator) reply(conn *connection, evt *Event) {
	evt.Timestamp = time.Now().UTC()
	conn.sender.Send(evt)
}

// broadcastLocked delivers an event to every session in the room except
// exceptConnID. Sends are non-blocking; a slow consumer drops events
// rather than stalling the coordinator.
func (c *Coordinator) broadcastLocked(room *Room, exceptConnID string, evt *Event) {
	evt.Timestamp = time.Now().UTC()
	for connID := range room.sessions {
		if connID == exceptConnID {
			continue
		}
		if conn, ok := c.conns[connID]; ok {
			conn.sender.Send(evt)
		}
	}
}
