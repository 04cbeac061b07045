package collab

import (
	"encoding/json"
	"time"

	"github.com/waveroom/waveroom/internal/store"
)

// Inbound event types (client → server)
const (
	EventJoinProject        = "join-project"
	EventLeaveProject       = "leave-project"
	EventCursorMove         = "cursor-move"
	EventMouseMove          = "mouse-move"
	EventRequestTrackLock   = "request-track-lock"
	EventReleaseTrackLock   = "release-track-lock"
	EventRequestProjectLock = "request-project-lock"
	EventReleaseProjectLock = "release-project-lock"
	EventProjectUpdate      = "project-update"
	EventTrackAdded         = "track-added"
	EventTrackUpdated       = "track-updated"
	EventTrackDeleted       = "track-deleted"
)

// Outbound event types (server → client)
const (
	EventOnlineUsers        = "online-users"
	EventUserJoined         = "user-joined"
	EventUserLeft           = "user-left"
	EventCursorUpdated      = "cursor-updated"
	EventMouseUpdated       = "mouse-updated"
	EventLockedTracks       = "locked-tracks"
	EventTrackLocked        = "track-locked"
	EventTrackUnlocked      = "track-unlocked"
	EventTrackLockGranted   = "track-lock-granted"
	EventTrackLockDenied    = "track-lock-denied"
	EventProjectLockGranted = "project-lock-granted"
	EventProjectLockDenied  = "project-lock-denied"
	EventProjectLocked      = "project-locked"
	EventProjectUnlocked    = "project-unlocked"
	EventProjectChanged     = "project-changed"
	EventError              = "error"
)

// Denial reasons carried on *-denied events
const (
	DenyReasonPermission = "permission"
	DenyReasonHeld       = "held"
)

// MousePosition is a pointer location in percent of the editor viewport.
// The sender clamps x/y to [0,100]; the coordinator relays it untouched.
type MousePosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Event is the flat wire envelope for every message in either direction.
// Unused fields are omitted per event type.
type Event struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId,omitempty"`
	TrackID   string `json:"trackId,omitempty"`

	// ConnectionID identifies which session a user-joined/user-left event
	// is about; a user may reconnect with a fresh connection.
	ConnectionID string `json:"connectionId,omitempty"`

	// Actor identity on presence and relay broadcasts; holder identity on
	// lock denials.
	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`

	Operation string `json:"operation,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`

	CursorPosition *float64       `json:"cursorPosition,omitempty"`
	MousePosition  *MousePosition `json:"mousePosition,omitempty"`

	// Snapshots delivered to a joining connection.
	Users []UserPresence  `json:"users,omitempty"`
	Locks []TrackLockInfo `json:"locks,omitempty"`

	// Opaque mutation payloads; the coordinator never inspects these.
	Changes json.RawMessage `json:"changes,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	Timestamp time.Time `json:"timestamp,omitzero"`
}

// UserPresence is the public view of one session, as broadcast in
// user-joined and online-users events.
type UserPresence struct {
	ConnectionID   string         `json:"connectionId"`
	UserID         string         `json:"userId"`
	UserName       string         `json:"userName"`
	Role           store.Role     `json:"role"`
	CursorPosition float64        `json:"cursorPosition"`
	MousePosition  *MousePosition `json:"mousePosition,omitempty"`
	IsEditing      bool           `json:"isEditing"`
	EditingTrackID string         `json:"editingTrackId,omitempty"`
}

// TrackLockInfo is the public view of one track lock, as delivered in
// locked-tracks snapshots and track-locked broadcasts.
type TrackLockInfo struct {
	TrackID  string `json:"trackId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// Sender delivers outbound events to one connection. Send must not block;
// Closed reports whether the underlying transport is gone, which the
// garbage collector uses to spot connections that died without a clean
// disconnect.
type Sender interface {
	Send(evt *Event)
	Closed() bool
}
