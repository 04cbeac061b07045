package collab

import "github.com/waveroom/waveroom/internal/store"

// Session is one live connection's participation state within a Room.
// Sessions own no external objects, only scalar copies of presence data;
// all mutation happens under the coordinator mutex.
type Session struct {
	ConnectionID   string
	UserID         string
	UserName       string
	Role           store.Role
	CursorPosition float64
	MousePosition  *MousePosition
	IsEditing      bool
	EditingTrackID string
}

// Presence returns the public view of the session
func (s *Session) Presence() UserPresence {
	return UserPresence{
		ConnectionID:   s.ConnectionID,
		UserID:         s.UserID,
		UserName:       s.UserName,
		Role:           s.Role,
		CursorPosition: s.CursorPosition,
		MousePosition:  s.MousePosition,
		IsEditing:      s.IsEditing,
		EditingTrackID: s.EditingTrackID,
	}
}

// Room is the set of sessions currently collaborating on one project,
// keyed by connection ID. Rooms are created on first join and deleted
// when their session set becomes empty.
type Room struct {
	ProjectID string
	sessions  map[string]*Session
}

func newRoom(projectID string) *Room {
	return &Room{
		ProjectID: projectID,
		sessions:  make(map[string]*Session),
	}
}

func (r *Room) empty() bool {
	return len(r.sessions) == 0
}

// sessionForUser returns the session for userID, if any. A room holds at
// most one session per user; reconnects purge the prior one.
func (r *Room) sessionForUser(userID string) *Session {
	for _, s := range r.sessions {
		if s.UserID == userID {
			return s
		}
	}
	return nil
}

// presences snapshots the public fields of every session in the room
func (r *Room) presences() []UserPresence {
	out := make([]UserPresence, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Presence())
	}
	return out
}
