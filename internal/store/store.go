// Package store is the durable user/project/track store the coordinator
// consults for identity and membership. The coordinator itself never
// writes here; the REST API does.
package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = errors.New("not found")
	// ErrNotMember indicates the user has no membership on the project
	ErrNotMember = errors.New("not a project member")
	// ErrDuplicate indicates a uniqueness violation (e.g. email taken)
	ErrDuplicate = errors.New("already exists")
)

// Role governs which actions a session may perform in a project
type Role string

const (
	RoleOwner        Role = "OWNER"
	RoleAdmin        Role = "ADMIN"
	RoleCollaborator Role = "COLLABORATOR"
	RoleViewer       Role = "VIEWER"
)

// CanEdit reports whether the role may mutate project state
func (r Role) CanEdit() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleCollaborator:
		return true
	default:
		return false
	}
}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleCollaborator, RoleViewer:
		return true
	default:
		return false
	}
}

// User is an account in the directory
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Project is a multi-track audio project
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Collaborator is a membership row granting a role on a project
type Collaborator struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      Role   `json:"role"`
}

// Track is one audio track within a project
type Track struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Volume    float64   `json:"volume"`
	Pan       float64   `json:"pan"`
	Muted     bool      `json:"muted"`
	Solo      bool      `json:"solo"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
