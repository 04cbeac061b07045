package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateProject creates a project owned by ownerID
func (s *Store) CreateProject(ctx context.Context, name, ownerID string) (*Project, error) {
	if name == "" || ownerID == "" {
		return nil, fmt.Errorf("name and owner are required")
	}

	now := time.Now().UTC()
	p := &Project{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.OwnerID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}

	return p, nil
}

// GetProject fetches a project by ID
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, created_at, updated_at FROM projects WHERE id = ?`, id)

	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	return &p, nil
}

// ListProjectsForUser returns projects the user owns or collaborates on
func (s *Store) ListProjectsForUser(ctx context.Context, userID string) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT p.id, p.name, p.owner_id, p.created_at, p.updated_at
		 FROM projects p
		 LEFT JOIN collaborators c ON c.project_id = p.id
		 WHERE p.owner_id = ? OR c.user_id = ?
		 ORDER BY p.updated_at DESC`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// UpdateProject renames a project and bumps its updated_at
func (s *Store) UpdateProject(ctx context.Context, id, name string) (*Project, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetProject(ctx, id)
}

// DeleteProject removes a project and, via foreign keys, its tracks and
// collaborator rows
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCollaborator grants userID a role on the project, replacing any
// previous grant
func (s *Store) AddCollaborator(ctx context.Context, projectID, userID string, role Role) error {
	if !role.Valid() || role == RoleOwner {
		return fmt.Errorf("invalid collaborator role %q", role)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collaborators (project_id, user_id, role) VALUES (?, ?, ?)
		 ON CONFLICT(project_id, user_id) DO UPDATE SET role = excluded.role`,
		projectID, userID, string(role))
	if err != nil {
		return fmt.Errorf("upsert collaborator: %w", err)
	}
	return nil
}

// RemoveCollaborator revokes a membership
func (s *Store) RemoveCollaborator(ctx context.Context, projectID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM collaborators WHERE project_id = ? AND user_id = ?`,
		projectID, userID)
	if err != nil {
		return fmt.Errorf("delete collaborator: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCollaborators returns the membership rows for a project
func (s *Store) ListCollaborators(ctx context.Context, projectID string) ([]*Collaborator, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, user_id, role FROM collaborators WHERE project_id = ?`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("query collaborators: %w", err)
	}
	defer rows.Close()

	var out []*Collaborator
	for rows.Next() {
		var c Collaborator
		var role string
		if err := rows.Scan(&c.ProjectID, &c.UserID, &role); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		c.Role = Role(role)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// ResolveRole computes the caller's effective role on a project: OWNER if
// they own it, otherwise the collaborator row's role. Returns ErrNotFound
// for unknown projects and ErrNotMember when no membership exists.
func (s *Store) ResolveRole(ctx context.Context, projectID, userID string) (Role, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	if p.OwnerID == userID {
		return RoleOwner, nil
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT role FROM collaborators WHERE project_id = ? AND user_id = ?`,
		projectID, userID)

	var role string
	err = row.Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotMember
	}
	if err != nil {
		return "", fmt.Errorf("query collaborator: %w", err)
	}

	return Role(role), nil
}
