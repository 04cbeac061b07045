package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateTrack appends a track to a project
func (s *Store) CreateTrack(ctx context.Context, projectID, name string) (*Track, error) {
	if projectID == "" || name == "" {
		return nil, fmt.Errorf("project and name are required")
	}

	now := time.Now().UTC()
	t := &Track{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		Volume:    1.0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM tracks WHERE project_id = ?`, projectID)
	if err := row.Scan(&t.Position); err != nil {
		return nil, fmt.Errorf("next track position: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracks (id, project_id, name, volume, pan, muted, solo, position, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Name, t.Volume, t.Pan, t.Muted, t.Solo, t.Position, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert track: %w", err)
	}

	return t, nil
}

// GetTrack fetches a track by ID
func (s *Store) GetTrack(ctx context.Context, id string) (*Track, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, volume, pan, muted, solo, position, created_at, updated_at
		 FROM tracks WHERE id = ?`, id)
	return scanTrack(row)
}

// ListTracks returns a project's tracks in position order
func (s *Store) ListTracks(ctx context.Context, projectID string) ([]*Track, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, volume, pan, muted, solo, position, created_at, updated_at
		 FROM tracks WHERE project_id = ? ORDER BY position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*Track
	for rows.Next() {
		var t Track
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Volume, &t.Pan,
			&t.Muted, &t.Solo, &t.Position, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, &t)
	}
	return tracks, rows.Err()
}

// UpdateTrack applies field changes to a track
func (s *Store) UpdateTrack(ctx context.Context, t *Track) (*Track, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracks SET name = ?, volume = ?, pan = ?, muted = ?, solo = ?, position = ?, updated_at = ?
		 WHERE id = ?`,
		t.Name, t.Volume, t.Pan, t.Muted, t.Solo, t.Position, time.Now().UTC(), t.ID)
	if err != nil {
		return nil, fmt.Errorf("update track: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetTrack(ctx, t.ID)
}

// DeleteTrack removes a track
func (s *Store) DeleteTrack(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete track: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTrack(row *sql.Row) (*Track, error) {
	var t Track
	err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Volume, &t.Pan,
		&t.Muted, &t.Solo, &t.Position, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query track: %w", err)
	}
	return &t, nil
}
