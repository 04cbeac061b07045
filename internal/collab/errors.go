package collab

import "fmt"

// PermissionError indicates the caller's role is insufficient for the
// requested action. The connection stays open; the error surfaces as a
// denial or error event to the offending connection only.
type PermissionError struct {
	Action    string
	ProjectID string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied for %s on project %s", e.Action, e.ProjectID)
}

// NotFoundError indicates the project does not exist or the caller is not
// a member of it.
type NotFoundError struct {
	ProjectID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("project %s not found or not a member", e.ProjectID)
}

// NotConnectedError indicates an event arrived for a connection the
// coordinator does not know, or one that has not joined the project it is
// acting on.
type NotConnectedError struct {
	ConnectionID string
	ProjectID    string
}

func (e *NotConnectedError) Error() string {
	if e.ProjectID != "" {
		return fmt.Sprintf("connection %s has not joined project %s", e.ConnectionID, e.ProjectID)
	}
	return fmt.Sprintf("connection %s is not registered", e.ConnectionID)
}
