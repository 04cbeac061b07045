package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/waveroom/waveroom/internal/store"
)

type projectRequest struct {
	Name string `json:"name"`
}

type collaboratorRequest struct {
	Role store.Role `json:"role"`
}

// canManageMembers reports whether the role may change the collaborator
// list. Regular collaborators edit content, not membership.
func canManageMembers(role store.Role) bool {
	return role == store.RoleOwner || role == store.RoleAdmin
}

func (a *API) handleListProjects(w http.ResponseWriter, r *http.Request, _ httprouter.Params, userID string) {
	projects, err := a.store.ListProjectsForUser(r.Context(), userID)
	if err != nil {
		a.log.Error("list projects for %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (a *API) handleCreateProject(w http.ResponseWriter, r *http.Request, _ httprouter.Params, userID string) {
	var req projectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	project, err := a.store.CreateProject(r.Context(), req.Name, userID)
	if err != nil {
		a.log.Error("create project for %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	a.log.Info("project %s created by %s", project.ID, userID)
	writeJSON(w, http.StatusCreated, project)
}

func (a *API) handleGetProject(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string) {
	projectID := ps.ByName("id")
	if _, ok := a.memberRole(w, r, projectID, userID); !ok {
		return
	}

	project, err := a.store.GetProject(r.Context(), projectID)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (a *API) handleUpdateProject(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string) {
	projectID := ps.ByName("id")
	role, ok := a.memberRole(w, r, projectID, userID)
	if !ok {
		return
	}
	if !role.CanEdit() {
		writeError(w, http.StatusForbidden, "viewers cannot modify the project")
		return
	}

	var req projectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	project, err := a.store.UpdateProject(r.Context(), projectID, req.Name)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (a *API) handleDeleteProject(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string) {
	projectID := ps.ByName("id")
	role, ok := a.memberRole(w, r, projectID, userID)
	if !ok {
		return
	}
	if role != store.RoleOwner {
		writeError(w, http.StatusForbidden, "only the owner can delete a project")
		return
	}

	if err := a.store.DeleteProject(r.Context(), projectID); err != nil {
		storeError(w, err)
		return
	}
	a.log.Info("project %s deleted by %s", projectID, userID)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListCollaborators(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string) {
	projectID := ps.ByName("id")
	if _, ok := a.memberRole(w, r, projectID, userID); !ok {
		return
	}

	collaborators, err := a.store.ListCollaborators(r.Context(), projectID)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collaborators)
}

func (a *API) handleAddCollaborator(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string) {
	projectID := ps.ByName("id")
	role, ok := a.memberRole(w, r, projectID, userID)
	if !ok {
		return
	}
	if !canManageMembers(role) {
		writeError(w, http.StatusForbidden, "insufficient role to manage collaborators")
		return
	}

	var req collaboratorRequest
	if !decodeBody(w, r, &req) {
		return
	}

	targetID := ps.ByName("userID")
	if _, err := a.store.FindUserByID(r.Context(), targetID); err != nil {
		storeError(w, err)
		return
	}

	if err := a.store.AddCollaborator(r.Context(), projectID, targetID, req.Role); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.log.Info("collaborator %s set to %s on %s by %s", targetID, req.Role, projectID, userID)
	writeJSON(w, http.StatusOK, &store.Collaborator{ProjectID: projectID, UserID: targetID, Role: req.Role})
}

func (a *API) handleRemoveCollaborator(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string) {
	projectID := ps.ByName("id")
	role, ok := a.memberRole(w, r, projectID, userID)
	if !ok {
		return
	}
	if !canManageMembers(role) {
		writeError(w, http.StatusForbidden, "insufficient role to manage collaborators")
		return
	}

	if err := a.store.RemoveCollaborator(r.Context(), projectID, ps.ByName("userID")); err != nil {
		storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
