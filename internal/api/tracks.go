package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

type createTrackRequest struct {
	Name string `json:"name"`
}

type updateTrackRequest struct {
	Name     string   `json:"name"`
	Volume   *float64 `json:"volume"`
	Pan      *float64 `json:"pan"`
	Muted    *bool    `json:"muted"`
	Solo     *bool    `json:"solo"`
	Position *int     `json:"position"`
}

func (a *API) handleListTracks(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string) {
	projectID := ps.ByName("id")
	if _, ok := a.memberRole(w, r, projectID, userID); !ok {
		return
	}

	tracks, err := a.store.ListTracks(r.Context(), projectID)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (a *API) handleCreateTrack(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string) {
	projectID := ps.ByName("id")
	role, ok := a.memberRole(w, r, projectID, userID)
	if !ok {
		return
	}
	if !role.CanEdit() {
		writeError(w, http.StatusForbidden, "viewers cannot modify the project")
		return
	}

	var req createTrackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	track, err := a.store.CreateTrack(r.Context(), projectID, req.Name)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, track)
}

func (a *API) handleUpdateTrack(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string) {
	projectID := ps.ByName("id")
	role, ok := a.memberRole(w, r, projectID, userID)
	if !ok {
		return
	}
	if !role.CanEdit() {
		writeError(w, http.StatusForbidden, "viewers cannot modify the project")
		return
	}

	track, err := a.store.GetTrack(r.Context(), ps.ByName("trackID"))
	if err != nil {
		storeError(w, err)
		return
	}
	if track.ProjectID != projectID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var req updateTrackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name != "" {
		track.Name = req.Name
	}
	if req.Volume != nil {
		track.Volume = *req.Volume
	}
	if req.Pan != nil {
		track.Pan = *req.Pan
	}
	if req.Muted != nil {
		track.Muted = *req.Muted
	}
	if req.Solo != nil {
		track.Solo = *req.Solo
	}
	if req.Position != nil {
		track.Position = *req.Position
	}

	updated, err := a.store.UpdateTrack(r.Context(), track)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleDeleteTrack(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string) {
	projectID := ps.ByName("id")
	role, ok := a.memberRole(w, r, projectID, userID)
	if !ok {
		return
	}
	if !role.CanEdit() {
		writeError(w, http.StatusForbidden, "viewers cannot modify the project")
		return
	}

	track, err := a.store.GetTrack(r.Context(), ps.ByName("trackID"))
	if err != nil {
		storeError(w, err)
		return
	}
	if track.ProjectID != projectID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if err := a.store.DeleteTrack(r.Context(), track.ID); err != nil {
		storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
