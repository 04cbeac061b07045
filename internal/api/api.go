// Package api exposes the REST surface for account, project and track
// management. Realtime collaboration happens over the WebSocket endpoint;
// this package covers everything that does not need a live connection.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/waveroom/waveroom/internal/auth"
	"github.com/waveroom/waveroom/internal/logger"
	"github.com/waveroom/waveroom/internal/store"
)

// API bundles the persistent store and the token service behind an
// http.Handler.
type API struct {
	store  *store.Store
	tokens *auth.TokenService
	router *httprouter.Router
	log    *logger.Logger
}

// New constructs the API and registers all routes.
func New(st *store.Store, tokens *auth.TokenService) *API {
	a := &API{
		store:  st,
		tokens: tokens,
		router: httprouter.New(),
		log:    logger.Global().WithPrefix("api"),
	}
	a.registerRoutes()
	return a
}

func (a *API) registerRoutes() {
	r := a.router

	r.POST("/api/users", a.handleRegister)
	r.POST("/api/login", a.handleLogin)

	r.GET("/api/projects", a.authed(a.handleListProjects))
	r.POST("/api/projects", a.authed(a.handleCreateProject))
	r.GET("/api/projects/:id", a.authed(a.handleGetProject))
	r.PUT("/api/projects/:id", a.authed(a.handleUpdateProject))
	r.DELETE("/api/projects/:id", a.authed(a.handleDeleteProject))

	r.GET("/api/projects/:id/collaborators", a.authed(a.handleListCollaborators))
	r.PUT("/api/projects/:id/collaborators/:userID", a.authed(a.handleAddCollaborator))
	r.DELETE("/api/projects/:id/collaborators/:userID", a.authed(a.handleRemoveCollaborator))

	r.GET("/api/projects/:id/tracks", a.authed(a.handleListTracks))
	r.POST("/api/projects/:id/tracks", a.authed(a.handleCreateTrack))
	r.PUT("/api/projects/:id/tracks/:trackID", a.authed(a.handleUpdateTrack))
	r.DELETE("/api/projects/:id/tracks/:trackID", a.authed(a.handleDeleteTrack))
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// authedHandle is an httprouter handle that additionally receives the
// authenticated caller's user ID.
type authedHandle func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, userID string)

// authed verifies the bearer token before invoking next.
func (a *API) authed(next authedHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := a.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r, ps, userID)
	}
}

// memberRole resolves the caller's role in a project and writes the HTTP
// error response itself when the caller has no access. The bool reports
// whether the handler may proceed.
func (a *API) memberRole(w http.ResponseWriter, r *http.Request, projectID, userID string) (store.Role, bool) {
	role, err := a.store.ResolveRole(r.Context(), projectID, userID)
	switch {
	case err == nil:
		return role, true
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrNotMember):
		// Non-members learn nothing about whether the project exists.
		writeError(w, http.StatusNotFound, "project not found")
		return "", false
	default:
		a.log.Error("resolve role for %s on %s: %v", userID, projectID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return "", false
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// storeError translates store sentinels into HTTP responses.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, "already exists")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
