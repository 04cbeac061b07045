package api

import (
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/waveroom/waveroom/internal/store"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "name, email and password are required")
		return
	}

	user, err := a.store.CreateUser(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		a.log.Error("create user %s: %v", req.Email, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	a.log.Info("registered user %s (%s)", user.ID, user.Email)
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := a.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		// Wrong password and unknown email produce the same answer.
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := a.tokens.Issue(user.ID)
	if err != nil {
		a.log.Error("issue token for %s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}
