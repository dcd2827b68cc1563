package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zoe-analytics/zoe/pkg/apperr"
	"github.com/zoe-analytics/zoe/pkg/types"
)

func (s *Server) userList(w http.ResponseWriter, r *http.Request) {
	_, role, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	users, err := s.facade.UserList(role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) userByName(w http.ResponseWriter, r *http.Request) {
	_, role, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := s.facade.UserByName(role, chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// userUpdatePatch is a partial update: unset fields leave the stored value
// unchanged. Password, if set, is bcrypt-hashed before being stored.
type userUpdatePatch struct {
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	Password *string `json:"password"`
}

func (s *Server) userUpdate(w http.ResponseWriter, r *http.Request) {
	_, role, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	name := chi.URLParam(r, "name")
	user, err := s.facade.UserByName(role, name)
	if err != nil {
		writeError(w, err)
		return
	}

	var patch userUpdatePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, apperr.New(apperr.InvalidState, "malformed request body"))
		return
	}
	if patch.Email != nil {
		user.Email = *patch.Email
	}
	if patch.Role != nil {
		user.Role = types.Role(*patch.Role)
	}
	if patch.Password != nil {
		hash, err := HashPassword(*patch.Password)
		if err != nil {
			writeError(w, apperr.Wrap(apperr.Internal, err, "hash password"))
			return
		}
		user.PasswordHash = hash
	}

	if err := s.facade.UserUpdate(role, user); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
