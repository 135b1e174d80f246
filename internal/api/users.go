package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ovenbook/internal/access"
	"ovenbook/internal/model"
)

type RegisterRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type RoleRequest struct {
	Role model.Role `json:"role"`
}

// POST /api/v1/users
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, err := s.access.Register(r.Context(), req.Name, req.Email)
	if err != nil {
		s.writeAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// GET /api/v1/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.access.GetUser(r.Context(), actorFrom(r).ID)
	if err == nil && u == nil {
		err = access.ErrUserNotFound
	}
	if err != nil {
		s.writeAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GET /api/v1/users?status=PENDING
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.access.ListUsers(r.Context(), model.UserStatus(r.URL.Query().Get("status")))
	if err != nil {
		s.writeAccessError(w, err)
		return
	}
	if users == nil {
		users = []*model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// POST /api/v1/users/{userID}/approve
func (s *Server) handleApproveUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.access.Approve(r.Context(), actorFrom(r).ID, chi.URLParam(r, "userID"))
	if err != nil {
		s.writeAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// POST /api/v1/users/{userID}/reject
func (s *Server) handleRejectUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.access.Reject(r.Context(), actorFrom(r).ID, chi.URLParam(r, "userID"))
	if err != nil {
		s.writeAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// PUT /api/v1/users/{userID}/role
func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, err := s.access.SetRole(r.Context(), actorFrom(r).ID, chi.URLParam(r, "userID"), req.Role)
	if err != nil {
		s.writeAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
