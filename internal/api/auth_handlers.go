package api

import (
	"net/http"

	"github.com/IlyasAtabaev731/credx-wallet/internal/domain/models"
)

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email}
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Success bool         `json:"success"`
	Token   string       `json:"token"`
	User    userResponse `json:"user"`
}

type VerifyResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *APIServer) registerHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if !s.decode(w, r, &req) {
			return
		}

		user, token, err := s.auth.Register(r.Context(), req.Username, req.Email, req.Password)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}

		respondJSON(w, http.StatusCreated, AuthResponse{Success: true, Token: token, User: newUserResponse(user)})
	}
}

func (s *APIServer) loginHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if !s.decode(w, r, &req) {
			return
		}

		user, token, err := s.auth.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}

		respondJSON(w, http.StatusOK, AuthResponse{Success: true, Token: token, User: newUserResponse(user)})
	}
}

func (s *APIServer) verifyHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r.Context())

		respondJSON(w, http.StatusOK, VerifyResponse{
			Success: true,
			User:    userResponse{ID: id.UserID, Username: id.Username},
		})
	}
}

func (s *APIServer) logoutHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.Logout(r.Context(), identityFrom(r.Context())); err != nil {
			s.respondServiceError(w, r, err)
			return
		}

		respondJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Logged out"})
	}
}
