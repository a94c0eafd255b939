package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dmitrijs2005/tasktracker/internal/server/services"
)

// updateProfileRequest tolerates a full user object; email cannot be changed.
type updateProfileRequest struct {
	services.UpdateProfileInput
	serverOwned
	Email json.RawMessage `json:"email"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "Server is running", map[string]any{
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.users.Register(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "User registered successfully", res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in services.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.users.Login(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Login successful", res)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Profile(r.Context(), s.userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"user": user})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.users.UpdateProfile(r.Context(), s.userID(r), req.UpdateProfileInput)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Profile updated successfully", map[string]any{"user": user})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var in services.ChangePasswordInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.users.ChangePassword(r.Context(), s.userID(r), in); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Password changed successfully", nil)
}

// handleAvatarUpload returns a presigned PUT URL. The client uploads the image
// itself and then stores avatarUrl through PUT /api/users/profile.
func (s *Server) handleAvatarUpload(w http.ResponseWriter, r *http.Request) {
	var in services.AvatarUploadInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	up, err := s.avatars.PresignUpload(r.Context(), s.userID(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", up)
}
