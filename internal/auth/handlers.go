package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/noah-isme/backend-grocery/internal/common"
)

// Handler exposes the signup and login endpoints.
type Handler struct {
	Svc *Service
}

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup handles POST /api/auth/signup.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.FlatError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	session, err := h.Svc.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, session)
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.FlatError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	session, err := h.Svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, session)
}

func writeAuthError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		common.FlatError(w, status, appErr.Message, "")
		return
	}
	common.FlatError(w, http.StatusInternalServerError, "Server error", "")
}
