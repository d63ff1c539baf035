package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/taskmanager/taskmanager-go/internal/avatar"
	"github.com/taskmanager/taskmanager-go/internal/middleware"
	"github.com/taskmanager/taskmanager-go/internal/model"
	"github.com/taskmanager/taskmanager-go/internal/service"
)

// multipartSlack covers the multipart framing around an avatar upload.
const multipartSlack = 64 << 10

// UserHandler handles HTTP requests for user accounts.
type UserHandler struct {
	service *service.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{service: svc}
}

// HandleRegister handles POST /users requests.
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	resp, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// HandleLogin handles POST /users/login requests.
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleLogout handles POST /users/logout requests. Only the token the
// request was made with is revoked.
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	token, _ := middleware.TokenFromContext(r.Context())

	if err := h.service.Logout(r.Context(), user.ID, token); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleLogoutAll handles POST /users/logoutAll requests.
func (h *UserHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	if err := h.service.LogoutAll(r.Context(), user.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleMe handles GET /users/me requests.
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, user)
}

// HandleGetUser handles GET /users/{id} requests.
func (h *UserHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateMe handles PATCH /users/me requests.
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	var req model.UpdateUserRequest
	if err := decodePatch(w, r, model.UpdateUserFields, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), user, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// HandleDeleteMe handles DELETE /users/me requests and responds with the
// removed account.
func (h *UserHandler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	if err := h.service.DeleteSelf(r.Context(), user); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleUploadAvatar handles POST /users/me/avatar requests. The image is
// read from the multipart field "avatar".
func (h *UserHandler) HandleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, avatar.MaxUploadSize+multipartSlack)
	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(avatar.ErrInvalidUpload.Error()))
		return
	}
	defer file.Close()

	if err := avatar.Validate(header.Filename, header.Size); err != nil {
		writeServiceError(w, r, err)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, avatar.MaxUploadSize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(avatar.ErrInvalidUpload.Error()))
		return
	}

	if err := h.service.SetAvatar(r.Context(), user, header.Filename, data); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleGetMyAvatar handles GET /users/me/avatar requests.
func (h *UserHandler) HandleGetMyAvatar(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	writeAvatar(w, r, user)
}

// HandleGetAvatar handles GET /users/{id}/avatar requests.
func (h *UserHandler) HandleGetAvatar(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeAvatar(w, r, user)
}

// HandleDeleteAvatar handles DELETE /users/me/avatar requests.
func (h *UserHandler) HandleDeleteAvatar(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	if err := h.service.DeleteAvatar(r.Context(), user); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func writeAvatar(w http.ResponseWriter, r *http.Request, user *model.User) {
	if len(user.Avatar) == 0 {
		writeServiceError(w, r, service.ErrAvatarNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(user.Avatar)))
	w.WriteHeader(http.StatusOK)
	w.Write(user.Avatar)
}
