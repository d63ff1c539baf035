package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/taskmanager/taskmanager-go/internal/middleware"
	"github.com/taskmanager/taskmanager-go/internal/service"
)

// RouterDeps holds everything the router needs.
type RouterDeps struct {
	Users       *service.UserService
	Tasks       *service.TaskService
	AuthLimiter *middleware.RateLimiter
	Logger      *slog.Logger
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool
}

// NewRouter builds the HTTP routes. Registration and login are rate limited
// per client when AuthLimiter is set; every other route except /health
// requires a bearer token.
func NewRouter(deps RouterDeps) http.Handler {
	userHandler := NewUserHandler(deps.Users)
	taskHandler := NewTaskHandler(deps.Tasks)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Recoverer(deps.Logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		if deps.AuthLimiter != nil {
			r.Use(deps.AuthLimiter.Handler)
		}
		r.Post("/users", userHandler.HandleRegister)
		r.Post("/users/login", userHandler.HandleLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(deps.Users))

		r.Post("/users/logout", userHandler.HandleLogout)
		r.Post("/users/logoutAll", userHandler.HandleLogoutAll)
		r.Get("/users/me", userHandler.HandleMe)
		r.Patch("/users/me", userHandler.HandleUpdateMe)
		r.Delete("/users/me", userHandler.HandleDeleteMe)
		r.Post("/users/me/avatar", userHandler.HandleUploadAvatar)
		r.Get("/users/me/avatar", userHandler.HandleGetMyAvatar)
		r.Delete("/users/me/avatar", userHandler.HandleDeleteAvatar)
		r.Get("/users/{id}", userHandler.HandleGetUser)
		r.Get("/users/{id}/avatar", userHandler.HandleGetAvatar)

		r.Post("/tasks", taskHandler.HandleCreate)
		r.Get("/tasks", taskHandler.HandleList)
		r.Get("/tasks/{id}", taskHandler.HandleGet)
		r.Patch("/tasks/{id}", taskHandler.HandleUpdate)
		r.Delete("/tasks/{id}", taskHandler.HandleDelete)
	})

	return r
}
