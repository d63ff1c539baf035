package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/taskmanager/taskmanager-go/internal/middleware"
	"github.com/taskmanager/taskmanager-go/internal/model"
	"github.com/taskmanager/taskmanager-go/internal/service"
)

var sortableFields = map[string]bool{
	model.SortByDescription: true,
	model.SortByCompleted:   true,
	model.SortByCreatedAt:   true,
	model.SortByUpdatedAt:   true,
}

// TaskHandler handles HTTP requests for the caller's tasks.
type TaskHandler struct {
	service *service.TaskService
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(svc *service.TaskService) *TaskHandler {
	return &TaskHandler{service: svc}
}

// HandleCreate handles POST /tasks requests.
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	var req model.CreateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	task, err := h.service.Create(r.Context(), user.ID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, task)
}

// HandleList handles GET /tasks requests.
//
//	GET /tasks?completed=true
//	GET /tasks?limit=10&skip=20
//	GET /tasks?sortBy=createdAt:desc
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	q, err := parseTaskQuery(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	tasks, err := h.service.List(r.Context(), user.ID, q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tasks)
}

// HandleGet handles GET /tasks/{id} requests.
func (h *TaskHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	task, err := h.service.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// HandleUpdate handles PATCH /tasks/{id} requests.
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	var req model.UpdateTaskRequest
	if err := decodePatch(w, r, model.UpdateTaskFields, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	task, err := h.service.Update(r.Context(), user.ID, chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// HandleDelete handles DELETE /tasks/{id} requests and responds with the
// removed task.
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	task, err := h.service.Delete(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// parseTaskQuery reads the listing parameters. Any malformed value is an error.
func parseTaskQuery(values url.Values) (model.TaskQuery, error) {
	var q model.TaskQuery

	if v := values.Get("completed"); v != "" {
		switch v {
		case "true":
			q.Completed = new(bool)
			*q.Completed = true
		case "false":
			q.Completed = new(bool)
		default:
			return q, errors.New("completed must be true or false")
		}
	}

	if v := values.Get("sortBy"); v != "" {
		field, dir, _ := strings.Cut(v, ":")
		if !sortableFields[field] {
			return q, errors.New("invalid sortBy field")
		}
		switch dir {
		case "", "asc":
		case "desc":
			q.SortDesc = true
		default:
			return q, errors.New("sortBy direction must be asc or desc")
		}
		q.SortField = field
	}

	var err error
	if q.Limit, err = nonNegativeInt(values, "limit"); err != nil {
		return q, err
	}
	if q.Skip, err = nonNegativeInt(values, "skip"); err != nil {
		return q, err
	}

	return q, nil
}

func nonNegativeInt(values url.Values, key string) (int, error) {
	v := values.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}
