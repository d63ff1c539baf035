package model

import "time"

// Task is a to-do item owned by exactly one user.
type Task struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CreateTaskRequest represents a task creation request.
// The owner is always the authenticated caller, so it is not part of the request.
type CreateTaskRequest struct {
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// UpdateTaskRequest carries a partial task update. Nil fields are left unchanged.
type UpdateTaskRequest struct {
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// UpdateTaskFields lists the keys a task update may contain.
var UpdateTaskFields = []string{"completed", "description"}

// Sortable task fields, as accepted by the sortBy query parameter.
const (
	SortByDescription = "description"
	SortByCompleted   = "completed"
	SortByCreatedAt   = "createdAt"
	SortByUpdatedAt   = "updatedAt"
)

// TaskQuery filters, orders and pages a task listing.
// A nil Completed matches every task; an empty SortField keeps creation order;
// a zero Limit means no limit.
type TaskQuery struct {
	Completed *bool
	SortField string
	SortDesc  bool
	Limit     int
	Skip      int
}
