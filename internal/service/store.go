package service

import (
	"context"

	"github.com/taskmanager/taskmanager-go/internal/model"
)

// Store implementations report missing rows with repository.ErrUserNotFound or
// repository.ErrTaskNotFound and email collisions with repository.ErrDuplicateEmail.

// UserStore persists users and their token lists.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// Update writes name, email, age, password hash and updatedAt.
	Update(ctx context.Context, user *model.User) error
	// SetAvatar replaces the stored avatar; a nil avatar clears it.
	SetAvatar(ctx context.Context, userID string, avatar []byte) error
	AddToken(ctx context.Context, userID, token string) error
	RemoveToken(ctx context.Context, userID, token string) error
	RemoveAllTokens(ctx context.Context, userID string) error
	// Delete removes the user together with every task and token it owns.
	Delete(ctx context.Context, userID string) error
}

// TaskStore persists tasks. Every lookup is scoped by owner.
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	List(ctx context.Context, ownerID string, q model.TaskQuery) ([]model.Task, error)
	GetByID(ctx context.Context, ownerID, taskID string) (*model.Task, error)
	Update(ctx context.Context, task *model.Task) error
	Delete(ctx context.Context, ownerID, taskID string) (*model.Task, error)
}
