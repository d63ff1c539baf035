package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taskmanager/taskmanager-go/internal/model"
	"github.com/taskmanager/taskmanager-go/internal/repository"
)

// TaskService handles task business logic. Every operation is scoped to the
// owning user.
type TaskService struct {
	repo TaskStore
}

// NewTaskService creates a new TaskService.
func NewTaskService(repo TaskStore) *TaskService {
	return &TaskService{repo: repo}
}

// Create creates a new task owned by ownerID.
func (s *TaskService) Create(ctx context.Context, ownerID string, req model.CreateTaskRequest) (*model.Task, error) {
	description := strings.TrimSpace(req.Description)
	if err := checkField(description, descriptionRules); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task := &model.Task{
		ID:          uuid.NewString(),
		Description: description,
		Completed:   req.Completed,
		Owner:       ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	return task, nil
}

// List returns the owner's tasks matching q.
func (s *TaskService) List(ctx context.Context, ownerID string, q model.TaskQuery) ([]model.Task, error) {
	tasks, err := s.repo.List(ctx, ownerID, q)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

// Get returns a single task if it exists and belongs to ownerID.
func (s *TaskService) Get(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	if _, err := uuid.Parse(taskID); err != nil {
		return nil, ErrTaskNotFound
	}

	task, err := s.repo.GetByID(ctx, ownerID, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	return task, nil
}

// Update applies a partial update to one of the owner's tasks.
func (s *TaskService) Update(ctx context.Context, ownerID, taskID string, req model.UpdateTaskRequest) (*model.Task, error) {
	var description string
	if req.Description != nil {
		description = strings.TrimSpace(*req.Description)
		if err := checkField(description, descriptionRules); err != nil {
			return nil, err
		}
	}

	task, err := s.Get(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}

	if req.Description != nil {
		task.Description = description
	}
	if req.Completed != nil {
		task.Completed = *req.Completed
	}
	task.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, task); err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("updating task: %w", err)
	}

	return task, nil
}

// Delete removes one of the owner's tasks and returns it.
func (s *TaskService) Delete(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	if _, err := uuid.Parse(taskID); err != nil {
		return nil, ErrTaskNotFound
	}

	task, err := s.repo.Delete(ctx, ownerID, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	return task, nil
}
