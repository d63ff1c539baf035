package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/taskmanager/taskmanager-go/internal/model"
	"github.com/taskmanager/taskmanager-go/internal/repository"
	"go.etcd.io/bbolt"
)

// taskRecord is the stored form of a task. Seq records insertion order and
// breaks ties between tasks created in the same instant.
type taskRecord struct {
	model.Task
	Seq uint64 `json:"seq"`
}

// TaskRepository stores tasks in the tasks bucket keyed by "<owner>/<task>",
// so every lookup is addressed by owner.
type TaskRepository struct {
	db *bbolt.DB
}

func ownerPrefix(ownerID string) []byte {
	return []byte(ownerID + "/")
}

func taskKey(ownerID, taskID string) []byte {
	return append(ownerPrefix(ownerID), taskID...)
}

func getTask(tx *bbolt.Tx, ownerID, taskID string) (*taskRecord, error) {
	data := tx.Bucket(bucketTasks).Get(taskKey(ownerID, taskID))
	if data == nil {
		return nil, repository.ErrTaskNotFound
	}

	var rec taskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &rec, nil
}

func putTask(tx *bbolt.Tx, rec *taskRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	return tx.Bucket(bucketTasks).Put(taskKey(rec.Owner, rec.ID), data)
}

// forEachOwned calls fn for every task stored under ownerID.
func forEachOwned(tx *bbolt.Tx, ownerID string, fn func(k, v []byte) error) error {
	prefix := ownerPrefix(ownerID)
	c := tx.Bucket(bucketTasks).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

func taskKeysOwnedBy(tx *bbolt.Tx, ownerID string) ([][]byte, error) {
	var keys [][]byte
	err := forEachOwned(tx, ownerID, func(k, _ []byte) error {
		keys = append(keys, append([]byte(nil), k...))
		return nil
	})
	return keys, err
}

// Create inserts a new task. The owner must exist.
func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketUsers).Get([]byte(task.Owner)) == nil {
			return repository.ErrUserNotFound
		}

		seq, err := tx.Bucket(bucketTasks).NextSequence()
		if err != nil {
			return err
		}
		return putTask(tx, &taskRecord{Task: *task, Seq: seq})
	})
}

// List retrieves the owner's tasks, filtered, ordered and paged by q.
func (r *TaskRepository) List(ctx context.Context, ownerID string, q model.TaskQuery) ([]model.Task, error) {
	var recs []taskRecord
	err := r.db.View(func(tx *bbolt.Tx) error {
		return forEachOwned(tx, ownerID, func(_, v []byte) error {
			var rec taskRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal task: %w", err)
			}
			if q.Completed != nil && rec.Completed != *q.Completed {
				return nil
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return taskLess(recs[i], recs[j], q)
	})

	if q.Skip >= len(recs) {
		return nil, nil
	}
	recs = recs[q.Skip:]
	if q.Limit > 0 && q.Limit < len(recs) {
		recs = recs[:q.Limit]
	}

	tasks := make([]model.Task, len(recs))
	for i, rec := range recs {
		tasks[i] = rec.Task
	}
	return tasks, nil
}

// taskLess orders by the requested field first, then by creation order.
func taskLess(a, b taskRecord, q model.TaskQuery) bool {
	if c := compareField(a.Task, b.Task, q.SortField); c != 0 {
		if q.SortDesc {
			return c > 0
		}
		return c < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Seq < b.Seq
}

func compareField(a, b model.Task, field string) int {
	switch field {
	case model.SortByDescription:
		switch {
		case a.Description < b.Description:
			return -1
		case a.Description > b.Description:
			return 1
		}
	case model.SortByCompleted:
		switch {
		case !a.Completed && b.Completed:
			return -1
		case a.Completed && !b.Completed:
			return 1
		}
	case model.SortByCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case model.SortByUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	}
	return 0
}

// GetByID retrieves a task by ID, provided it belongs to ownerID.
func (r *TaskRepository) GetByID(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	var task *model.Task
	err := r.db.View(func(tx *bbolt.Tx) error {
		rec, err := getTask(tx, ownerID, taskID)
		if err != nil {
			return err
		}
		task = &rec.Task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Update writes description, completed and updatedAt of an owned task.
func (r *TaskRepository) Update(ctx context.Context, task *model.Task) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getTask(tx, task.Owner, task.ID)
		if err != nil {
			return err
		}
		rec.Description = task.Description
		rec.Completed = task.Completed
		rec.UpdatedAt = task.UpdatedAt
		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = time.Now().UTC()
		}
		return putTask(tx, rec)
	})
}

// Delete removes an owned task and returns it.
func (r *TaskRepository) Delete(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	var task *model.Task
	err := r.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getTask(tx, ownerID, taskID)
		if err != nil {
			return err
		}
		task = &rec.Task
		return tx.Bucket(bucketTasks).Delete(taskKey(ownerID, taskID))
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}
