package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskmanager/taskmanager-go/internal/model"
	"github.com/taskmanager/taskmanager-go/internal/repository"
	"go.etcd.io/bbolt"
)

// userRecord is the stored form of a user. Unlike model.User it keeps every field.
type userRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Age          int       `json:"age"`
	PasswordHash string    `json:"password_hash"`
	Tokens       []string  `json:"tokens"`
	Avatar       []byte    `json:"avatar,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toRecord(u *model.User) userRecord {
	return userRecord{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Age:          u.Age,
		PasswordHash: u.PasswordHash,
		Tokens:       u.Tokens,
		Avatar:       u.Avatar,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (r userRecord) toModel() *model.User {
	return &model.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		Age:          r.Age,
		PasswordHash: r.PasswordHash,
		Tokens:       r.Tokens,
		Avatar:       r.Avatar,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// UserRepository stores users in the users bucket, with an email index in the
// emails bucket.
type UserRepository struct {
	db *bbolt.DB
}

func getUser(tx *bbolt.Tx, id string) (*userRecord, error) {
	data := tx.Bucket(bucketUsers).Get([]byte(id))
	if data == nil {
		return nil, repository.ErrUserNotFound
	}

	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &rec, nil
}

func putUser(tx *bbolt.Tx, rec *userRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	return tx.Bucket(bucketUsers).Put([]byte(rec.ID), data)
}

// modifyUser loads a user, applies fn and writes it back in one transaction.
func (r *UserRepository) modifyUser(id string, fn func(rec *userRecord)) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getUser(tx, id)
		if err != nil {
			return err
		}
		fn(rec)
		return putUser(tx, rec)
	})
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		emails := tx.Bucket(bucketEmails)
		if emails.Get([]byte(user.Email)) != nil {
			return repository.ErrDuplicateEmail
		}
		if err := emails.Put([]byte(user.Email), []byte(user.ID)); err != nil {
			return err
		}

		rec := toRecord(user)
		return putUser(tx, &rec)
	})
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user *model.User
	err := r.db.View(func(tx *bbolt.Tx) error {
		rec, err := getUser(tx, id)
		if err != nil {
			return err
		}
		user = rec.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByEmail retrieves a user by email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user *model.User
	err := r.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketEmails).Get([]byte(email))
		if id == nil {
			return repository.ErrUserNotFound
		}
		rec, err := getUser(tx, string(id))
		if err != nil {
			return err
		}
		user = rec.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Update writes the mutable profile fields of a user, moving its email index
// entry when the email changes.
func (r *UserRepository) Update(ctx context.Context, user *model.User) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getUser(tx, user.ID)
		if err != nil {
			return err
		}

		if rec.Email != user.Email {
			emails := tx.Bucket(bucketEmails)
			if owner := emails.Get([]byte(user.Email)); owner != nil && !bytes.Equal(owner, []byte(user.ID)) {
				return repository.ErrDuplicateEmail
			}
			if err := emails.Delete([]byte(rec.Email)); err != nil {
				return err
			}
			if err := emails.Put([]byte(user.Email), []byte(user.ID)); err != nil {
				return err
			}
		}

		rec.Name = user.Name
		rec.Email = user.Email
		rec.Age = user.Age
		rec.PasswordHash = user.PasswordHash
		rec.UpdatedAt = user.UpdatedAt
		return putUser(tx, rec)
	})
}

// SetAvatar replaces the user's avatar. A nil avatar clears it.
func (r *UserRepository) SetAvatar(ctx context.Context, userID string, avatar []byte) error {
	return r.modifyUser(userID, func(rec *userRecord) {
		rec.Avatar = avatar
		rec.UpdatedAt = time.Now().UTC()
	})
}

// AddToken appends a token to the user's token list.
func (r *UserRepository) AddToken(ctx context.Context, userID, token string) error {
	return r.modifyUser(userID, func(rec *userRecord) {
		rec.Tokens = append(rec.Tokens, token)
	})
}

// RemoveToken removes one token from the user's token list.
func (r *UserRepository) RemoveToken(ctx context.Context, userID, token string) error {
	return r.modifyUser(userID, func(rec *userRecord) {
		kept := rec.Tokens[:0]
		for _, t := range rec.Tokens {
			if t != token {
				kept = append(kept, t)
			}
		}
		rec.Tokens = kept
	})
}

// RemoveAllTokens empties the user's token list.
func (r *UserRepository) RemoveAllTokens(ctx context.Context, userID string) error {
	return r.modifyUser(userID, func(rec *userRecord) {
		rec.Tokens = nil
	})
}

// Delete removes the user, its email index entry and all of its tasks in one
// transaction.
func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getUser(tx, userID)
		if err != nil {
			return err
		}

		owned, err := taskKeysOwnedBy(tx, userID)
		if err != nil {
			return err
		}
		tasks := tx.Bucket(bucketTasks)
		for _, k := range owned {
			if err := tasks.Delete(k); err != nil {
				return fmt.Errorf("failed to delete task: %w", err)
			}
		}

		if err := tx.Bucket(bucketEmails).Delete([]byte(rec.Email)); err != nil {
			return err
		}
		return tx.Bucket(bucketUsers).Delete([]byte(userID))
	})
}
