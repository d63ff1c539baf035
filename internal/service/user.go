package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taskmanager/taskmanager-go/internal/avatar"
	"github.com/taskmanager/taskmanager-go/internal/crypto"
	"github.com/taskmanager/taskmanager-go/internal/model"
	"github.com/taskmanager/taskmanager-go/internal/repository"
)

// UserService handles registration, authentication and profile management.
type UserService struct {
	repo      UserStore
	jwtSecret string
	jwtExpiry time.Duration
}

// NewUserService creates a new UserService.
func NewUserService(repo UserStore, secret string, expiry time.Duration) *UserService {
	return &UserService{
		repo:      repo,
		jwtSecret: secret,
		jwtExpiry: expiry,
	}
}

// Register creates a new user account and returns it with a fresh auth token.
func (s *UserService) Register(ctx context.Context, req model.CreateUserRequest) (model.AuthResponse, error) {
	password := strings.TrimSpace(req.Password)
	p := profile{
		name:     normalizeName(req.Name),
		email:    normalizeEmail(req.Email),
		password: &password,
	}
	if req.Age != nil {
		p.age = *req.Age
	}
	if err := validateProfile(p); err != nil {
		return model.AuthResponse{}, err
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return model.AuthResponse{}, err
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           uuid.NewString(),
		Name:         p.name,
		Email:        p.email,
		Age:          p.age,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return model.AuthResponse{}, invalid("email already exists")
		}
		return model.AuthResponse{}, fmt.Errorf("creating user: %w", err)
	}

	token, err := s.IssueToken(ctx, user)
	if err != nil {
		return model.AuthResponse{}, err
	}

	return model.AuthResponse{User: user, Token: token}, nil
}

// FindByCredentials returns the user with the given email if password matches.
// An unknown email and a wrong password both yield ErrInvalidCredentials.
func (s *UserService) FindByCredentials(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !crypto.VerifyPassword(strings.TrimSpace(password), user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Login authenticates a user and returns an auth token.
func (s *UserService) Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error) {
	user, err := s.FindByCredentials(ctx, req.Email, req.Password)
	if err != nil {
		return model.AuthResponse{}, err
	}

	token, err := s.IssueToken(ctx, user)
	if err != nil {
		return model.AuthResponse{}, err
	}

	return model.AuthResponse{User: user, Token: token}, nil
}

// IssueToken signs a new token for user and appends it to the user's token list.
func (s *UserService) IssueToken(ctx context.Context, user *model.User) (string, error) {
	token, err := crypto.GenerateToken(user.ID, s.jwtSecret, s.jwtExpiry)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	if err := s.repo.AddToken(ctx, user.ID, token); err != nil {
		return "", fmt.Errorf("storing token: %w", err)
	}
	user.Tokens = append(user.Tokens, token)

	return token, nil
}

// Authenticate resolves a bearer token to its user. The token must verify and
// must still be in the user's token list, so logged-out tokens are rejected
// before they expire.
func (s *UserService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := crypto.ValidateToken(token, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	if !user.HasToken(token) {
		return nil, ErrUnauthorized
	}

	return user, nil
}

// Logout revokes a single token.
func (s *UserService) Logout(ctx context.Context, userID, token string) error {
	return s.repo.RemoveToken(ctx, userID, token)
}

// LogoutAll revokes every token of the user.
func (s *UserService) LogoutAll(ctx context.Context, userID string) error {
	return s.repo.RemoveAllTokens(ctx, userID)
}

// GetUser retrieves a user by ID.
func (s *UserService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, ErrUserNotFound
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return user, nil
}

// UpdateProfile applies a partial update to user. All fields are validated
// before anything is written, and the password is re-hashed only when supplied.
func (s *UserService) UpdateProfile(ctx context.Context, user *model.User, req model.UpdateUserRequest) (*model.User, error) {
	p := profile{
		name:  user.Name,
		email: user.Email,
		age:   user.Age,
	}
	if req.Name != nil {
		p.name = normalizeName(*req.Name)
	}
	if req.Email != nil {
		p.email = normalizeEmail(*req.Email)
	}
	if req.Age != nil {
		p.age = *req.Age
	}
	if req.Password != nil {
		password := strings.TrimSpace(*req.Password)
		p.password = &password
	}
	if err := validateProfile(p); err != nil {
		return nil, err
	}

	updated := *user
	updated.Name = p.name
	updated.Email = p.email
	updated.Age = p.age
	if p.password != nil {
		hash, err := crypto.HashPassword(*p.password)
		if err != nil {
			return nil, err
		}
		updated.PasswordHash = hash
	}
	updated.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, &updated); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, invalid("email already exists")
		}
		return nil, fmt.Errorf("updating user: %w", err)
	}

	return &updated, nil
}

// DeleteSelf removes the user along with every task it owns.
func (s *UserService) DeleteSelf(ctx context.Context, user *model.User) error {
	if err := s.repo.Delete(ctx, user.ID); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	slog.Info("user deleted", "user_id", user.ID)
	return nil
}

// SetAvatar normalizes an uploaded image and stores it as the user's avatar,
// replacing any previous one.
func (s *UserService) SetAvatar(ctx context.Context, user *model.User, filename string, data []byte) error {
	img, err := avatar.Normalize(filename, data)
	if err != nil {
		return err
	}

	if err := s.repo.SetAvatar(ctx, user.ID, img); err != nil {
		return fmt.Errorf("storing avatar: %w", err)
	}
	user.Avatar = img
	return nil
}

// DeleteAvatar clears the user's avatar.
func (s *UserService) DeleteAvatar(ctx context.Context, user *model.User) error {
	if len(user.Avatar) == 0 {
		return ErrAvatarNotFound
	}

	if err := s.repo.SetAvatar(ctx, user.ID, nil); err != nil {
		return fmt.Errorf("clearing avatar: %w", err)
	}
	user.Avatar = nil
	return nil
}
