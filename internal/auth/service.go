package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fenggwsx/roomcast/internal/config"
	"github.com/fenggwsx/roomcast/internal/storage"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidPayload     = errors.New("username and password required")
)

// Token is an issued bearer credential.
type Token struct {
	Token     string
	ExpiresAt time.Time
	UserID    string
	Username  string
}

// Service registers room owners and issues tokens for them.
type Service struct {
	cfg   config.JWTConfig
	users storage.UserStore
}

// NewService constructs an account service.
func NewService(cfg config.JWTConfig, users storage.UserStore) *Service {
	return &Service{cfg: cfg, users: users}
}

// Register creates an account and returns a token for it.
func (s *Service) Register(ctx context.Context, username, password string) (Token, error) {
	user, err := s.createUser(ctx, username, password)
	if err != nil {
		return Token{}, err
	}
	return s.issueToken(user)
}

// Login checks credentials and returns a fresh token.
func (s *Service) Login(ctx context.Context, username, password string) (Token, error) {
	user, err := s.authenticateUser(ctx, username, password)
	if err != nil {
		return Token{}, err
	}
	return s.issueToken(user)
}

func (s *Service) issueToken(user *storage.User) (Token, error) {
	signed, expiresAt, err := NewToken(s.cfg, user.ID, user.Username)
	if err != nil {
		return Token{}, err
	}
	return Token{Token: signed, ExpiresAt: expiresAt, UserID: user.ID, Username: user.Username}, nil
}

func (s *Service) createUser(ctx context.Context, username, password string) (*storage.User, error) {
	username, password, err := sanitizeCredentials(username, password)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &storage.User{
		ID:        uuid.NewString(),
		Username:  username,
		Password:  hashed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		// A concurrent registration can win between the lookup and the insert.
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) authenticateUser(ctx context.Context, username, password string) (*storage.User, error) {
	username, password, err := sanitizeCredentials(username, password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := ComparePassword(user.Password, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func sanitizeCredentials(username, password string) (string, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", "", ErrInvalidPayload
	}
	return username, password, nil
}
