// Package access manages user registration, approval and role resolution.
package access

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ovenbook/internal/booking"
	"ovenbook/internal/clock"
	"ovenbook/internal/config"
	"ovenbook/internal/model"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrInvalidUser  = errors.New("invalid user data")
)

// UserRepository persists user accounts. Getters return (nil, nil) when the
// user does not exist.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, u *model.User) error
	UpdateUser(ctx context.Context, u *model.User) error
	ListUsers(ctx context.Context, status model.UserStatus) ([]*model.User, error)
}

type Service struct {
	users  UserRepository
	clock  clock.Clock
	logger zerolog.Logger
}

func NewService(users UserRepository, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		users:  users,
		clock:  clk,
		logger: logger.With().Str("component", "access").Logger(),
	}
}

// GetUser returns the user or (nil, nil). It satisfies booking.UserDirectory.
func (s *Service) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.users.GetUser(ctx, id)
}

// ListUsers returns users filtered by status; an empty status lists all.
func (s *Service) ListUsers(ctx context.Context, status model.UserStatus) ([]*model.User, error) {
	return s.users.ListUsers(ctx, status)
}

// Register creates a pending account.
func (s *Service) Register(ctx context.Context, name, email string) (*model.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidUser)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidUser)
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("checking email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	now := s.clock.Now()
	u := &model.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      model.RoleUser,
		Status:    model.UserPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info().Str("user_id", u.ID).Str("email", u.Email).Msg("user registered")
	return u, nil
}

// Approve marks a pending or rejected user as approved.
func (s *Service) Approve(ctx context.Context, adminID, userID string) (*model.User, error) {
	return s.setStatus(ctx, adminID, userID, model.UserApproved)
}

// Reject marks a user as rejected; rejected users cannot act.
func (s *Service) Reject(ctx context.Context, adminID, userID string) (*model.User, error) {
	return s.setStatus(ctx, adminID, userID, model.UserRejected)
}

func (s *Service) setStatus(ctx context.Context, adminID, userID string, status model.UserStatus) (*model.User, error) {
	if err := s.RequireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	u, err := s.mustGet(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.Status = status
	u.UpdatedAt = s.clock.Now()
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("admin_id", adminID).
		Str("status", string(status)).
		Msg("user status changed")
	return u, nil
}

// SetRole grants or revokes admin rights.
func (s *Service) SetRole(ctx context.Context, adminID, userID string, role model.Role) (*model.User, error) {
	if role != model.RoleUser && role != model.RoleAdmin {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidUser, role)
	}
	if err := s.RequireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	if adminID == userID && role != model.RoleAdmin {
		return nil, &AccessDeniedError{Reason: "admins cannot revoke their own role"}
	}
	u, err := s.mustGet(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.Role = role
	u.UpdatedAt = s.clock.Now()
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("admin_id", adminID).
		Str("role", string(role)).
		Msg("user role changed")
	return u, nil
}

// ResolveActor maps a caller id to an engine actor. Unknown and rejected
// users are denied.
func (s *Service) ResolveActor(ctx context.Context, userID string) (booking.Actor, error) {
	if strings.TrimSpace(userID) == "" {
		return booking.Actor{}, &AccessDeniedError{Reason: "missing identity"}
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return booking.Actor{}, fmt.Errorf("loading user: %w", err)
	}
	if u == nil {
		return booking.Actor{}, &AccessDeniedError{Reason: "unknown user"}
	}
	if u.Status == model.UserRejected {
		return booking.Actor{}, &AccessDeniedError{Reason: "account rejected"}
	}
	return booking.Actor{ID: u.ID, Role: u.Role}, nil
}

// RequireAdmin returns an AccessDeniedError unless userID is an admin.
func (s *Service) RequireAdmin(ctx context.Context, userID string) error {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("checking admin status: %w", err)
	}
	if u == nil || !u.IsAdmin() || u.Status == model.UserRejected {
		return &AccessDeniedError{Reason: "admin role required"}
	}
	return nil
}

// BootstrapAdmins ensures configured admin accounts exist and are approved.
func (s *Service) BootstrapAdmins(ctx context.Context, admins []config.AdminConfig) (int, error) {
	created := 0
	for _, a := range admins {
		now := s.clock.Now()
		u, err := s.users.GetUser(ctx, a.ID)
		if err != nil {
			return created, fmt.Errorf("loading admin %s: %w", a.ID, err)
		}
		if u != nil {
			if u.Role == model.RoleAdmin && u.Status == model.UserApproved {
				continue
			}
			u.Role = model.RoleAdmin
			u.Status = model.UserApproved
			u.UpdatedAt = now
			if err := s.users.UpdateUser(ctx, u); err != nil {
				return created, fmt.Errorf("promoting admin %s: %w", a.ID, err)
			}
			continue
		}
		u = &model.User{
			ID:        a.ID,
			Name:      a.Name,
			Email:     strings.ToLower(a.Email),
			Role:      model.RoleAdmin,
			Status:    model.UserApproved,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.users.CreateUser(ctx, u); err != nil {
			return created, fmt.Errorf("creating admin %s: %w", a.ID, err)
		}
		created++
	}
	if created > 0 {
		s.logger.Info().Int("count", created).Msg("admin accounts bootstrapped")
	}
	return created, nil
}

func (s *Service) mustGet(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// AccessDeniedError is returned when the caller lacks the required rights.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

// IsAccessDenied checks if error is access denied.
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}
