package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
)

// Profile is the application-owned record for an auth identity. ID equals the
// Supabase user id and is the join key between auth and application data.
type Profile struct {
	ID        string    `json:"id"` // Supabase UUID
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"-"`
}

func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// SyncProfileInput is the body of POST /api/auth/sync.
type SyncProfileInput struct {
	SupabaseID string `json:"supabaseId" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name" validate:"omitempty,max=100,valid_name,no_emoji"`
	Avatar     string `json:"avatar" validate:"omitempty,max=2048,avatar_url"`
}

// UpdateProfileInput is the body of PUT /api/auth/profile.
type UpdateProfileInput struct {
	Name   string `json:"name" validate:"omitempty,max=100,valid_name,no_emoji"`
	Avatar string `json:"avatar" validate:"omitempty,max=2048,avatar_url"`
}

// DefaultName is used when the identity carries no display name.
func DefaultName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

type ProfileRepository interface {
	Create(ctx context.Context, profile *Profile) error
	GetByID(ctx context.Context, id string) (*Profile, error)
	UpdateInfo(ctx context.Context, id, name, avatarURL string) (*Profile, error)
	UpdateRole(ctx context.Context, id, role string) (*Profile, error)
	List(ctx context.Context) ([]Profile, error)
}

// ProfileCache sits in front of ProfileRepository.GetByID for the per-request
// profile lookup done by the auth middleware.
type ProfileCache interface {
	Get(ctx context.Context, id string, load func(ctx context.Context) (*Profile, error)) (*Profile, error)
	Invalidate(ctx context.Context, id string)
}

type AuthUsecase interface {
	SyncProfile(ctx context.Context, input SyncProfileInput) (*Profile, error)
	GetCurrentUser(ctx context.Context, id string) (*Profile, error)
	UpdateProfile(ctx context.Context, id string, input UpdateProfileInput) (*Profile, error)
	ListUsers(ctx context.Context) ([]Profile, error)
	AssignRole(ctx context.Context, userID string, role string) (*Profile, error)
}
