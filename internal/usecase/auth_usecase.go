package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"properpakistan-api/internal/domain"
	"properpakistan-api/pkg/apperror"
	"properpakistan-api/pkg/logger"
	"properpakistan-api/pkg/metrics"
	"properpakistan-api/pkg/validation"

	"github.com/go-playground/validator/v10"
)

type authUsecase struct {
	profileRepo domain.ProfileRepository
	cache       domain.ProfileCache
	validate    *validator.Validate
	metrics     *metrics.Metrics
}

func NewAuthUsecase(profileRepo domain.ProfileRepository, cache domain.ProfileCache, validate *validator.Validate, m *metrics.Metrics) domain.AuthUsecase {
	if cache == nil {
		cache = passthroughCache{}
	}
	return &authUsecase{profileRepo: profileRepo, cache: cache, validate: validate, metrics: m}
}

// SyncProfile reconciles an auth identity with its profile row. It is
// idempotent: the first call creates the row with role "user", later calls only
// refresh name and avatar. The stored role is returned unchanged and is never
// taken from the request.
func (u *authUsecase) SyncProfile(ctx context.Context, input domain.SyncProfileInput) (*domain.Profile, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Avatar = strings.TrimSpace(input.Avatar)
	if err := u.validate.Struct(input); err != nil {
		return nil, apperror.BadRequest(strings.Join(validation.FormatValidationErrors(err), "; "))
	}

	existing, err := u.profileRepo.GetByID(ctx, input.SupabaseID)
	if err != nil && !errors.Is(err, domain.ErrProfileNotFound) {
		u.metrics.Sync("failed")
		return nil, err
	}

	var profile *domain.Profile
	if existing == nil {
		profile, err = u.createProfile(ctx, input)
	} else {
		profile, err = u.refreshProfile(ctx, existing, input)
	}
	if err != nil {
		u.metrics.Sync("failed")
		return nil, err
	}

	u.cache.Invalidate(ctx, profile.ID)

	// The auth provider owns the email; profiles created by a DB trigger may not have it
	if profile.Email == "" {
		profile.Email = input.Email
	}
	return profile, nil
}

func (u *authUsecase) createProfile(ctx context.Context, input domain.SyncProfileInput) (*domain.Profile, error) {
	name := input.Name
	if name == "" {
		name = domain.DefaultName(input.Email)
	}
	now := time.Now()
	profile := &domain.Profile{
		ID:        input.SupabaseID,
		Email:     input.Email,
		Name:      name,
		AvatarURL: input.Avatar,
		Role:      domain.RoleUser, // admin is granted out-of-band only
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := u.profileRepo.Create(ctx, profile)
	if errors.Is(err, domain.ErrProfileExists) {
		// Lost the race against the on-signup trigger or a concurrent sync
		logger.Log.Info("Profile created concurrently, re-reading", "user_id", input.SupabaseID)
		existing, getErr := u.profileRepo.GetByID(ctx, input.SupabaseID)
		if getErr != nil {
			return nil, getErr
		}
		return u.refreshProfile(ctx, existing, input)
	}
	if err != nil {
		return nil, err
	}

	u.metrics.Sync("created")
	logger.Log.Info("Profile created", "user_id", profile.ID)
	return profile, nil
}

func (u *authUsecase) refreshProfile(ctx context.Context, existing *domain.Profile, input domain.SyncProfileInput) (*domain.Profile, error) {
	name := input.Name
	if name == "" {
		name = existing.Name
	}
	avatar := input.Avatar
	if avatar == "" {
		avatar = existing.AvatarURL
	}

	if name == existing.Name && avatar == existing.AvatarURL {
		u.metrics.Sync("unchanged")
		return existing, nil
	}

	updated, err := u.profileRepo.UpdateInfo(ctx, existing.ID, name, avatar)
	if err != nil {
		// Sync still succeeds with the stored row; the role is what callers need
		logger.Log.Warn("Profile update skipped", "user_id", existing.ID, "error", err)
		return existing, nil
	}
	u.metrics.Sync("updated")
	return updated, nil
}

func (u *authUsecase) GetCurrentUser(ctx context.Context, id string) (*domain.Profile, error) {
	profile, err := u.cache.Get(ctx, id, func(ctx context.Context) (*domain.Profile, error) {
		return u.profileRepo.GetByID(ctx, id)
	})
	if errors.Is(err, domain.ErrProfileNotFound) {
		return nil, apperror.NotFound("User profile not found")
	}
	return profile, err
}

func (u *authUsecase) UpdateProfile(ctx context.Context, id string, input domain.UpdateProfileInput) (*domain.Profile, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Avatar = strings.TrimSpace(input.Avatar)
	if err := u.validate.Struct(input); err != nil {
		return nil, apperror.BadRequest(strings.Join(validation.FormatValidationErrors(err), "; "))
	}

	existing, err := u.profileRepo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return nil, apperror.NotFound("User profile not found")
	}
	if err != nil {
		return nil, err
	}

	name := input.Name
	if name == "" {
		name = existing.Name
	}
	avatar := input.Avatar
	if avatar == "" {
		avatar = existing.AvatarURL
	}

	updated, err := u.profileRepo.UpdateInfo(ctx, id, name, avatar)
	if err != nil {
		return nil, err
	}
	u.cache.Invalidate(ctx, id)
	return updated, nil
}

func (u *authUsecase) ListUsers(ctx context.Context) ([]domain.Profile, error) {
	if roleFromContext(ctx) != domain.RoleAdmin {
		return nil, apperror.Forbidden("Access denied. Admin privileges required.")
	}
	return u.profileRepo.List(ctx)
}

// AssignRole is the administrative path for granting or revoking admin. Sync
// never calls it.
func (u *authUsecase) AssignRole(ctx context.Context, userID string, role string) (*domain.Profile, error) {
	if roleFromContext(ctx) != domain.RoleAdmin {
		return nil, apperror.Forbidden("Only admins can assign roles")
	}
	if role != domain.RoleUser && role != domain.RoleAdmin {
		return nil, apperror.BadRequest("Role must be one of: user, admin")
	}

	profile, err := u.profileRepo.UpdateRole(ctx, userID, role)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return nil, apperror.NotFound("User not found")
	}
	if err != nil {
		return nil, err
	}

	u.cache.Invalidate(ctx, userID)
	logger.Log.Info("Role assigned", "user_id", userID, "role", role, "by", ctx.Value(string(domain.KeyUserID)))
	return profile, nil
}

// roleFromContext works with both a gin context (c.Set) and context.WithValue.
func roleFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(string(domain.KeyUserRole)).(string); ok && r != "" {
		return r
	}
	r, _ := ctx.Value(domain.KeyUserRole).(string)
	return r
}

// passthroughCache is used when no cache is wired.
type passthroughCache struct{}

func (passthroughCache) Get(ctx context.Context, _ string, load func(ctx context.Context) (*domain.Profile, error)) (*domain.Profile, error) {
	return load(ctx)
}

func (passthroughCache) Invalidate(context.Context, string) {}
