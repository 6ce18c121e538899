package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"properpakistan-api/internal/domain"
	"properpakistan-api/internal/usecase"
	"properpakistan-api/pkg/apperror"
	"properpakistan-api/pkg/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock Repositories
type MockProfileRepo struct {
	mock.Mock
}

func (m *MockProfileRepo) Create(ctx context.Context, profile *domain.Profile) error {
	return m.Called(ctx, profile).Error(0)
}

func (m *MockProfileRepo) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

func (m *MockProfileRepo) UpdateInfo(ctx context.Context, id, name, avatarURL string) (*domain.Profile, error) {
	args := m.Called(ctx, id, name, avatarURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

func (m *MockProfileRepo) UpdateRole(ctx context.Context, id, role string) (*domain.Profile, error) {
	args := m.Called(ctx, id, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

func (m *MockProfileRepo) List(ctx context.Context) ([]domain.Profile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Profile), args.Error(1)
}

type MockBookmarkRepo struct {
	mock.Mock
}

func (m *MockBookmarkRepo) Find(ctx context.Context, userID, postID string) (*domain.Bookmark, error) {
	args := m.Called(ctx, userID, postID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Bookmark), args.Error(1)
}

func (m *MockBookmarkRepo) Add(ctx context.Context, userID, postID string) error {
	return m.Called(ctx, userID, postID).Error(0)
}

func (m *MockBookmarkRepo) Remove(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBookmarkRepo) ListByUser(ctx context.Context, userID string) ([]domain.Bookmark, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Bookmark), args.Error(1)
}

func syncInput() domain.SyncProfileInput {
	return domain.SyncProfileInput{
		SupabaseID: "u-1",
		Email:      "ali@example.com",
		Name:       "Ali Khan",
		Avatar:     "https://cdn.example.com/a.png",
	}
}

func TestSyncProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("Should create a profile with role user on first sync", func(t *testing.T) {
		repo := new(MockProfileRepo)
		uc := usecase.NewAuthUsecase(repo, nil, validation.New(), nil)

		repo.On("GetByID", ctx, "u-1").Return(nil, domain.ErrProfileNotFound)
		repo.On("Create", ctx, mock.AnythingOfType("*domain.Profile")).Return(nil).Run(func(args mock.Arguments) {
			p := args.Get(1).(*domain.Profile)
			assert.Equal(t, domain.RoleUser, p.Role)
			assert.Equal(t, "Ali Khan", p.Name)
		})

		profile, err := uc.SyncProfile(ctx, syncInput())
		require.NoError(t, err)
		assert.Equal(t, "u-1", profile.ID)
		assert.Equal(t, domain.RoleUser, profile.Role)
		repo.AssertExpectations(t)
	})

	t.Run("Should default name to email local part", func(t *testing.T) {
		repo := new(MockProfileRepo)
		uc := usecase.NewAuthUsecase(repo, nil, validation.New(), nil)

		repo.On("GetByID", ctx, "u-1").Return(nil, domain.ErrProfileNotFound)
		repo.On("Create", ctx, mock.AnythingOfType("*domain.Profile")).Return(nil)

		in := syncInput()
		in.Name = ""
		profile, err := uc.SyncProfile(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "ali", profile.Name)
	})

	t.Run("Should never change the stored role", func(t *testing.T) {
		repo := new(MockProfileRepo)
		uc := usecase.NewAuthUsecase(repo, nil, validation.New(), nil)

		existing := &domain.Profile{ID: "u-1", Email: "ali@example.com", Name: "Old", Role: domain.RoleAdmin}
		repo.On("GetByID", ctx, "u-1").Return(existing, nil)
		repo.On("UpdateInfo", ctx, "u-1", "Ali Khan", "https://cdn.example.com/a.png").
			Return(&domain.Profile{ID: "u-1", Email: "ali@example.com", Name: "Ali Khan", AvatarURL: "https://cdn.example.com/a.png", Role: domain.RoleAdmin}, nil)

		profile, err := uc.SyncProfile(ctx, syncInput())
		require.NoError(t, err)
		assert.Equal(t, domain.RoleAdmin, profile.Role)
		repo.AssertNotCalled(t, "UpdateRole", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Should be idempotent when nothing changed", func(t *testing.T) {
		repo := new(MockProfileRepo)
		uc := usecase.NewAuthUsecase(repo, nil, validation.New(), nil)

		existing := &domain.Profile{ID: "u-1", Email: "ali@example.com", Name: "Ali Khan", AvatarURL: "https://cdn.example.com/a.png", Role: domain.RoleUser}
		repo.On("GetByID", ctx, "u-1").Return(existing, nil)

		first, err := uc.SyncProfile(ctx, syncInput())
		require.NoError(t, err)
		second, err := uc.SyncProfile(ctx, syncInput())
		require.NoError(t, err)
		assert.Equal(t, first, second)
		repo.AssertNotCalled(t, "UpdateInfo", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("Should keep stored avatar when none is sent", func(t *testing.T) {
		repo := new(MockProfileRepo)
		uc := usecase.NewAuthUsecase(repo, nil, validation.New(), nil)

		existing := &domain.Profile{ID: "u-1", Name: "Old", AvatarURL: "https://cdn.example.com/old.png", Role: domain.RoleUser}
		repo.On("GetByID", ctx, "u-1").Return(existing, nil)
		repo.On("UpdateInfo", ctx, "u-1", "Ali Khan", "https://cdn.example.com/old.png").
			Return(&domain.Profile{ID: "u-1", Name: "Ali Khan", AvatarURL: "https://cdn.example.com/old.png", Role: domain.RoleUser}, nil)

		in := syncInput()
		in.Avatar = ""
		profile, err := uc.SyncProfile(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/old.png", profile.AvatarURL)
		assert.Equal(t, "ali@example.com", profile.Email)
	})

	t.Run("Should re-read when the row was created concurrently", func(t *testing.T) {
		repo := new(MockProfileRepo)
		uc := usecase.NewAuthUsecase(repo, nil, validation.New(), nil)

		created := &domain.Profile{ID: "u-1", Email: "ali@example.com", Name: "Ali Khan", AvatarURL: "https://cdn.example.com/a.png", Role: domain.RoleUser}
		repo.On("GetByID", ctx, "u-1").Return(nil, domain.ErrProfileNotFound).Once()
		repo.On("Create", ctx, mock.Anything).Return(domain.ErrProfileExists)
		repo.On("GetByID", ctx, "u-1").Return(created, nil).Once()

		profile, err := uc.SyncProfile(ctx, syncInput())
		require.NoError(t, err)
		assert.Equal(t, created, profile)
	})

	t.Run("Should reject missing supabaseId or invalid email", func(t *testing.T) {
		repo := new(MockProfileRepo)
		uc := usecase.NewAuthUsecase(repo, nil, validation.New(), nil)

		_, err := uc.SyncProfile(ctx, domain.SyncProfileInput{Email: "ali@example.com"})
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, http.StatusBadRequest, appErr.Code)

		_, err = uc.SyncProfile(ctx, domain.SyncProfileInput{SupabaseID: "u-1", Email: "nope"})
		assert.Error(t, err)
		repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})

	t.Run("Should surface database errors", func(t *testing.T) {
		repo := new(MockProfileRepo)
		uc := usecase.NewAuthUsecase(repo, nil, validation.New(), nil)

		repo.On("GetByID", ctx, "u-1").Return(nil, errors.New("connection refused"))
		_, err := uc.SyncProfile(ctx, syncInput())
		assert.EqualError(t, err, "connection refused")
	})
}

func TestGetCurrentUser(t *testing.T) {
	ctx := context.Background()

	t.Run("Should map a missing profile to 404", func(t *testing.T) {
		repo := new(MockProfileRepo)
		uc := usecase.NewAuthUsecase(repo, nil, validation.New(), nil)
		repo.On("GetByID", ctx, "ghost").Return(nil, domain.ErrProfileNotFound)

		_, err := uc.GetCurrentUser(ctx, "ghost")
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, http.StatusNotFound, appErr.Code)
	})

	t.Run("Should return the stored profile", func(t *testing.T) {
		repo := new(MockProfileRepo)
		uc := usecase.NewAuthUsecase(repo, nil, validation.New(), nil)
		p := &domain.Profile{ID: "u-1", Role: domain.RoleUser, CreatedAt: time.Now()}
		repo.On("GetByID", ctx, "u-1").Return(p, nil)

		got, err := uc.GetCurrentUser(ctx, "u-1")
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("Should reject names with emoji", func(t *testing.T) {
		repo := new(MockProfileRepo)
		uc := usecase.NewAuthUsecase(repo, nil, validation.New(), nil)

		_, err := uc.UpdateProfile(ctx, "u-1", domain.UpdateProfileInput{Name: "Ali 😀"})
		assert.Error(t, err)
		repo.AssertNotCalled(t, "UpdateInfo", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Should only touch name and avatar", func(t *testing.T) {
		repo := new(MockProfileRepo)
		uc := usecase.NewAuthUsecase(repo, nil, validation.New(), nil)

		repo.On("GetByID", ctx, "u-1").Return(&domain.Profile{ID: "u-1", Name: "Old", AvatarURL: "https://cdn.example.com/a.png", Role: domain.RoleUser}, nil)
		repo.On("UpdateInfo", ctx, "u-1", "New Name", "https://cdn.example.com/a.png").
			Return(&domain.Profile{ID: "u-1", Name: "New Name", AvatarURL: "https://cdn.example.com/a.png", Role: domain.RoleUser}, nil)

		got, err := uc.UpdateProfile(ctx, "u-1", domain.UpdateProfileInput{Name: "New Name"})
		require.NoError(t, err)
		assert.Equal(t, "New Name", got.Name)
		assert.Equal(t, domain.RoleUser, got.Role)
	})
}

func TestAuthPrivilege(t *testing.T) {
	repo := new(MockProfileRepo)
	uc := usecase.NewAuthUsecase(repo, nil, validation.New(), nil)

	t.Run("Should fail if role is not admin", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), domain.KeyUserRole, domain.RoleUser)
		_, err := uc.AssignRole(ctx, "target_user", domain.RoleAdmin)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "Only admins can assign roles")
	})

	t.Run("Should fail safe if role is nil", func(t *testing.T) {
		ctx := context.Background()
		_, err := uc.AssignRole(ctx, "target_user", domain.RoleAdmin)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "Only admins can assign roles")

		_, err = uc.ListUsers(ctx)
		assert.Error(t, err)
	})

	t.Run("Should reject unknown roles", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), domain.KeyUserRole, domain.RoleAdmin)
		_, err := uc.AssignRole(ctx, "target_user", "superuser")
		assert.Error(t, err)
		repo.AssertNotCalled(t, "UpdateRole", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Should let admins promote users", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), domain.KeyUserRole, domain.RoleAdmin)
		repo.On("UpdateRole", ctx, "target_user", domain.RoleAdmin).
			Return(&domain.Profile{ID: "target_user", Role: domain.RoleAdmin}, nil)

		p, err := uc.AssignRole(ctx, "target_user", domain.RoleAdmin)
		require.NoError(t, err)
		assert.True(t, p.IsAdmin())
	})

	t.Run("Should list users for admins", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), domain.KeyUserRole, domain.RoleAdmin)
		repo.On("List", ctx).Return([]domain.Profile{{ID: "a"}, {ID: "b"}}, nil)

		users, err := uc.ListUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 2)
	})
}

func TestBookmarkToggle(t *testing.T) {
	ctx := context.Background()

	t.Run("Should add when absent", func(t *testing.T) {
		repo := new(MockBookmarkRepo)
		uc := usecase.NewBookmarkUsecase(repo)
		repo.On("Find", ctx, "u-1", "post-9").Return(nil, nil)
		repo.On("Add", ctx, "u-1", "post-9").Return(nil)

		on, err := uc.Toggle(ctx, "u-1", "post-9")
		require.NoError(t, err)
		assert.True(t, on)
	})

	t.Run("Should remove when present", func(t *testing.T) {
		repo := new(MockBookmarkRepo)
		uc := usecase.NewBookmarkUsecase(repo)
		repo.On("Find", ctx, "u-1", "post-9").Return(&domain.Bookmark{ID: 7, UserID: "u-1", PostID: "post-9"}, nil)
		repo.On("Remove", ctx, int64(7)).Return(nil)

		on, err := uc.Toggle(ctx, "u-1", "post-9")
		require.NoError(t, err)
		assert.False(t, on)
	})

	t.Run("Should require a post id", func(t *testing.T) {
		uc := usecase.NewBookmarkUsecase(new(MockBookmarkRepo))
		_, err := uc.Toggle(ctx, "u-1", "  ")
		assert.Error(t, err)
	})
}

func TestHealthCheck(t *testing.T) {
	uc := usecase.NewHealthUsecase(map[string]usecase.Pinger{
		"database": usecase.PingFunc(func(context.Context) error { return nil }),
		"redis":    usecase.PingFunc(func(context.Context) error { return errors.New("down") }),
		"cache":    nil,
	})

	result := uc.Check(context.Background())
	assert.Equal(t, "degraded", result["status"])
	assert.Equal(t, "up", result["database"])
	assert.Equal(t, "down", result["redis"])
	assert.Equal(t, "disabled", result["cache"])
}
