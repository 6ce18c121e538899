package usecase

import (
	"context"
	"strings"

	"properpakistan-api/internal/domain"
	"properpakistan-api/pkg/apperror"
)

type bookmarkUsecase struct {
	repo domain.BookmarkRepository
}

func NewBookmarkUsecase(repo domain.BookmarkRepository) domain.BookmarkUsecase {
	return &bookmarkUsecase{repo: repo}
}

func (u *bookmarkUsecase) Toggle(ctx context.Context, userID, postID string) (bool, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return false, apperror.BadRequest("Post ID is required")
	}

	existing, err := u.repo.Find(ctx, userID, postID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		if err := u.repo.Remove(ctx, existing.ID); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := u.repo.Add(ctx, userID, postID); err != nil {
		return false, err
	}
	return true, nil
}

func (u *bookmarkUsecase) List(ctx context.Context, userID string) ([]domain.Bookmark, error) {
	return u.repo.ListByUser(ctx, userID)
}
