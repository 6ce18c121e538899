package domain

import (
	"context"
	"time"
)

type Bookmark struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	PostID    string    `json:"postId"`
	CreatedAt time.Time `json:"createdAt"`
}

type BookmarkRepository interface {
	Find(ctx context.Context, userID, postID string) (*Bookmark, error)
	Add(ctx context.Context, userID, postID string) error
	Remove(ctx context.Context, id int64) error
	ListByUser(ctx context.Context, userID string) ([]Bookmark, error)
}

type BookmarkUsecase interface {
	// Toggle reports whether the post is bookmarked after the call.
	Toggle(ctx context.Context, userID, postID string) (bool, error)
	List(ctx context.Context, userID string) ([]Bookmark, error)
}
