package postgres

import (
	"context"
	"errors"

	"properpakistan-api/internal/domain"
	"properpakistan-api/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type bookmarkRepo struct {
	db *pgxpool.Pool
}

func NewBookmarkRepository(db *pgxpool.Pool) domain.BookmarkRepository {
	return &bookmarkRepo{db: db}
}

func (r *bookmarkRepo) Find(ctx context.Context, userID, postID string) (*domain.Bookmark, error) {
	query := `SELECT id, user_id, post_id, created_at FROM bookmarks WHERE user_id = $1 AND post_id = $2`
	var b domain.Bookmark
	err := r.db.QueryRow(ctx, query, userID, postID).Scan(&b.ID, &b.UserID, &b.PostID, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.Internal(err)
	}
	return &b, nil
}

func (r *bookmarkRepo) Add(ctx context.Context, userID, postID string) error {
	// A double click racing the toggle lands on the unique (user_id, post_id) key
	query := `INSERT INTO bookmarks (user_id, post_id) VALUES ($1, $2) ON CONFLICT (user_id, post_id) DO NOTHING`
	if _, err := r.db.Exec(ctx, query, userID, postID); err != nil {
		return apperror.Internal(err)
	}
	return nil
}

func (r *bookmarkRepo) Remove(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM bookmarks WHERE id = $1`, id); err != nil {
		return apperror.Internal(err)
	}
	return nil
}

func (r *bookmarkRepo) ListByUser(ctx context.Context, userID string) ([]domain.Bookmark, error) {
	query := `SELECT id, user_id, post_id, created_at FROM bookmarks WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	defer rows.Close()

	bookmarks := []domain.Bookmark{}
	for rows.Next() {
		var b domain.Bookmark
		if err := rows.Scan(&b.ID, &b.UserID, &b.PostID, &b.CreatedAt); err != nil {
			return nil, apperror.Internal(err)
		}
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Internal(err)
	}
	return bookmarks, nil
}
