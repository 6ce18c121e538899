package postgres

import (
	"context"
	"errors"

	"properpakistan-api/internal/domain"
	"properpakistan-api/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL error codes
const (
	pgUniqueViolation = "23505"
)

const profileColumns = `id, email, full_name, COALESCE(avatar_url, ''), role, created_at, updated_at`

type profileRepo struct {
	db *pgxpool.Pool
}

func NewProfileRepository(db *pgxpool.Pool) domain.ProfileRepository {
	return &profileRepo{db: db}
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(&p.ID, &p.Email, &p.Name, &p.AvatarURL, &p.Role, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, apperror.Internal(err)
	}
	return &p, nil
}

func (r *profileRepo) Create(ctx context.Context, p *domain.Profile) error {
	query := `INSERT INTO profiles (id, email, full_name, avatar_url, role, created_at, updated_at)
              VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)`
	_, err := r.db.Exec(ctx, query, p.ID, p.Email, p.Name, p.AvatarURL, p.Role, p.CreatedAt, p.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrProfileExists
		}
		return apperror.Internal(err)
	}
	return nil
}

func (r *profileRepo) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return scanProfile(r.db.QueryRow(ctx, query, id))
}

// UpdateInfo changes only the mutable identity fields. The role column is never
// written here, so the sync path cannot escalate privileges.
func (r *profileRepo) UpdateInfo(ctx context.Context, id, name, avatarURL string) (*domain.Profile, error) {
	query := `UPDATE profiles
              SET full_name = $2, avatar_url = NULLIF($3, ''), updated_at = NOW()
              WHERE id = $1
              RETURNING ` + profileColumns
	return scanProfile(r.db.QueryRow(ctx, query, id, name, avatarURL))
}

func (r *profileRepo) UpdateRole(ctx context.Context, id, role string) (*domain.Profile, error) {
	query := `UPDATE profiles SET role = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + profileColumns
	return scanProfile(r.db.QueryRow(ctx, query, id, role))
}

func (r *profileRepo) List(ctx context.Context) ([]domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	defer rows.Close()

	profiles := []domain.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Internal(err)
	}
	return profiles, nil
}
