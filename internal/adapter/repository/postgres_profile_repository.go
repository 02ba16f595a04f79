package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"talentos/internal/domain/entity"
	"talentos/internal/domain/repository"
	"talentos/pkg/errors"
)

type postgresProfileRepository struct {
	db *sql.DB
}

func NewPostgresProfileRepository(db *sql.DB) repository.ProfileRepository {
	return &postgresProfileRepository{
		db: db,
	}
}

func (r *postgresProfileRepository) GetByID(ctx context.Context, id string) (*entity.Profile, error) {
	profile := &entity.Profile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, display_name, COALESCE(avatar_url, '') FROM profiles WHERE id = $1`,
		id,
	).Scan(&profile.ID, &profile.DisplayName, &profile.AvatarURL)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("Profile", err)
		}
		return nil, errors.Internal("Failed to get profile", err)
	}
	return profile, nil
}
