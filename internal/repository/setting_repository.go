package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docgate/internal/models"
)

var ErrSettingNotFound = errors.New("setting not found")

type SettingRepository struct {
	pool *pgxpool.Pool
}

func NewSettingRepository(pool *pgxpool.Pool) *SettingRepository {
	return &SettingRepository{pool: pool}
}

func (r *SettingRepository) Get(ctx context.Context, key string) (models.SystemSetting, error) {
	const query = `
		SELECT key, value, description, updated_by, created_at, updated_at
		FROM system_settings WHERE key = $1
	`
	var setting models.SystemSetting
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&setting.Key,
		&setting.Value,
		&setting.Description,
		&setting.UpdatedBy,
		&setting.CreatedAt,
		&setting.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.SystemSetting{}, ErrSettingNotFound
	}
	return setting, err
}

// Upsert writes value and the audit fields. A nil description keeps the
// stored one.
func (r *SettingRepository) Upsert(ctx context.Context, setting models.SystemSetting) error {
	const query = `
		INSERT INTO system_settings (key, value, description, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (key)
		DO UPDATE SET
			value = EXCLUDED.value,
			description = COALESCE(EXCLUDED.description, system_settings.description),
			updated_by = EXCLUDED.updated_by,
			updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query, setting.Key, setting.Value, setting.Description, setting.UpdatedBy)
	return err
}

func (r *SettingRepository) List(ctx context.Context) ([]models.SystemSetting, error) {
	const query = `
		SELECT key, value, description, updated_by, created_at, updated_at
		FROM system_settings ORDER BY key ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []models.SystemSetting
	for rows.Next() {
		var setting models.SystemSetting
		if err := rows.Scan(
			&setting.Key,
			&setting.Value,
			&setting.Description,
			&setting.UpdatedBy,
			&setting.CreatedAt,
			&setting.UpdatedAt,
		); err != nil {
			return nil, err
		}
		settings = append(settings, setting)
	}
	return settings, rows.Err()
}
