package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"docgate/internal/models"
	"docgate/internal/repository"
)

const (
	SettingAutoApproveDocuments = "auto_approve_documents"
	SettingMaintenanceMode      = "maintenance_mode"
)

type SettingStore interface {
	Get(ctx context.Context, key string) (models.SystemSetting, error)
	Upsert(ctx context.Context, setting models.SystemSetting) error
	List(ctx context.Context) ([]models.SystemSetting, error)
}

// SettingsService reads process-wide settings straight from the store on
// every call, so a toggle applies to the next request.
type SettingsService struct {
	store SettingStore
	log   zerolog.Logger
}

func NewSettingsService(store SettingStore, log zerolog.Logger) *SettingsService {
	return &SettingsService{store: store, log: log}
}

func (s *SettingsService) Get(ctx context.Context, key string, def string) (string, error) {
	setting, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrSettingNotFound) {
			return def, nil
		}
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	if setting.Value == "" {
		return def, nil
	}
	return setting.Value, nil
}

// GetBool treats "true" and "1" as true and any other stored value as false.
func (s *SettingsService) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	value, err := s.Get(ctx, key, strconv.FormatBool(def))
	if err != nil {
		return false, err
	}
	return value == "true" || value == "1", nil
}

func (s *SettingsService) Set(ctx context.Context, key string, value string, updatedBy string, description *string) error {
	setting := models.SystemSetting{
		Key:         key,
		Value:       value,
		Description: description,
	}
	if updatedBy != "" {
		setting.UpdatedBy = &updatedBy
	}
	if err := s.store.Upsert(ctx, setting); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	s.log.Info().Str("key", key).Str("value", value).Str("updated_by", updatedBy).Msg("setting updated")
	return nil
}

func (s *SettingsService) List(ctx context.Context) ([]models.SystemSetting, error) {
	return s.store.List(ctx)
}

func (s *SettingsService) AutoApprovalEnabled(ctx context.Context) (bool, error) {
	return s.GetBool(ctx, SettingAutoApproveDocuments, false)
}

func (s *SettingsService) SetAutoApproval(ctx context.Context, enabled bool, adminID string) error {
	description := "Automatically approve uploaded documents without manual review"
	return s.Set(ctx, SettingAutoApproveDocuments, strconv.FormatBool(enabled), adminID, &description)
}
