package models

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ghoridigital/secretcodes_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting is the persisted key/value configuration store. The API key and the
// per-stream sync cursors live here so they survive restarts and can be
// updated inside the same transaction as the data they gate.
type Setting struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:191;uniqueIndex;not null" json:"name"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Well-known setting names.
const (
	SettingAPIKey            = "secret_codes.api_key"
	SettingCodesNextPage     = "secret_codes.frappe_secret_codes_next_page"
	SettingLogsNextPage      = "secret_codes.frappe_logs_next_page"
	SettingLeadsNextPage     = "secret_codes.frappe_leads_next_page"
	SettingCodesSyncEnabled  = "secret_codes.frappe_secret_codes_sync_enabled"
	SettingLogsSyncEnabled   = "secret_codes.frappe_logs_sync_enabled"
	SettingLeadsSyncEnabled  = "secret_codes.frappe_leads_sync_enabled"
	SettingCodesSyncRunASAP  = "secret_codes.frappe_secret_codes_sync_run_asap"
)

func GetSettingValue(ctx context.Context, name string, fallback string) (string, error) {
	return getSettingValue(config.GetDB().WithContext(ctx), name, fallback)
}

func getSettingValue(db *gorm.DB, name string, fallback string) (string, error) {
	var setting Setting
	err := db.Where("name = ?", name).Take(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fallback, nil
		}
		return fallback, err
	}
	return setting.Value, nil
}

func SetSettingValue(ctx context.Context, name string, value string) error {
	return SetSettingValueTx(config.GetDB().WithContext(ctx), name, value)
}

// SetSettingValueTx upserts a setting using the given handle so callers can
// persist cursors inside the transaction that applied the gated data.
func SetSettingValueTx(tx *gorm.DB, name string, value string) error {
	setting := Setting{Name: name, Value: value}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

func GetSettingInt(ctx context.Context, name string, fallback int) (int, error) {
	raw, err := GetSettingValue(ctx, name, strconv.Itoa(fallback))
	if err != nil {
		return fallback, err
	}
	n, convErr := strconv.Atoi(raw)
	if convErr != nil {
		return fallback, nil
	}
	return n, nil
}

func SetSettingInt(ctx context.Context, name string, value int) error {
	return SetSettingValue(ctx, name, strconv.Itoa(value))
}

func GetSettingBool(ctx context.Context, name string, fallback bool) (bool, error) {
	def := "false"
	if fallback {
		def = "true"
	}
	raw, err := GetSettingValue(ctx, name, def)
	if err != nil {
		return fallback, err
	}
	return raw == "true" || raw == "1", nil
}

func SetSettingBool(ctx context.Context, name string, value bool) error {
	if value {
		return SetSettingValue(ctx, name, "true")
	}
	return SetSettingValue(ctx, name, "false")
}
