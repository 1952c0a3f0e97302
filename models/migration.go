package models

import (
	"github.com/ghoridigital/secretcodes_backend/config"
)

// MigrateTable runs schema auto-migration for every model in the service.
func MigrateTable() {
	db := config.GetDB()
	logger := config.GetLogger()

	err := db.AutoMigrate(
		&SecretCode{},
		&GenerateJob{},
		&SecretCodeLog{},
		&ProductOfferLead{},
		&Setting{},
		&ExportHistory{},
	)
	if err != nil {
		config.LogError(logger, "models", "MigrateTable", "auto migrate failed", nil, err)
	}
}
