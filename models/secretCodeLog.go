package models

import (
	"context"
	"time"

	"github.com/ghoridigital/secretcodes_backend/config"
)

// SecretCodeLog is one validation attempt. Rows are append-only: the public
// path inserts exactly one per request and remote sync only ever inserts.
type SecretCodeLog struct {
	ID             int        `gorm:"primary_key" json:"id"`
	FrappeName     string     `gorm:"size:191;index" json:"frappe_name"`
	FrappeCreation *time.Time `json:"frappe_creation"`

	SearchedCode string `gorm:"size:64;index;not null" json:"searched_code"`
	PublicCode   string `gorm:"size:16;index" json:"public_code"`

	Status         string `gorm:"size:20;not null" json:"status"`
	IsMatched      bool   `gorm:"not null;default:false" json:"is_matched"`
	FailReason     string `gorm:"size:64" json:"fail_reason"`
	SuccessAttempt int    `json:"success_attempt"`
	Message        string `gorm:"size:255" json:"message"`
	Description    string `gorm:"type:text" json:"description"`

	SearchIPAddress     string  `gorm:"size:64" json:"search_ip_address"`
	SearchDeviceDetails string  `gorm:"type:text" json:"search_device_details"`
	SearchCity          string  `gorm:"size:128" json:"search_city"`
	SearchCountry       string  `gorm:"size:128" json:"search_country"`
	SearchLatitude      float64 `json:"search_latitude"`
	SearchLongitude     float64 `json:"search_longitude"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewSecretCodeLog carries the fields the validator records per attempt.
type NewSecretCodeLog struct {
	SearchedCode   string
	PublicCode     string
	Status         string
	IsMatched      bool
	FailReason     string
	SuccessAttempt int
	Message        string
	Description    string

	SearchIPAddress     string
	SearchDeviceDetails string
	SearchCity          string
	SearchCountry       string
	SearchLatitude      float64
	SearchLongitude     float64
}

func CreateSecretCodeLog(ctx context.Context, input *NewSecretCodeLog) (*SecretCodeLog, error) {
	db := config.GetDB()

	record := SecretCodeLog{
		SearchedCode:        input.SearchedCode,
		PublicCode:          input.PublicCode,
		Status:              input.Status,
		IsMatched:           input.IsMatched,
		FailReason:          input.FailReason,
		SuccessAttempt:      input.SuccessAttempt,
		Message:             input.Message,
		Description:         input.Description,
		SearchIPAddress:     input.SearchIPAddress,
		SearchDeviceDetails: input.SearchDeviceDetails,
		SearchCity:          input.SearchCity,
		SearchCountry:       input.SearchCountry,
		SearchLatitude:      input.SearchLatitude,
		SearchLongitude:     input.SearchLongitude,
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	NotifyLiveRefresh("secret_code_log")
	return &record, nil
}
