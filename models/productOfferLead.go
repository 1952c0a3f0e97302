package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ghoridigital/secretcodes_backend/config"
	"github.com/ghoridigital/secretcodes_backend/utils"
	"github.com/shopspring/decimal"
)

var (
	ErrEmailOrMobileRequired = errors.New("email_or_mobile_required")
	ErrSecretCodeRequired    = errors.New("secret_code_required")
	ErrInvalidEmail          = errors.New("invalid_email")
	ErrInvalidMobile         = errors.New("invalid_mobile_number")
)

// ProductOfferLead is one captured lead, identified by its (email,
// mobile_number) pair. subscribed_count and subscription_rating are derived
// over the whole identity group and kept mutually consistent.
type ProductOfferLead struct {
	ID             int        `gorm:"primary_key" json:"id"`
	FrappeName     string     `gorm:"size:191;index" json:"frappe_name"`
	FrappeCreation *time.Time `json:"frappe_creation"`

	SecretCode      string `gorm:"size:32;index;not null" json:"secret_code"`
	VerificationLog string `gorm:"size:255" json:"verification_log"`
	Email           string `gorm:"size:191;index" json:"email"`
	MobileNumber    string `gorm:"size:32;index" json:"mobile_number"`
	Source          string `gorm:"size:32;not null;default:PRODUCT_VERIFICATION" json:"source"`

	SubscribedCount         int             `gorm:"not null;default:0" json:"subscribed_count"`
	SubscriptionRating      decimal.Decimal `gorm:"type:decimal(3,1);not null;default:0" json:"subscription_rating"`
	SubscriptionRatingStars string          `gorm:"size:32" json:"subscription_rating_stars"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`
}

// NewProductOfferLead is a lead submission from the public surface.
type NewProductOfferLead struct {
	Email           string `json:"email"`
	MobileNumber    string `json:"mobile_number"`
	SecretCode      string `json:"secret_code" binding:"required"`
	VerificationLog string `json:"verification_log"`
	Source          string `json:"source"`
}

// LeadResult reports whether the submission created a record or matched an
// existing subscription.
type LeadResult struct {
	ID                int
	AlreadyRegistered bool
}

// SubscriptionRatingFor caps the derived rating at five stars.
func SubscriptionRatingFor(count int) decimal.Decimal {
	if count > 5 {
		count = 5
	}
	return decimal.NewFromInt(int64(count))
}

// StarsForCount renders the filled/empty star display string.
func StarsForCount(count int) string {
	if count < 0 {
		count = 0
	}
	if count > 5 {
		count = 5
	}
	return strings.Repeat("★", count) + strings.Repeat("☆", 5-count)
}

// SubmitLead deduplicates by (email OR mobile) identity. A match is a repeat
// subscription: no new row, the whole identity group's metrics are
// recomputed. Otherwise a new lead is created.
func SubmitLead(ctx context.Context, input *NewProductOfferLead) (*LeadResult, error) {
	email := strings.TrimSpace(input.Email)
	mobile := utils.NormalizeMobileNumber(strings.TrimSpace(input.MobileNumber))
	secretCode := strings.TrimSpace(input.SecretCode)

	if email == "" && mobile == "" {
		return nil, ErrEmailOrMobileRequired
	}
	if secretCode == "" {
		return nil, ErrSecretCodeRequired
	}
	if email != "" && !utils.IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if mobile != "" {
		if err := utils.ValidatePhoneNumber(mobile, utils.DefaultCountryCode); err != nil {
			return nil, ErrInvalidMobile
		}
	}

	db := config.GetDB()

	existing, err := findLeadGroup(ctx, email, mobile)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		if err := UpdateSubscriptionMetricsFor(ctx, email, mobile); err != nil {
			return nil, err
		}
		NotifyLiveRefresh("product_offer_lead")
		return &LeadResult{ID: existing[0].ID, AlreadyRegistered: true}, nil
	}

	lead := ProductOfferLead{
		SecretCode:      secretCode,
		VerificationLog: strings.TrimSpace(input.VerificationLog),
		Email:           email,
		MobileNumber:    mobile,
		Source:          NormalizeLeadSource(input.Source),
	}
	if err := db.WithContext(ctx).Create(&lead).Error; err != nil {
		return nil, err
	}
	if err := UpdateSubscriptionMetricsFor(ctx, email, mobile); err != nil {
		return nil, err
	}
	NotifyLiveRefresh("product_offer_lead")
	return &LeadResult{ID: lead.ID}, nil
}

func findLeadGroup(ctx context.Context, email string, mobile string) ([]ProductOfferLead, error) {
	db := config.GetDB()

	query := db.WithContext(ctx).Model(&ProductOfferLead{}).Order("id asc")
	switch {
	case email != "" && mobile != "":
		query = query.Where("email = ? OR mobile_number = ?", email, mobile)
	case email != "":
		query = query.Where("email = ?", email)
	case mobile != "":
		query = query.Where("mobile_number = ?", mobile)
	default:
		return nil, nil
	}

	var leads []ProductOfferLead
	if err := query.Find(&leads).Error; err != nil {
		return nil, err
	}
	return leads, nil
}

// UpdateSubscriptionMetricsFor recomputes subscribed_count and rating for
// every record sharing either identity component. The group size is the
// canonical count; no member is ever incremented in isolation.
func UpdateSubscriptionMetricsFor(ctx context.Context, email string, mobile string) error {
	leads, err := findLeadGroup(ctx, email, mobile)
	if err != nil {
		return err
	}
	if len(leads) == 0 {
		return nil
	}

	count := len(leads)
	ids := make([]int, 0, count)
	for _, lead := range leads {
		ids = append(ids, lead.ID)
	}

	db := config.GetDB()
	return db.WithContext(ctx).
		Model(&ProductOfferLead{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"subscribed_count":          count,
			"subscription_rating":       SubscriptionRatingFor(count),
			"subscription_rating_stars": StarsForCount(count),
		}).Error
}

// computeSubscriptionCounts derives each lead's group size over the whole
// table, where two leads share a group when they share a non-empty email or
// a non-empty mobile number.
func computeSubscriptionCounts(leads []ProductOfferLead) map[int]int {
	counts := make(map[int]int, len(leads))
	for _, lead := range leads {
		seen := make(map[int]struct{})
		for _, other := range leads {
			if lead.Email != "" && other.Email == lead.Email {
				seen[other.ID] = struct{}{}
				continue
			}
			if lead.MobileNumber != "" && other.MobileNumber == lead.MobileNumber {
				seen[other.ID] = struct{}{}
			}
		}
		if len(seen) == 0 {
			seen[lead.ID] = struct{}{}
		}
		counts[lead.ID] = len(seen)
	}
	return counts
}

// RecomputeSubscriptionMetrics is the idempotent full recompute over the
// whole lead store, used after bulk sync runs.
func RecomputeSubscriptionMetrics(ctx context.Context) error {
	db := config.GetDB()

	var leads []ProductOfferLead
	if err := db.WithContext(ctx).Find(&leads).Error; err != nil {
		return err
	}
	if len(leads) == 0 {
		return nil
	}

	counts := computeSubscriptionCounts(leads)
	for _, lead := range leads {
		count := counts[lead.ID]
		rating := SubscriptionRatingFor(count)
		stars := StarsForCount(count)
		if lead.SubscribedCount == count &&
			lead.SubscriptionRating.Equal(rating) &&
			lead.SubscriptionRatingStars == stars {
			continue
		}
		err := db.WithContext(ctx).
			Model(&ProductOfferLead{}).
			Where("id = ?", lead.ID).
			Updates(map[string]interface{}{
				"subscribed_count":          count,
				"subscription_rating":       rating,
				"subscription_rating_stars": stars,
			}).Error
		if err != nil {
			return err
		}
	}
	NotifyLiveRefresh("product_offer_lead")
	return nil
}
