package models

import (
	"context"
	"errors"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/ghoridigital/secretcodes_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	hex16Pattern    = regexp.MustCompile(`^[0-9A-Fa-f]{16}$`)
	digits12Pattern = regexp.MustCompile(`^\d{12}$`)
)

type CodeFormat int

const (
	FormatInvalid CodeFormat = iota
	FormatHex16
	FormatDigits12
)

// CodeFormatKind classifies a raw lookup input. Only 16-hex and 12-digit
// shapes are accepted as candidate secret codes.
func CodeFormatKind(code string) CodeFormat {
	switch {
	case hex16Pattern.MatchString(code):
		return FormatHex16
	case digits12Pattern.MatchString(code):
		return FormatDigits12
	default:
		return FormatInvalid
	}
}

// VerifyInput is one public validation request with its captured context.
type VerifyInput struct {
	SecretCode string
	Latitude   float64
	Longitude  float64
	City       string
	Country    string
	IPAddress  string
	UserAgent  string
}

// VerifyResult drives the HTTP response for a validation request.
type VerifyResult struct {
	HTTPStatus int
	Message    string
	FailReason string
	WhatsApp   string
	Record     *SecretCode
}

// verifyOutcome is the decision for a matched record, computed before any
// write so the state machine stays testable without a database.
type verifyOutcome struct {
	status          string
	failReason      string
	message         string
	description     string
	httpStatus      int
	nextSuccess     int
	incrementFail   bool
	setLimitReached bool
	validated       bool
}

// evaluateVerification applies the inactive / attempt-limit / validated
// transitions, strictly in order, for a record the lookup already matched.
func evaluateVerification(rec *SecretCode, limit int) verifyOutcome {
	nextSuccess := rec.SearchedCountSuccess + 1

	if rec.Status == CodeStatusInactive {
		return verifyOutcome{
			status:        LogStatusRejected,
			failReason:    FailReasonInactive,
			message:       "Secret code is inactive",
			description:   "Secret code is inactive.",
			httpStatus:    http.StatusForbidden,
			incrementFail: true,
		}
	}

	if nextSuccess > limit || rec.IsSearchLimitReached {
		return verifyOutcome{
			status:          LogStatusRejected,
			failReason:      FailReasonSearchLimitReached,
			message:         "Search limit reached",
			description:     "Search limit reached.",
			httpStatus:      http.StatusForbidden,
			incrementFail:   true,
			setLimitReached: true,
		}
	}

	return verifyOutcome{
		status:      LogStatusValidated,
		message:     "validated",
		description: "Secret code validated.",
		httpStatus:  http.StatusOK,
		nextSuccess: nextSuccess,
		validated:   true,
	}
}

func supportWhatsAppURL() string {
	if v := strings.TrimSpace(os.Getenv("SUPPORT_WHATSAPP_URL")); v != "" {
		return v
	}
	return "https://wa.me/971543077174"
}

// VerifySecretCode runs the full validation state machine for one request.
// Every terminal branch writes exactly one log row. Counter updates happen
// under a row lock on the single matched record so the at-most-N-successes
// invariant holds under concurrent validation of the same code.
func VerifySecretCode(ctx context.Context, input VerifyInput) (*VerifyResult, error) {
	cleaned := strings.TrimSpace(input.SecretCode)

	if CodeFormatKind(cleaned) == FormatInvalid {
		publicMatch, err := GetSecretCodeByPublic(ctx, cleaned)
		if err != nil {
			return nil, err
		}
		if publicMatch != nil {
			if _, err := CreateSecretCodeLog(ctx, logForInput(input, &NewSecretCodeLog{
				SearchedCode: cleaned,
				PublicCode:   publicMatch.PublicCode,
				Status:       LogStatusRejected,
				IsMatched:    true,
				FailReason:   FailReasonSearchedByPublicCode,
				Message:      FailReasonSearchedByPublicCode,
				Description:  "Searched by public code with invalid format.",
			})); err != nil {
				return nil, err
			}
			return &VerifyResult{
				HTTPStatus: http.StatusBadRequest,
				Message:    FailReasonSearchedByPublicCode,
				FailReason: FailReasonSearchedByPublicCode,
			}, nil
		}

		if _, err := CreateSecretCodeLog(ctx, logForInput(input, &NewSecretCodeLog{
			SearchedCode: cleaned,
			Status:       LogStatusRejected,
			FailReason:   FailReasonInvalidCodeFormat,
			Message:      FailReasonInvalidCodeFormat,
			Description:  "Invalid secret code format.",
		})); err != nil {
			return nil, err
		}
		return &VerifyResult{
			HTTPStatus: http.StatusBadRequest,
			Message:    FailReasonInvalidCodeFormat,
			FailReason: FailReasonInvalidCodeFormat,
			WhatsApp:   supportWhatsAppURL(),
		}, nil
	}

	db := config.GetDB()

	var (
		record  SecretCode
		outcome verifyOutcome
		matched bool
	)
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("secret_code = ?", cleaned).
			Take(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				matched = false
				return nil
			}
			return err
		}
		matched = true

		outcome = evaluateVerification(&record, MaxSearchSuccess)

		updates := map[string]interface{}{}
		if outcome.incrementFail {
			record.SearchedCountFail++
			updates["searched_count_fail"] = record.SearchedCountFail
		}
		if outcome.setLimitReached {
			record.IsSearchLimitReached = true
			updates["is_search_limit_reached"] = true
		}
		if outcome.validated {
			record.SearchedCountSuccess = outcome.nextSuccess
			record.ValidateStatus = ValidateStatusValidated
			updates["searched_count_success"] = record.SearchedCountSuccess
			updates["validate_status"] = ValidateStatusValidated
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&SecretCode{}).Where("id = ?", record.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	if !matched {
		publicMatch, err := GetSecretCodeByPublic(ctx, cleaned)
		if err != nil {
			return nil, err
		}
		if publicMatch != nil {
			if _, err := CreateSecretCodeLog(ctx, logForInput(input, &NewSecretCodeLog{
				SearchedCode: cleaned,
				PublicCode:   publicMatch.PublicCode,
				Status:       LogStatusRejected,
				IsMatched:    true,
				FailReason:   FailReasonSearchPublicCode,
				Message:      FailReasonSearchPublicCode,
				Description:  "Secret code not found; public code matched.",
			})); err != nil {
				return nil, err
			}
			return &VerifyResult{
				HTTPStatus: http.StatusBadRequest,
				Message:    FailReasonSearchPublicCode,
				FailReason: FailReasonSearchPublicCode,
			}, nil
		}

		if _, err := CreateSecretCodeLog(ctx, logForInput(input, &NewSecretCodeLog{
			SearchedCode: cleaned,
			Status:       LogStatusRejected,
			FailReason:   FailReasonNotFound,
			Message:      "Secret code not found",
			Description:  "Secret code not found.",
		})); err != nil {
			return nil, err
		}
		return &VerifyResult{
			HTTPStatus: http.StatusNotFound,
			Message:    "Secret code not found",
			FailReason: FailReasonNotFound,
		}, nil
	}

	NotifyLiveRefresh("secret_codes")

	logRow := &NewSecretCodeLog{
		SearchedCode: cleaned,
		PublicCode:   record.PublicCode,
		Status:       outcome.status,
		IsMatched:    true,
		FailReason:   outcome.failReason,
		Message:      outcome.message,
		Description:  outcome.description,
	}
	if outcome.validated {
		logRow.SuccessAttempt = outcome.nextSuccess
	}
	if _, err := CreateSecretCodeLog(ctx, logForInput(input, logRow)); err != nil {
		return nil, err
	}

	result := &VerifyResult{
		HTTPStatus: outcome.httpStatus,
		Message:    outcome.message,
		FailReason: outcome.failReason,
	}
	if outcome.validated {
		result.Record = &record
	}
	return result, nil
}

func logForInput(input VerifyInput, row *NewSecretCodeLog) *NewSecretCodeLog {
	row.SearchIPAddress = input.IPAddress
	row.SearchDeviceDetails = input.UserAgent
	row.SearchCity = input.City
	row.SearchCountry = input.Country
	row.SearchLatitude = input.Latitude
	row.SearchLongitude = input.Longitude
	return row
}
