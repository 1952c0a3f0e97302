package frappesync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ghoridigital/secretcodes_backend/config"
	"github.com/ghoridigital/secretcodes_backend/models"
	"gorm.io/gorm/clause"
)

const (
	codesPageSize = 1000
	logsPageSize  = 100
	leadsPageSize = 100

	codesNotifyEvery    = 100
	codesMaxPagesPerRun = 500

	tailStreamRuntimeCap = 900 * time.Second
)

var codeFields = []string{
	"name", "creation", "secret_code", "public_code", "batch_code",
	"status", "validate_status", "is_printed", "is_search_limit_reached",
	"searched_count_success", "searched_count_fail",
}

var logFields = []string{
	"name", "creation", "searched_code", "public_code", "status",
	"is_matched", "fail_reason", "success_attempt", "message",
	"description", "search_ip_address", "search_device_details",
	"search_city", "search_country", "search_latitude", "search_longitude",
}

var leadFields = []string{
	"name", "creation", "secret_code", "verification_log",
	"email", "mobile_number", "source",
}

// RunStream dispatches one named sync stream.
func RunStream(ctx context.Context, stream string) error {
	switch stream {
	case StreamSecretCodes:
		return SyncSecretCodes(ctx)
	case StreamLogs:
		return SyncLogs(ctx)
	case StreamLeads:
		return SyncLeads(ctx)
	default:
		return fmt.Errorf("unknown sync stream %q", stream)
	}
}

// SyncSecretCodes pulls the remote code ledger page by page. The 1-based
// cursor is persisted after every page, so an interrupted run resumes where
// it stopped. A short or empty page means end of data: the cursor resets and
// the recurring trigger is disabled until codes change again upstream.
func SyncSecretCodes(ctx context.Context) error {
	logger := config.GetLogger()

	client, err := newFrappeClient()
	if err != nil {
		return err
	}

	page, err := models.GetSettingInt(ctx, models.SettingCodesNextPage, 1)
	if err != nil {
		return err
	}
	if page < 1 {
		page = 1
	}

	if page == 1 {
		fresh, err := codesAlreadyFresh(ctx, client)
		if err == nil && fresh {
			return nil
		}
	}

	pagesThisRun := 0
	for {
		rows, err := client.getList(ctx, codesDoctype(), codeFields,
			(page-1)*codesPageSize, codesPageSize, "creation asc")
		if err != nil {
			config.LogError(logger, "frappesync", "SyncSecretCodes",
				"page pull failed, pausing run", map[string]interface{}{"page": page}, err)
			return err
		}

		if _, err := applyCodePage(ctx, rows); err != nil {
			return err
		}
		pagesThisRun++

		if len(rows) < codesPageSize {
			if err := models.SetSettingInt(ctx, models.SettingCodesNextPage, 1); err != nil {
				return err
			}
			if err := models.SetSettingBool(ctx, models.SettingCodesSyncEnabled, false); err != nil {
				return err
			}
			models.NotifyLiveRefresh("secret_codes")
			return nil
		}

		page++
		if err := models.SetSettingInt(ctx, models.SettingCodesNextPage, page); err != nil {
			return err
		}
		if pagesThisRun%codesNotifyEvery == 0 {
			models.NotifyLiveRefresh("secret_codes")
		}
		if pagesThisRun >= codesMaxPagesPerRun {
			return models.SetSettingBool(ctx, models.SettingCodesSyncRunASAP, true)
		}
	}
}

// codesAlreadyFresh checks the newest remote code against the local store so
// an unchanged upstream costs a single one-row request.
func codesAlreadyFresh(ctx context.Context, client *frappeClient) (bool, error) {
	rows, err := client.getList(ctx, codesDoctype(), codeFields, 0, 1, "modified desc")
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return true, nil
	}

	var newest frappeSecretCode
	if err := json.Unmarshal(rows[0], &newest); err != nil {
		return false, err
	}
	if newest.SecretCode == "" {
		return false, nil
	}

	local, err := models.GetSecretCodeBySecret(ctx, newest.SecretCode)
	if err != nil {
		return false, err
	}
	return local != nil, nil
}

// SyncLogs pulls remote search logs, append-only on frappe_name.
func SyncLogs(ctx context.Context) error {
	start := time.Now()

	client, err := newFrappeClient()
	if err != nil {
		return err
	}

	page, err := models.GetSettingInt(ctx, models.SettingLogsNextPage, 1)
	if err != nil {
		return err
	}
	if page < 1 {
		page = 1
	}

	for {
		rows, err := client.getList(ctx, logsDoctype(), logFields,
			(page-1)*logsPageSize, logsPageSize, "creation asc")
		if err != nil {
			return err
		}

		if _, err := applyLogPage(ctx, rows); err != nil {
			return err
		}

		if len(rows) < logsPageSize {
			if err := models.SetSettingInt(ctx, models.SettingLogsNextPage, 1); err != nil {
				return err
			}
			models.NotifyLiveRefresh("secret_code_log")
			return nil
		}

		page++
		if err := models.SetSettingInt(ctx, models.SettingLogsNextPage, page); err != nil {
			return err
		}
		if time.Since(start) >= tailStreamRuntimeCap {
			return nil
		}
	}
}

// SyncLeads pulls remote leads, append-only on frappe_name, and recomputes
// subscription metrics once the pull reaches end of data.
func SyncLeads(ctx context.Context) error {
	start := time.Now()

	client, err := newFrappeClient()
	if err != nil {
		return err
	}

	page, err := models.GetSettingInt(ctx, models.SettingLeadsNextPage, 1)
	if err != nil {
		return err
	}
	if page < 1 {
		page = 1
	}

	for {
		rows, err := client.getList(ctx, leadsDoctype(), leadFields,
			(page-1)*leadsPageSize, leadsPageSize, "creation asc")
		if err != nil {
			return err
		}

		if _, err := applyLeadPage(ctx, rows); err != nil {
			return err
		}

		if len(rows) < leadsPageSize {
			if err := models.SetSettingInt(ctx, models.SettingLeadsNextPage, 1); err != nil {
				return err
			}
			return models.RecomputeSubscriptionMetrics(ctx)
		}

		page++
		if err := models.SetSettingInt(ctx, models.SettingLeadsNextPage, page); err != nil {
			return err
		}
		if time.Since(start) >= tailStreamRuntimeCap {
			return nil
		}
	}
}

func applyCodePage(ctx context.Context, rows []json.RawMessage) (int, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	candidates := make([]models.SecretCode, 0, len(rows))
	secrets := make([]string, 0, len(rows))
	for _, raw := range rows {
		var row frappeSecretCode
		if err := json.Unmarshal(raw, &row); err != nil {
			config.LogError(logger, "frappesync", "applyCodePage", "invalid payload", nil, err)
			continue
		}
		if row.SecretCode == "" || row.PublicCode == "" || row.BatchCode == "" {
			continue
		}

		success, _ := row.SearchedCountSuccess.Int64()
		fail, _ := row.SearchedCountFail.Int64()
		candidates = append(candidates, models.SecretCode{
			SecretCode:           row.SecretCode,
			PublicCode:           models.NormalizePublicCode(row.PublicCode),
			BatchCode:            row.BatchCode,
			Status:               models.NormalizeCodeStatus(row.Status),
			ValidateStatus:       models.NormalizeValidateStatus(row.ValidateStatus),
			IsPrinted:            bool(row.IsPrinted),
			IsSearchLimitReached: bool(row.IsSearchLimitReached),
			SearchedCountSuccess: int(success),
			SearchedCountFail:    int(fail),
		})
		secrets = append(secrets, row.SecretCode)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	var existing []string
	err := db.WithContext(ctx).Model(&models.SecretCode{}).
		Where("secret_code IN ?", secrets).
		Pluck("secret_code", &existing).Error
	if err != nil {
		return 0, err
	}
	existingSet := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		existingSet[s] = struct{}{}
	}

	fresh := make([]models.SecretCode, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := existingSet[c.SecretCode]; ok {
			continue
		}
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	err = db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(fresh, models.BulkInsertBatchSize).Error
	if err != nil {
		return 0, err
	}
	return len(fresh), nil
}

func applyLogPage(ctx context.Context, rows []json.RawMessage) (int, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	candidates := make([]models.SecretCodeLog, 0, len(rows))
	names := make([]string, 0, len(rows))
	for _, raw := range rows {
		var row frappeCodeLog
		if err := json.Unmarshal(raw, &row); err != nil {
			config.LogError(logger, "frappesync", "applyLogPage", "invalid payload", nil, err)
			continue
		}
		if row.Name == "" {
			continue
		}

		attempt, _ := row.SuccessAttempt.Int64()
		lat, _ := row.SearchLatitude.Float64()
		lng, _ := row.SearchLongitude.Float64()
		candidates = append(candidates, models.SecretCodeLog{
			FrappeName:          row.Name,
			FrappeCreation:      parseFrappeDatetime(row.Creation),
			SearchedCode:        row.SearchedCode,
			PublicCode:          models.NormalizePublicCode(row.PublicCode),
			Status:              models.NormalizeLogStatus(row.Status),
			IsMatched:           bool(row.IsMatched),
			FailReason:          row.FailReason,
			SuccessAttempt:      int(attempt),
			Message:             row.Message,
			Description:         row.Description,
			SearchIPAddress:     row.SearchIPAddress,
			SearchDeviceDetails: row.SearchDeviceDetails,
			SearchCity:          row.SearchCity,
			SearchCountry:       row.SearchCountry,
			SearchLatitude:      lat,
			SearchLongitude:     lng,
		})
		names = append(names, row.Name)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	var existing []string
	err := db.WithContext(ctx).Model(&models.SecretCodeLog{}).
		Where("frappe_name IN ?", names).
		Pluck("frappe_name", &existing).Error
	if err != nil {
		return 0, err
	}
	existingSet := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		existingSet[name] = struct{}{}
	}

	fresh := make([]models.SecretCodeLog, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := existingSet[c.FrappeName]; ok {
			continue
		}
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	err = db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(fresh, logsPageSize).Error
	if err != nil {
		return 0, err
	}
	return len(fresh), nil
}

func applyLeadPage(ctx context.Context, rows []json.RawMessage) (int, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	candidates := make([]models.ProductOfferLead, 0, len(rows))
	names := make([]string, 0, len(rows))
	for _, raw := range rows {
		var row frappeLead
		if err := json.Unmarshal(raw, &row); err != nil {
			config.LogError(logger, "frappesync", "applyLeadPage", "invalid payload", nil, err)
			continue
		}
		if row.Name == "" {
			continue
		}

		candidates = append(candidates, models.ProductOfferLead{
			FrappeName:      row.Name,
			FrappeCreation:  parseFrappeDatetime(row.Creation),
			SecretCode:      row.SecretCode,
			VerificationLog: row.VerificationLog,
			Email:           row.Email,
			MobileNumber:    row.MobileNumber,
			Source:          models.NormalizeLeadSource(row.Source),
		})
		names = append(names, row.Name)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	var existing []string
	err := db.WithContext(ctx).Model(&models.ProductOfferLead{}).
		Where("frappe_name IN ?", names).
		Pluck("frappe_name", &existing).Error
	if err != nil {
		return 0, err
	}
	existingSet := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		existingSet[name] = struct{}{}
	}

	fresh := make([]models.ProductOfferLead, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := existingSet[c.FrappeName]; ok {
			continue
		}
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	err = db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(fresh, leadsPageSize).Error
	if err != nil {
		return 0, err
	}
	return len(fresh), nil
}
