package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ghoridigital/secretcodes_backend/config"
	"github.com/ghoridigital/secretcodes_backend/models"
	"github.com/ghoridigital/secretcodes_backend/utils"
	"github.com/go-playground/validator/v10"
)

type validateCodeRequest struct {
	SecretCode string  `json:"secret_code" form:"secret_code" binding:"required"`
	APIKey     string  `json:"api_key" form:"api_key"`
	Latitude   float64 `json:"lat" form:"lat"`
	Longitude  float64 `json:"lng" form:"lng"`
	City       string  `json:"city" form:"city"`
	Country    string  `json:"country" form:"country"`
}

type createLeadRequest struct {
	APIKey          string `json:"api_key" form:"api_key"`
	Email           string `json:"email" form:"email"`
	MobileNumber    string `json:"mobile_number" form:"mobile_number"`
	SecretCode      string `json:"secret_code" form:"secret_code"`
	VerificationLog string `json:"verification_log" form:"verification_log"`
	Source          string `json:"source" form:"source"`
}

// requireAPIKey accepts the key from the X-API-Key header or the body's
// api_key field, so QR landing pages can post plain forms.
func requireAPIKey(c *gin.Context, bodyKey string) bool {
	expected, err := models.GetSettingValue(c.Request.Context(), models.SettingAPIKey, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "api_key_lookup_failed"})
		return false
	}
	if expected == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "api_key_not_configured"})
		return false
	}

	provided := c.Request.Header.Get("X-API-Key")
	if provided == "" {
		provided = bodyKey
	}
	if provided != expected {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_api_key"})
		return false
	}
	return true
}

// bindPayload accepts JSON or form-encoded bodies.
func bindPayload(c *gin.Context, out interface{}) error {
	contentType := c.ContentType()
	if strings.Contains(contentType, "json") {
		return c.ShouldBindJSON(out)
	}
	return c.ShouldBind(out)
}

// bindErrorResponse reports per-field binding failures; malformed bodies get
// the handler's fallback message.
func bindErrorResponse(c *gin.Context, err error, fallback string) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": utils.ProcessValidationErrors(err),
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": fallback})
}

// codeRecordProjection is the success-response view of a code record. The
// secret itself is never returned in full.
func codeRecordProjection(record *models.SecretCode) gin.H {
	return gin.H{
		"status":                 record.ValidateStatus,
		"code_status":            record.Status,
		"public_code":            record.PublicCode,
		"batch_code":             record.BatchCode,
		"secret_code":            record.MaskedSecretCode(),
		"success_attempt":        record.SearchedCountSuccess,
		"searched_count_success": record.SearchedCountSuccess,
		"searched_count_fail":    record.SearchedCountFail,
		"is_printed":             record.IsPrinted,
		"created_at":             record.CreatedAt,
		"updated_at":             record.UpdatedAt,
	}
}

func validateCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "validateCode")
		defer span.End()

		var req validateCodeRequest
		if err := bindPayload(c, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "secret_code is required"})
			return
		}
		if !requireAPIKey(c, req.APIKey) {
			return
		}

		result, err := models.VerifySecretCode(ctx, models.VerifyInput{
			SecretCode: req.SecretCode,
			Latitude:   req.Latitude,
			Longitude:  req.Longitude,
			City:       req.City,
			Country:    req.Country,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})
		if err != nil {
			config.LogError(config.GetLogger(), "codesApi", "validateCodeHandler", "verification failed", req.SecretCode, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "verification_failed"})
			return
		}

		body := gin.H{"message": result.Message}
		if result.FailReason != "" {
			body["fail_reason"] = result.FailReason
		}
		if result.WhatsApp != "" {
			body["whatsapp"] = result.WhatsApp
		}
		if result.Record != nil {
			for key, value := range codeRecordProjection(result.Record) {
				body[key] = value
			}
		}
		c.JSON(result.HTTPStatus, body)
	}
}

func createLeadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createLeadRequest
		if err := bindPayload(c, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if !requireAPIKey(c, req.APIKey) {
			return
		}

		result, err := models.SubmitLead(c.Request.Context(), &models.NewProductOfferLead{
			Email:           req.Email,
			MobileNumber:    req.MobileNumber,
			SecretCode:      req.SecretCode,
			VerificationLog: req.VerificationLog,
			Source:          req.Source,
		})
		if err != nil {
			switch {
			case errors.Is(err, models.ErrEmailOrMobileRequired),
				errors.Is(err, models.ErrSecretCodeRequired),
				errors.Is(err, models.ErrInvalidEmail),
				errors.Is(err, models.ErrInvalidMobile):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				config.LogError(config.GetLogger(), "codesApi", "createLeadHandler", "lead submit failed", req.Email, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "lead_submit_failed"})
			}
			return
		}

		status := "created"
		if result.AlreadyRegistered {
			status = "already_registered"
		}
		c.JSON(http.StatusOK, gin.H{"status": status, "id": result.ID})
	}
}

func dashboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "dashboard")
		defer span.End()

		now := time.Now()
		dateFrom := now.AddDate(0, 0, -30)
		dateTo := now.AddDate(0, 0, 1)
		if v := c.Query("date_from"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_from"})
				return
			}
			dateFrom = parsed
		}
		if v := c.Query("date_to"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_to"})
				return
			}
			// Inclusive end date.
			dateTo = parsed.AddDate(0, 0, 1)
		}

		metrics, err := models.GetDashboardMetrics(ctx, dateFrom, dateTo)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, metrics)
	}
}

type generateCodesRequest struct {
	Count      int    `json:"count" binding:"required,gt=0"`
	BatchCode  string `json:"batch_code"`
	Foreground bool   `json:"foreground"`
}

func generateCodesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req generateCodesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindErrorResponse(c, err, "count is required")
			return
		}

		ctx := c.Request.Context()
		batchCode := strings.TrimSpace(req.BatchCode)
		if batchCode == "" {
			next, err := models.NextBatchCode(ctx)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			batchCode = next
		}

		if req.Foreground {
			generated, err := models.GenerateCodes(ctx, batchCode, req.Count)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"batch_code": batchCode, "generated": generated})
			return
		}

		job, err := models.QueueGenerateJob(ctx, batchCode, req.Count)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "batch_code": job.BatchCode, "state": job.State})
	}
}

func exportCodesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ExportCodesInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		result, err := models.ExportCodes(c.Request.Context(), &req)
		if err != nil {
			if errors.Is(err, models.ErrNoCodesToExport) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.Header("Content-Disposition", `attachment; filename="`+result.FileName+`"`)
		c.Data(http.StatusOK,
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			result.Content)
	}
}

type activateCodesRequest struct {
	Count int `json:"count" binding:"required,gt=0"`
}

func activateCodesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req activateCodesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindErrorResponse(c, err, "count is required")
			return
		}

		activated, err := models.ActivateNextInactive(c.Request.Context(), req.Count)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		publicCodes := make([]string, 0, len(activated))
		for _, code := range activated {
			publicCodes = append(publicCodes, code.PublicCode)
		}
		c.JSON(http.StatusOK, gin.H{"activated": len(activated), "public_codes": publicCodes})
	}
}

type statusRangeRequest struct {
	PublicCodeFrom string `json:"public_code_from" binding:"required"`
	PublicCodeTo   string `json:"public_code_to" binding:"required"`
	Status         string `json:"status" binding:"required"`
}

func statusRangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statusRangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindErrorResponse(c, err, "invalid request")
			return
		}

		status := strings.ToLower(strings.TrimSpace(req.Status))
		if status != models.CodeStatusActive && status != models.CodeStatusInactive {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active or inactive"})
			return
		}

		updated, err := models.BulkSetStatusByPublicRange(c.Request.Context(),
			req.PublicCodeFrom, req.PublicCodeTo, status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}
