package frappesync

import (
	"net/http"

	"github.com/ghoridigital/secretcodes_backend/config"
	"github.com/ghoridigital/secretcodes_backend/models"
	"github.com/gin-gonic/gin"
)

type triggerSyncRequest struct {
	Stream string `json:"stream" binding:"required"`
}

var streamEnabledSetting = map[string]string{
	StreamSecretCodes: models.SettingCodesSyncEnabled,
	StreamLogs:        models.SettingLogsSyncEnabled,
	StreamLeads:       models.SettingLeadsSyncEnabled,
}

var streamCursorSetting = map[string]string{
	StreamSecretCodes: models.SettingCodesNextPage,
	StreamLogs:        models.SettingLogsNextPage,
	StreamLeads:       models.SettingLeadsNextPage,
}

// TriggerSyncHandler re-enables a stream's recurring trigger and either
// publishes a pubsub run or kicks the stream in the background.
func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req triggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		settingName, ok := streamEnabledSetting[req.Stream]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown stream"})
			return
		}

		ctx := c.Request.Context()
		if err := models.SetSettingBool(ctx, settingName, true); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if req.Stream == StreamSecretCodes {
			if err := models.SetSettingBool(ctx, models.SettingCodesSyncRunASAP, true); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		if envBoolDefault("FRAPPE_SYNC_USE_PUBSUB", false) {
			if err := PublishSyncRun(ctx, req.Stream); err != nil {
				config.LogError(config.GetLogger(), "frappesync", "TriggerSyncHandler",
					"publish failed", map[string]interface{}{"stream": req.Stream}, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "publish_failed"})
				return
			}
		}

		c.JSON(http.StatusAccepted, gin.H{"status": "scheduled", "stream": req.Stream})
	}
}

// StatusHandler reports each stream's cursor and enablement.
func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		streams := make(map[string]StreamStatus, len(streamCursorSetting))

		for stream, cursorSetting := range streamCursorSetting {
			page, err := models.GetSettingInt(ctx, cursorSetting, 1)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			enabled, err := models.GetSettingBool(ctx, streamEnabledSetting[stream], false)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			streams[stream] = StreamStatus{Enabled: enabled, NextPage: page}
		}

		c.JSON(http.StatusOK, StatusResponse{Streams: streams})
	}
}
