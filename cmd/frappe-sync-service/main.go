package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ghoridigital/secretcodes_backend/config"
	"github.com/ghoridigital/secretcodes_backend/frappesync"
	"github.com/ghoridigital/secretcodes_backend/middlewares"
	"github.com/ghoridigital/secretcodes_backend/models"
	"github.com/ghoridigital/secretcodes_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// Standalone sync worker: runs the generation jobs and sync streams on a
// ticker, plus the trigger/status/pubsub endpoints, without the public
// verification surface.
func main() {
	port := os.Getenv("FRAPPE_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "X-API-Key")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	internal := r.Group("/internal", middlewares.APIKeyMiddleware())
	internal.POST("/sync/trigger", frappesync.TriggerSyncHandler())
	internal.GET("/sync/status", frappesync.StatusHandler())

	r.POST("/pubsub/frappe-sync", frappesync.PubSubPushHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	tickerCtx, cancelTicker := context.WithCancel(context.Background())
	defer cancelTicker()
	go runWorkerLoop(tickerCtx)

	select {
	case <-sigCtx.Done():
		cancelTicker()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func runWorkerLoop(ctx context.Context) {
	interval := time.Duration(intFromEnv("SCHEDULER_INTERVAL_SECONDS", 60)) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			workerTick(ctx)
		}
	}
}

func workerTick(ctx context.Context) {
	logger := config.GetLogger()

	withLock(ctx, "scheduler:generate_jobs", func() {
		if err := models.RunPendingJobs(ctx); err != nil {
			config.LogError(logger, "frappe-sync-service", "workerTick", "generate jobs", nil, err)
		}
	})

	streams := []struct {
		name    string
		enabled string
	}{
		{frappesync.StreamSecretCodes, models.SettingCodesSyncEnabled},
		{frappesync.StreamLogs, models.SettingLogsSyncEnabled},
		{frappesync.StreamLeads, models.SettingLeadsSyncEnabled},
	}
	for _, stream := range streams {
		enabled, err := models.GetSettingBool(ctx, stream.enabled, false)
		if err != nil {
			config.LogError(logger, "frappe-sync-service", "workerTick", "enabled lookup", stream.name, err)
			continue
		}
		runASAP := false
		if stream.name == frappesync.StreamSecretCodes {
			runASAP, _ = models.GetSettingBool(ctx, models.SettingCodesSyncRunASAP, false)
		}
		if !enabled && !runASAP {
			continue
		}

		name := stream.name
		withLock(ctx, "scheduler:sync:"+name, func() {
			for {
				if name == frappesync.StreamSecretCodes {
					_ = models.SetSettingBool(ctx, models.SettingCodesSyncRunASAP, false)
				}
				if err := frappesync.RunStream(ctx, name); err != nil {
					config.LogError(logger, "frappe-sync-service", "workerTick", "stream run failed", name, err)
					return
				}
				if name != frappesync.StreamSecretCodes {
					return
				}
				again, _ := models.GetSettingBool(ctx, models.SettingCodesSyncRunASAP, false)
				if !again {
					return
				}
			}
		})
	}
}

func withLock(ctx context.Context, key string, fn func()) {
	locker := config.GetRedisLock()
	if locker == nil {
		fn()
		return
	}

	lock, err := locker.Obtain(ctx, key, 15*time.Minute, nil)
	if err != nil {
		if err != redislock.ErrNotObtained {
			config.LogError(config.GetLogger(), "frappe-sync-service", "withLock", "lock obtain", key, err)
		}
		return
	}
	defer lock.Release(ctx)

	fn()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}

func intFromEnv(key string, def int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
