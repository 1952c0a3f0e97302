package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/ghoridigital/secretcodes_backend/config"
	"github.com/ghoridigital/secretcodes_backend/frappesync"
	"github.com/ghoridigital/secretcodes_backend/models"
)

const defaultSchedulerInterval = 60 * time.Second

// runScheduler drives the periodic work: pending generation jobs first, then
// each enabled sync stream, serially. Per-stream redis locks keep multiple
// replicas from running the same stream at once; when Redis is unavailable
// the work still runs, unserialized.
func runScheduler(ctx context.Context) {
	interval := defaultSchedulerInterval
	if v := strings.TrimSpace(os.Getenv("SCHEDULER_INTERVAL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			interval = time.Duration(n) * time.Second
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			schedulerTick(ctx)
		}
	}
}

func schedulerTick(ctx context.Context) {
	logger := config.GetLogger()

	withStreamLock(ctx, "scheduler:generate_jobs", func() {
		if err := models.RunPendingJobs(ctx); err != nil {
			config.LogError(logger, "scheduler", "schedulerTick", "generate jobs", nil, err)
		}
	})

	runSyncStream(ctx, frappesync.StreamSecretCodes, models.SettingCodesSyncEnabled)
	runSyncStream(ctx, frappesync.StreamLogs, models.SettingLogsSyncEnabled)
	runSyncStream(ctx, frappesync.StreamLeads, models.SettingLeadsSyncEnabled)
}

func runSyncStream(ctx context.Context, stream string, enabledSetting string) {
	logger := config.GetLogger()

	enabled, err := models.GetSettingBool(ctx, enabledSetting, false)
	if err != nil {
		config.LogError(logger, "scheduler", "runSyncStream", "enabled lookup", stream, err)
		return
	}

	runASAP := false
	if stream == frappesync.StreamSecretCodes {
		runASAP, _ = models.GetSettingBool(ctx, models.SettingCodesSyncRunASAP, false)
	}
	if !enabled && !runASAP {
		return
	}

	withStreamLock(ctx, "scheduler:sync:"+stream, func() {
		for {
			if stream == frappesync.StreamSecretCodes {
				_ = models.SetSettingBool(ctx, models.SettingCodesSyncRunASAP, false)
			}
			if err := frappesync.RunStream(ctx, stream); err != nil {
				config.LogError(logger, "scheduler", "runSyncStream", "stream run failed", stream, err)
				return
			}
			// A capped codes run re-arms itself; pick it back up without
			// waiting a full tick.
			if stream != frappesync.StreamSecretCodes {
				return
			}
			again, _ := models.GetSettingBool(ctx, models.SettingCodesSyncRunASAP, false)
			if !again {
				return
			}
		}
	})
}

// withStreamLock serializes fn behind a redis lock when Redis is configured.
func withStreamLock(ctx context.Context, key string, fn func()) {
	locker := config.GetRedisLock()
	if locker == nil {
		fn()
		return
	}

	lock, err := locker.Obtain(ctx, key, 15*time.Minute, nil)
	if err != nil {
		if err != redislock.ErrNotObtained {
			config.LogError(config.GetLogger(), "scheduler", "withStreamLock", "lock obtain", key, err)
		}
		return
	}
	defer lock.Release(ctx)

	fn()
}
