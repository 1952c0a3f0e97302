package models

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ghoridigital/secretcodes_backend/config"
	"gorm.io/gorm"
)

// jobTimeBox bounds how long one scheduler tick may spend generating before
// yielding. The job stays running and the next tick resumes it.
var jobTimeBox = 50 * time.Second

// GenerateJob is one queued bulk-generation request. last_public_code is
// stored as a string to avoid fixed-width integer overflow in the database.
type GenerateJob struct {
	ID             int    `gorm:"primary_key" json:"id"`
	BatchCode      string `gorm:"size:20;not null" json:"batch_code"`
	CountTotal     int    `gorm:"not null" json:"count_total"`
	CountGenerated int    `gorm:"not null;default:0" json:"count_generated"`
	LastPublicCode string `gorm:"size:32;not null" json:"last_public_code"`
	State          string `gorm:"size:20;not null;default:pending" json:"state"`
	Message        string `gorm:"type:text" json:"message"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// QueueGenerateJob records a generation request seeded with the current
// public-code high-water mark.
func QueueGenerateJob(ctx context.Context, batchCode string, count int) (*GenerateJob, error) {
	if count <= 0 {
		return nil, errors.New("count must be positive")
	}

	nextPublic, err := NextPublicCode(ctx)
	if err != nil {
		return nil, err
	}

	job := GenerateJob{
		BatchCode:      batchCode,
		CountTotal:     count,
		LastPublicCode: strconv.FormatInt(nextPublic, 10),
		State:          JobStatePending,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// RunPendingJobs advances at most one pending/running job, oldest first. It
// generates and inserts one chunk at a time, checkpointing progress after
// every chunk so a crash loses at most the in-flight chunk, and yields once
// the time box is exceeded. A chunk failure marks the job failed; failed
// jobs are never resumed.
func RunPendingJobs(ctx context.Context) error {
	db := config.GetDB()
	logger := config.GetLogger()

	var job GenerateJob
	err := db.WithContext(ctx).
		Where("state IN ?", []string{JobStatePending, JobStateRunning}).
		Order("id asc").
		Take(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if err := setJobState(ctx, &job, JobStateRunning, ""); err != nil {
		return err
	}

	start := time.Now()
	generated := make(map[string]struct{})
	for {
		remaining := job.CountTotal - job.CountGenerated
		if remaining <= 0 {
			if err := setJobState(ctx, &job, JobStateDone, ""); err != nil {
				return err
			}
			NotifyLiveRefresh("secret_codes")
			return nil
		}

		chunkSize := remaining
		if chunkSize > BulkInsertBatchSize {
			chunkSize = BulkInsertBatchSize
		}

		secretCodes, chunkErr := GenerateSecretCodeChunk(ctx, chunkSize, generated)
		if chunkErr != nil {
			config.LogError(logger, "secretCodeJob.go", "RunPendingJobs", "GenerateSecretCodeChunk", job.ID, chunkErr)
			return setJobState(ctx, &job, JobStateFailed, chunkErr.Error())
		}

		lastPublic, parseErr := strconv.ParseInt(job.LastPublicCode, 10, 64)
		if parseErr != nil {
			return setJobState(ctx, &job, JobStateFailed, "invalid last_public_code checkpoint: "+job.LastPublicCode)
		}

		nextPublic, insErr := InsertSecretCodes(ctx, job.BatchCode, secretCodes, lastPublic)
		if insErr != nil {
			config.LogError(logger, "secretCodeJob.go", "RunPendingJobs", "InsertSecretCodes", job.ID, insErr)
			return setJobState(ctx, &job, JobStateFailed, insErr.Error())
		}

		job.LastPublicCode = strconv.FormatInt(nextPublic, 10)
		job.CountGenerated += len(secretCodes)
		err = db.WithContext(ctx).Model(&job).Updates(map[string]interface{}{
			"last_public_code": job.LastPublicCode,
			"count_generated":  job.CountGenerated,
		}).Error
		if err != nil {
			return err
		}

		if job.CountGenerated >= job.CountTotal {
			if err := setJobState(ctx, &job, JobStateDone, ""); err != nil {
				return err
			}
			NotifyLiveRefresh("secret_codes")
			return nil
		}

		if time.Since(start) >= jobTimeBox {
			// Yield; the job stays running and resumes next tick.
			return nil
		}
	}
}

func setJobState(ctx context.Context, job *GenerateJob, state string, message string) error {
	db := config.GetDB()
	job.State = state
	job.Message = message
	return db.WithContext(ctx).Model(job).Updates(map[string]interface{}{
		"state":   state,
		"message": message,
	}).Error
}
