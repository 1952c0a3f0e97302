package models

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ghoridigital/secretcodes_backend/config"
	"gorm.io/gorm"
)

const (
	BulkInsertBatchSize = 5000
	PublicCodeLength    = 8
	PublicCodeStart     = 10100000
	SecretCodeLength    = 12
	BatchCodeLength     = 6
)

// MaxSearchSuccess caps how many times a single code may validate successfully.
const MaxSearchSuccess = 3

// ErrGenerationExhausted is returned when the collision-retry loop cannot
// produce a full chunk of unique secret codes.
var ErrGenerationExhausted = errors.New("failed to generate unique secret codes")

// SecretCode is one issued secret/public code pair. secret_code and
// public_code are unique for the life of the system; rows are never deleted.
type SecretCode struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BatchCode  string `gorm:"size:20;index;not null" json:"batch_code"`
	SecretCode string `gorm:"size:32;uniqueIndex;not null" json:"secret_code"`
	PublicCode string `gorm:"size:16;uniqueIndex;not null" json:"public_code"`

	Status         string `gorm:"size:20;not null" json:"status"`
	ValidateStatus string `gorm:"size:20;not null;default:pending" json:"validate_status"`

	IsSearchLimitReached bool `gorm:"not null;default:false" json:"is_search_limit_reached"`
	IsPrinted            bool `gorm:"not null;default:false" json:"is_printed"`

	SearchedCountSuccess int `gorm:"not null;default:0" json:"searched_count_success"`
	SearchedCountFail    int `gorm:"not null;default:0" json:"searched_count_fail"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`
}

// MaskedSecretCode hides all but the last four characters for display.
func (s *SecretCode) MaskedSecretCode() string {
	code := s.SecretCode
	if code == "" {
		return ""
	}
	if len(code) <= 4 {
		return code
	}
	return strings.Repeat("*", len(code)-4) + code[len(code)-4:]
}

// FormatPublicCode zero-pads a sequential public code to its fixed width.
func FormatPublicCode(n int64) string {
	return fmt.Sprintf("%0*d", PublicCodeLength, n)
}

// FormatBatchCode renders a batch sequence number as B######.
func FormatBatchCode(seq int64) string {
	return fmt.Sprintf("B%0*d", BatchCodeLength, seq)
}

// NormalizePublicCode zero-pads numeric user input to the canonical width.
func NormalizePublicCode(value string) string {
	value = strings.TrimSpace(value)
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return FormatPublicCode(n)
	}
	return value
}

// NextBatchCode returns the batch code following the highest existing one.
func NextBatchCode(ctx context.Context) (string, error) {
	db := config.GetDB()

	var last string
	err := db.WithContext(ctx).Raw(
		`SELECT batch_code FROM secret_codes
		 WHERE batch_code REGEXP '^B[0-9]+$'
		 ORDER BY CAST(SUBSTRING(batch_code, 2) AS UNSIGNED) DESC
		 LIMIT 1`,
	).Scan(&last).Error
	if err != nil {
		return "", err
	}

	var lastSeq int64
	if last != "" {
		lastSeq, _ = strconv.ParseInt(last[1:], 10, 64)
	}
	return FormatBatchCode(lastSeq + 1), nil
}

// NextPublicCode returns the highest allocated public code as an integer, or
// PublicCodeStart-1 when the store is empty. Read once per generation job;
// subsequent codes are assigned sequentially from it.
func NextPublicCode(ctx context.Context) (int64, error) {
	db := config.GetDB()

	var last string
	err := db.WithContext(ctx).Raw(
		`SELECT public_code FROM secret_codes
		 WHERE public_code REGEXP '^[0-9]+$'
		 ORDER BY CAST(public_code AS UNSIGNED) DESC
		 LIMIT 1`,
	).Scan(&last).Error
	if err != nil {
		return 0, err
	}

	if n, convErr := strconv.ParseInt(strings.TrimSpace(last), 10, 64); convErr == nil {
		return n, nil
	}
	return PublicCodeStart - 1, nil
}

var secretCodeMax = new(big.Int).Exp(big.NewInt(10), big.NewInt(SecretCodeLength), nil)

func randomSecretCode() (string, error) {
	n, err := rand.Int(rand.Reader, secretCodeMax)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", SecretCodeLength, n), nil
}

// drawChunk draws random fixed-width secret codes until the chunk holds size
// entries, skipping any code the excluded callback rejects. The attempt cap
// turns a pathologically saturated code space into an explicit failure
// instead of an endless loop.
func drawChunk(size int, excluded func(string) bool) (map[string]struct{}, error) {
	codes := make(map[string]struct{}, size)
	attempts := 0
	maxAttempts := size*50 + 1000
	for len(codes) < size {
		attempts++
		if attempts > maxAttempts {
			return nil, ErrGenerationExhausted
		}
		code, err := randomSecretCode()
		if err != nil {
			return nil, err
		}
		if _, dup := codes[code]; dup {
			continue
		}
		if excluded != nil && excluded(code) {
			continue
		}
		codes[code] = struct{}{}
	}
	return codes, nil
}

// GenerateSecretCodeChunk produces size secret codes that collide neither
// with each other, nor with the cross-call generated set, nor with any code
// already stored. Collisions against the store are detected in one bulk
// query; evicted candidates are replaced by redrawing against the union of
// all known exclusions.
func GenerateSecretCodeChunk(ctx context.Context, size int, generated map[string]struct{}) ([]string, error) {
	db := config.GetDB()

	codes, err := drawChunk(size, func(code string) bool {
		_, seen := generated[code]
		return seen
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]string, 0, len(codes))
	for code := range codes {
		candidates = append(candidates, code)
	}

	var existing []string
	err = db.WithContext(ctx).
		Model(&SecretCode{}).
		Where("secret_code IN ?", candidates).
		Pluck("secret_code", &existing).Error
	if err != nil {
		return nil, err
	}

	if len(existing) > 0 {
		existingSet := make(map[string]struct{}, len(existing))
		for _, code := range existing {
			delete(codes, code)
			existingSet[code] = struct{}{}
		}
		refill, refillErr := drawChunk(size-len(codes), func(code string) bool {
			if _, seen := generated[code]; seen {
				return true
			}
			if _, seen := codes[code]; seen {
				return true
			}
			_, seen := existingSet[code]
			return seen
		})
		if refillErr != nil {
			return nil, refillErr
		}
		for code := range refill {
			codes[code] = struct{}{}
		}
	}

	out := make([]string, 0, len(codes))
	for code := range codes {
		generated[code] = struct{}{}
		out = append(out, code)
	}
	return out, nil
}

// buildCodeRows assigns consecutive public codes starting after nextPublic
// and returns the rows plus the advanced cursor.
func buildCodeRows(batchCode string, secretCodes []string, nextPublic int64) ([]SecretCode, int64) {
	rows := make([]SecretCode, 0, len(secretCodes))
	for _, secret := range secretCodes {
		nextPublic++
		rows = append(rows, SecretCode{
			BatchCode:      batchCode,
			SecretCode:     secret,
			PublicCode:     FormatPublicCode(nextPublic),
			Status:         CodeStatusInactive,
			ValidateStatus: ValidateStatusPending,
		})
	}
	return rows, nextPublic
}

// InsertSecretCodes bulk-inserts one generated chunk and returns the advanced
// public-code cursor. Uniqueness violations surface as errors here; they are
// a generation-logic failure, never an expected race.
func InsertSecretCodes(ctx context.Context, batchCode string, secretCodes []string, nextPublic int64) (int64, error) {
	db := config.GetDB()

	rows, advanced := buildCodeRows(batchCode, secretCodes, nextPublic)
	if len(rows) == 0 {
		return nextPublic, nil
	}
	if err := db.WithContext(ctx).CreateInBatches(rows, BulkInsertBatchSize).Error; err != nil {
		return nextPublic, err
	}
	NotifyLiveRefresh("secret_codes")
	return advanced, nil
}

// GenerateCodes generates count codes synchronously, chunk by chunk. Large
// requests should go through QueueGenerateJob instead.
func GenerateCodes(ctx context.Context, batchCode string, count int) (int, error) {
	nextPublic, err := NextPublicCode(ctx)
	if err != nil {
		return 0, err
	}

	generated := make(map[string]struct{})
	total := 0
	remaining := count
	for remaining > 0 {
		chunkSize := remaining
		if chunkSize > BulkInsertBatchSize {
			chunkSize = BulkInsertBatchSize
		}
		secretCodes, chunkErr := GenerateSecretCodeChunk(ctx, chunkSize, generated)
		if chunkErr != nil {
			return total, chunkErr
		}
		nextPublic, err = InsertSecretCodes(ctx, batchCode, secretCodes, nextPublic)
		if err != nil {
			return total, err
		}
		total += len(secretCodes)
		remaining -= len(secretCodes)
	}
	return total, nil
}

// GetSecretCodeBySecret looks a record up by its secret code. Returns nil
// without error when absent.
func GetSecretCodeBySecret(ctx context.Context, secretCode string) (*SecretCode, error) {
	return findSecretCode(ctx, "secret_code = ?", secretCode)
}

// GetSecretCodeByPublic looks a record up by its public code. Returns nil
// without error when absent.
func GetSecretCodeByPublic(ctx context.Context, publicCode string) (*SecretCode, error) {
	return findSecretCode(ctx, "public_code = ?", publicCode)
}

func findSecretCode(ctx context.Context, cond string, value string) (*SecretCode, error) {
	db := config.GetDB()

	var record SecretCode
	err := db.WithContext(ctx).Where(cond, value).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// BulkSetStatusByPublicRange flips status for every code whose public code
// falls inside [from, to]. Inputs are zero-padded before comparison.
func BulkSetStatusByPublicRange(ctx context.Context, from string, to string, status string) (int64, error) {
	db := config.GetDB()

	from = NormalizePublicCode(from)
	to = NormalizePublicCode(to)
	res := db.WithContext(ctx).
		Model(&SecretCode{}).
		Where("public_code >= ? AND public_code <= ?", from, to).
		Update("status", NormalizeCodeStatus(status))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		NotifyLiveRefresh("secret_codes")
	}
	return res.RowsAffected, nil
}

// ActivateNextInactive activates the next n inactive codes after the most
// recently printed one, mirroring the print-then-activate workflow.
func ActivateNextInactive(ctx context.Context, n int) ([]SecretCode, error) {
	db := config.GetDB()

	var lastPrinted SecretCode
	query := db.WithContext(ctx).Where("status = ?", CodeStatusInactive)
	err := db.WithContext(ctx).
		Where("is_printed = ?", true).
		Order("updated_at desc, id desc").
		Take(&lastPrinted).Error
	if err == nil {
		query = query.Where("id > ?", lastPrinted.ID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var records []SecretCode
	if err := query.Order("id asc").Limit(n).Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return records, nil
	}

	ids := make([]int, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	err = db.WithContext(ctx).
		Model(&SecretCode{}).
		Where("id IN ?", ids).
		Update("status", CodeStatusActive).Error
	if err != nil {
		return nil, err
	}
	NotifyLiveRefresh("secret_codes")
	return records, nil
}
