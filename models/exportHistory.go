package models

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghoridigital/secretcodes_backend/config"
	"github.com/xuri/excelize/v2"
)

var ErrNoCodesToExport = errors.New("no_codes_to_export")

// ExportHistory records every print-file export so a batch is never sent to
// the printer twice by accident.
type ExportHistory struct {
	ID             int       `gorm:"primary_key" json:"id"`
	PublicCodeFrom string    `gorm:"size:16" json:"public_code_from"`
	PublicCodeTo   string    `gorm:"size:16" json:"public_code_to"`
	CodeCount      int       `gorm:"not null" json:"code_count"`
	FileName       string    `gorm:"size:191" json:"file_name"`
	ExportedBy     string    `gorm:"size:191" json:"exported_by"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// ExportCodesInput selects codes either by an explicit public-code range or,
// when Count is set, the next Count unprinted codes in public-code order.
type ExportCodesInput struct {
	PublicCodeFrom string `json:"public_code_from"`
	PublicCodeTo   string `json:"public_code_to"`
	Count          int    `json:"count"`
	ExportedBy     string `json:"exported_by"`
}

// ExportResult carries the finished workbook and the recorded history row.
type ExportResult struct {
	FileName string
	Content  []byte
	History  *ExportHistory
}

// ExportCodes builds the print workbook, marks the exported codes as printed
// and appends an export-history record.
func ExportCodes(ctx context.Context, input *ExportCodesInput) (*ExportResult, error) {
	db := config.GetDB()

	query := db.WithContext(ctx).Model(&SecretCode{}).Order("public_code asc")
	if input.Count > 0 {
		query = query.Where("is_printed = ?", false).Limit(input.Count)
	} else {
		from := NormalizePublicCode(input.PublicCodeFrom)
		to := NormalizePublicCode(input.PublicCodeTo)
		if from == "" || to == "" {
			return nil, errors.New("public_code_range_required")
		}
		query = query.Where("public_code >= ? AND public_code <= ?", from, to)
	}

	var codes []SecretCode
	if err := query.Find(&codes).Error; err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, ErrNoCodesToExport
	}

	content, err := buildCodesWorkbook(codes)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(codes))
	for _, code := range codes {
		ids = append(ids, code.ID)
	}
	err = db.WithContext(ctx).Model(&SecretCode{}).
		Where("id IN ?", ids).
		Update("is_printed", true).Error
	if err != nil {
		return nil, err
	}

	history := ExportHistory{
		PublicCodeFrom: codes[0].PublicCode,
		PublicCodeTo:   codes[len(codes)-1].PublicCode,
		CodeCount:      len(codes),
		FileName: fmt.Sprintf("secret_codes_%s_%s.xlsx",
			codes[0].PublicCode, codes[len(codes)-1].PublicCode),
		ExportedBy: input.ExportedBy,
	}
	if err := db.WithContext(ctx).Create(&history).Error; err != nil {
		return nil, err
	}
	NotifyLiveRefresh("secret_codes")

	return &ExportResult{
		FileName: history.FileName,
		Content:  content,
		History:  &history,
	}, nil
}

func buildCodesWorkbook(codes []SecretCode) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	sheet := "Secret Codes"
	index, err := file.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	file.SetActiveSheet(index)
	if err := file.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headers := []string{"Public Code", "Secret Code", "Batch Code", "Status"}
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := file.SetCellValue(sheet, cell, header); err != nil {
			return nil, err
		}
	}

	for row, code := range codes {
		values := []interface{}{code.PublicCode, code.SecretCode, code.BatchCode, code.Status}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := file.SetCellValue(sheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
