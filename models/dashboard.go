package models

import (
	"context"
	"time"

	"github.com/ghoridigital/secretcodes_backend/config"
)

// DashboardMetrics is the aggregate snapshot behind the admin dashboard.
type DashboardMetrics struct {
	TotalCodes     int64 `json:"total_codes"`
	ActiveCodes    int64 `json:"active_codes"`
	InactiveCodes  int64 `json:"inactive_codes"`
	ValidatedCodes int64 `json:"validated_codes"`
	PrintedCodes   int64 `json:"printed_codes"`

	ValidatedSearches int64 `json:"validated_searches"`
	RejectedSearches  int64 `json:"rejected_searches"`
	TotalLeads        int64 `json:"total_leads"`

	ValidationsByDay []DashboardPoint    `json:"validations_by_day"`
	MapPoints        []DashboardMapPoint `json:"map_points"`
}

// DashboardPoint is one day of the validations time series.
type DashboardPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// DashboardMapPoint is one geolocated search for the dashboard map.
type DashboardMapPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Status    string  `json:"status"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
}

// GetDashboardMetrics aggregates code, search-log and lead figures. The date
// range bounds the log and lead figures; code totals are always global.
func GetDashboardMetrics(ctx context.Context, dateFrom time.Time, dateTo time.Time) (*DashboardMetrics, error) {
	db := config.GetDB()
	metrics := DashboardMetrics{
		ValidationsByDay: []DashboardPoint{},
		MapPoints:        []DashboardMapPoint{},
	}

	codeCounts := []struct {
		Label string
		Dest  *int64
		Query interface{}
		Args  []interface{}
	}{
		{Label: "total", Dest: &metrics.TotalCodes},
		{Label: "active", Dest: &metrics.ActiveCodes, Query: "status = ?", Args: []interface{}{CodeStatusActive}},
		{Label: "inactive", Dest: &metrics.InactiveCodes, Query: "status = ?", Args: []interface{}{CodeStatusInactive}},
		{Label: "validated", Dest: &metrics.ValidatedCodes, Query: "validate_status = ?", Args: []interface{}{ValidateStatusValidated}},
		{Label: "printed", Dest: &metrics.PrintedCodes, Query: "is_printed = ?", Args: []interface{}{true}},
	}
	for _, c := range codeCounts {
		query := db.WithContext(ctx).Model(&SecretCode{})
		if c.Query != nil {
			query = query.Where(c.Query, c.Args...)
		}
		if err := query.Count(c.Dest).Error; err != nil {
			return nil, err
		}
	}

	err := db.WithContext(ctx).Model(&SecretCodeLog{}).
		Where("created_at >= ? AND created_at < ?", dateFrom, dateTo).
		Where("status = ?", LogStatusValidated).
		Count(&metrics.ValidatedSearches).Error
	if err != nil {
		return nil, err
	}
	err = db.WithContext(ctx).Model(&SecretCodeLog{}).
		Where("created_at >= ? AND created_at < ?", dateFrom, dateTo).
		Where("status = ?", LogStatusRejected).
		Count(&metrics.RejectedSearches).Error
	if err != nil {
		return nil, err
	}

	err = db.WithContext(ctx).Model(&ProductOfferLead{}).
		Where("created_at >= ? AND created_at < ?", dateFrom, dateTo).
		Count(&metrics.TotalLeads).Error
	if err != nil {
		return nil, err
	}

	rows := []struct {
		Day   string
		Total int64
	}{}
	err = db.WithContext(ctx).Model(&SecretCodeLog{}).
		Select("DATE(created_at) AS day, COUNT(*) AS total").
		Where("created_at >= ? AND created_at < ?", dateFrom, dateTo).
		Where("status = ?", LogStatusValidated).
		Group("DATE(created_at)").
		Order("day asc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		metrics.ValidationsByDay = append(metrics.ValidationsByDay, DashboardPoint{
			Date:  row.Day,
			Count: row.Total,
		})
	}

	points := []struct {
		SearchLatitude  float64
		SearchLongitude float64
		Status          string
		SearchCity      string
		SearchCountry   string
	}{}
	err = db.WithContext(ctx).Model(&SecretCodeLog{}).
		Select("search_latitude, search_longitude, status, search_city, search_country").
		Where("created_at >= ? AND created_at < ?", dateFrom, dateTo).
		Where("search_latitude <> 0 AND search_longitude <> 0").
		Order("created_at desc").
		Limit(500).
		Scan(&points).Error
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		metrics.MapPoints = append(metrics.MapPoints, DashboardMapPoint{
			Latitude:  p.SearchLatitude,
			Longitude: p.SearchLongitude,
			Status:    p.Status,
			City:      p.SearchCity,
			Country:   p.SearchCountry,
		})
	}

	return &metrics, nil
}
