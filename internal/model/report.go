package model

import "time"

// SignedDay - completed contracts of one local calendar day
type SignedDay struct {
	Date      string              `json:"date"`
	Count     int                 `json:"count"`
	Total     float64             `json:"total"`
	Contracts []CompletedContract `json:"contracts"`
}

// SignedReport - signed contracts of a period grouped by day, newest day first
type SignedReport struct {
	Start time.Time   `json:"start"`
	End   time.Time   `json:"end"`
	Count int         `json:"count"`
	Total float64     `json:"total"`
	Days  []SignedDay `json:"days"`
}

type SignedReportResponse struct {
	Status string        `json:"status"`
	Data   *SignedReport `json:"data"`
}
