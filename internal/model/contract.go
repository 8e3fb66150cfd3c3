package model

import "time"

const ContractStatusOpen = "open"

// ActiveContract - deal waiting in the contract queue (active_contracts)
type ActiveContract struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	CustomerName    string    `json:"customer_name"`
	SalespersonName string    `json:"salesperson_name"`
	Value           float64   `json:"value"`
	Currency        string    `json:"currency"`
	CreatedAt       time.Time `json:"created_at"`
	PipelineID      int64     `json:"pipeline_id"`
	StageID         int64     `json:"stage_id"`
	StageName       string    `json:"stage_name"`
	Status          string    `json:"status"`
}

// CompletedContract - contract closed out by a staff member (completed_contracts)
type CompletedContract struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	CustomerName    string    `json:"customer_name"`
	SalespersonName string    `json:"salesperson_name"`
	Value           float64   `json:"value"`
	Currency        string    `json:"currency"`
	CreatedAt       time.Time `json:"created_at"`
	PipelineID      int64     `json:"pipeline_id"`
	StageID         int64     `json:"stage_id"`
	CompletedAt     time.Time `json:"completed_at"`
	CompletedBy     string    `json:"completed_by"`
}

// Complete - builds the completed record for this contract
func (c ActiveContract) Complete(completedBy string, completedAt time.Time) CompletedContract {
	return CompletedContract{
		ID:              c.ID,
		Title:           c.Title,
		CustomerName:    c.CustomerName,
		SalespersonName: c.SalespersonName,
		Value:           c.Value,
		Currency:        c.Currency,
		CreatedAt:       c.CreatedAt,
		PipelineID:      c.PipelineID,
		StageID:         c.StageID,
		CompletedAt:     completedAt,
		CompletedBy:     completedBy,
	}
}

// ActiveFilter - active queue query. PipelineID nil means any pipeline.
type ActiveFilter struct {
	StageID    int64
	PipelineID *int64
}

type CompletedStats struct {
	Total         int     `json:"total"`
	TotalValue    float64 `json:"total_value"`
	LastWeekCount int     `json:"last_week_count"`
	LastWeekValue float64 `json:"last_week_value"`
}

type ActiveContractListResponse struct {
	Status string           `json:"status"`
	Data   []ActiveContract `json:"data"`
}

type CompletedContractListResponse struct {
	Status string              `json:"status"`
	Data   []CompletedContract `json:"data"`
}

type CompletedContractResponse struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	Data    *CompletedContract `json:"data"`
}

type CompletedStatsResponse struct {
	Status string         `json:"status"`
	Data   CompletedStats `json:"data"`
}

type ContractMutationResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	ID      int64  `json:"id"`
}
