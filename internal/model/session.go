package model

import "time"

// ActiveSession - staff presence record refreshed by heartbeats
type ActiveSession struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	LastActive time.Time `json:"last_active"`
	CreatedAt  time.Time `json:"created_at"`
}

type ActiveSessionListResponse struct {
	Status string          `json:"status"`
	Data   []ActiveSession `json:"data"`
}

type ActiveSessionResponse struct {
	Status string         `json:"status"`
	Data   *ActiveSession `json:"data"`
}
