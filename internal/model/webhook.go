package model

import "time"

const (
	WebhookStatusSuccess = "success"
	WebhookStatusIgnored = "ignored"
	WebhookStatusError   = "error"

	EventDealCompleted = "deal.completed"
)

// WebhookMeta - Pipedrive "meta" section
type WebhookMeta struct {
	Action string `json:"action,omitempty"`
	ID     string `json:"id,omitempty"`
	Object string `json:"object,omitempty"`
}

// PipedriveWebhook - inbound CRM notification. Data stays untyped because the CRM
// does not guarantee a schema; fields are presence-checked by the ingest service.
type PipedriveWebhook struct {
	Event     string         `json:"event"`
	Meta      *WebhookMeta   `json:"meta,omitempty"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp,omitempty"`
	User      string         `json:"user,omitempty"`
}

// WebhookDealData - accepted deal summary echoed back to the CRM
type WebhookDealData struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// WebhookResponse - reply for POST /api/webhook
type WebhookResponse struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Data    *WebhookDealData `json:"data,omitempty"`
}

// OutboundDealData - "data" section of the outbound notification
type OutboundDealData struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Value      float64 `json:"value"`
	StageID    int64   `json:"stage_id"`
	PipelineID int64   `json:"pipeline_id"`
}

// OutboundEvent - payload POSTed to the configured notification URL
type OutboundEvent struct {
	Event     string           `json:"event"`
	Data      OutboundDealData `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
	User      string           `json:"user"`
}

type TestWebhookResponse struct {
	Status       string         `json:"status"`
	Message      string         `json:"message"`
	ReceivedData map[string]any `json:"receivedData"`
}
