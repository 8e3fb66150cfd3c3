package model

import "time"

const (
	QueueEventType = "DEALS_UPDATED"

	QueueReasonCreated   = "created"
	QueueReasonCompleted = "completed"
	QueueReasonRemoved   = "removed"
)

// QueueEvent - "queue changed, re-fetch" signal shared by every open view
type QueueEvent struct {
	Type   string    `json:"type" msgpack:"type"`
	Reason string    `json:"reason" msgpack:"reason"`
	DealID int64     `json:"deal_id" msgpack:"deal_id"`
	Origin string    `json:"origin,omitempty" msgpack:"origin"`
	At     time.Time `json:"at" msgpack:"at"`
}

func NewQueueEvent(reason string, dealID int64) QueueEvent {
	return QueueEvent{
		Type:   QueueEventType,
		Reason: reason,
		DealID: dealID,
		At:     time.Now().UTC(),
	}
}
