// Package template provides outbound notification body rendering.
//
// Supported variables:
//
//	{{deal.id}}, {{deal.title}}, {{deal.customer}}, {{deal.salesperson}},
//	{{deal.value}}, {{deal.currency}}, {{deal.stage_id}}, {{deal.pipeline_id}},
//	{{deal.created_at}}, {{deal.completed_at}}, {{deal.completed_by}}
//
//	{{event.name}}, {{event.timestamp}}, {{event.user}}
package template

import (
	"strconv"
	"strings"
	"time"

	"github.com/contractqueue/backend/internal/model"
)

// DealData - contract fields available to templates
type DealData struct {
	ID          int64
	Title       string
	Customer    string
	Salesperson string
	Value       float64
	Currency    string
	StageID     int64
	PipelineID  int64
	CreatedAt   time.Time
	CompletedAt time.Time
	CompletedBy string
}

// EventData - envelope fields available to templates
type EventData struct {
	Name      string
	Timestamp time.Time
	User      string
}

// DealDataFromCompleted - DealData from a completed contract
func DealDataFromCompleted(c model.CompletedContract) DealData {
	return DealData{
		ID:          c.ID,
		Title:       c.Title,
		Customer:    c.CustomerName,
		Salesperson: c.SalespersonName,
		Value:       c.Value,
		Currency:    c.Currency,
		StageID:     c.StageID,
		PipelineID:  c.PipelineID,
		CreatedAt:   c.CreatedAt,
		CompletedAt: c.CompletedAt,
		CompletedBy: c.CompletedBy,
	}
}

// RenderBody - substitute template variables with their values.
//
// Variables of a nil section render as empty strings. Values are inserted
// verbatim; JSON escaping is up to the template author.
func RenderBody(body string, deal *DealData, event *EventData) string {
	pairs := make([]string, 0, 28)

	if deal != nil {
		pairs = append(pairs,
			"{{deal.id}}", strconv.FormatInt(deal.ID, 10),
			"{{deal.title}}", deal.Title,
			"{{deal.customer}}", deal.Customer,
			"{{deal.salesperson}}", deal.Salesperson,
			"{{deal.value}}", strconv.FormatFloat(deal.Value, 'f', -1, 64),
			"{{deal.currency}}", deal.Currency,
			"{{deal.stage_id}}", strconv.FormatInt(deal.StageID, 10),
			"{{deal.pipeline_id}}", strconv.FormatInt(deal.PipelineID, 10),
			"{{deal.created_at}}", formatTime(deal.CreatedAt),
			"{{deal.completed_at}}", formatTime(deal.CompletedAt),
			"{{deal.completed_by}}", deal.CompletedBy,
		)
	} else {
		for _, name := range []string{"id", "title", "customer", "salesperson", "value", "currency",
			"stage_id", "pipeline_id", "created_at", "completed_at", "completed_by"} {
			pairs = append(pairs, "{{deal."+name+"}}", "")
		}
	}

	if event != nil {
		pairs = append(pairs,
			"{{event.name}}", event.Name,
			"{{event.timestamp}}", formatTime(event.Timestamp),
			"{{event.user}}", event.User,
		)
	} else {
		pairs = append(pairs,
			"{{event.name}}", "",
			"{{event.timestamp}}", "",
			"{{event.user}}", "",
		)
	}

	return strings.NewReplacer(pairs...).Replace(body)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
