package template

import (
	"testing"
	"time"

	"github.com/contractqueue/backend/internal/model"
)

func TestRenderBody(t *testing.T) {
	completedAt := time.Date(2024, 5, 2, 14, 30, 0, 0, time.UTC)
	deal := DealDataFromCompleted(model.CompletedContract{
		ID:          501,
		Title:       "Acme Deal",
		Value:       10000.5,
		Currency:    "BRL",
		StageID:     20,
		PipelineID:  4,
		CompletedAt: completedAt,
		CompletedBy: "Alice",
	})
	event := EventData{Name: model.EventDealCompleted, Timestamp: completedAt, User: "Alice"}

	tests := []struct {
		name  string
		body  string
		deal  *DealData
		event *EventData
		want  string
	}{
		{
			name:  "deal-and-event",
			body:  `{"id":{{deal.id}},"title":"{{deal.title}}","value":{{deal.value}},"by":"{{event.user}}"}`,
			deal:  &deal,
			event: &event,
			want:  `{"id":501,"title":"Acme Deal","value":10000.5,"by":"Alice"}`,
		},
		{
			name: "timestamps-rfc3339",
			body: "{{deal.completed_at}}|{{deal.created_at}}",
			deal: &deal,
			want: "2024-05-02T14:30:00Z|",
		},
		{
			name:  "nil-sections-render-empty",
			body:  "[{{deal.title}}][{{event.name}}]",
			want:  "[][]",
			event: nil,
		},
		{
			name:  "unknown-variables-untouched",
			body:  "{{deal.unknown}} {{event.name}}",
			event: &event,
			want:  "{{deal.unknown}} deal.completed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderBody(tt.body, tt.deal, tt.event); got != tt.want {
				t.Fatalf("RenderBody() = %q, want %q", got, tt.want)
			}
		})
	}
}
