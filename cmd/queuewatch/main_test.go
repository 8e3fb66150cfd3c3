package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/contractqueue/backend/internal/model"
	"github.com/contractqueue/backend/internal/queue"
	"github.com/stretchr/testify/assert"
)

func TestRenderMarksProcessingAndNotice(t *testing.T) {
	var b strings.Builder
	render(&b, queue.Snapshot{
		Items: []queue.Item{
			{Contract: model.ActiveContract{ID: 501, Title: "Acme Deal", Currency: "BRL", Value: 10000}},
			{Contract: model.ActiveContract{ID: 502, Title: "Beta Deal", Currency: "BRL", Value: 50}, Processing: true},
		},
		Notice:    "failed to complete contract 9: boom",
		UpdatedAt: time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC),
	})

	out := b.String()
	assert.Contains(t, out, "== contract queue (2) updated 10:30:00 ==")
	assert.Contains(t, out, "BRL 10000.00\n")
	assert.Contains(t, out, "BRL 50.00 [processing]\n")
	assert.Contains(t, out, "! failed to complete contract 9: boom")
}

func TestReadCommandsStopsOnQuit(t *testing.T) {
	view := queue.NewView(nil, nil)
	err := readCommands(context.Background(), strings.NewReader("\nbogus\ndone x\nquit\nrefresh\n"), view)
	assert.NoError(t, err)
}
