package service

import (
	"context"
	"sync"
	"time"

	"github.com/contractqueue/backend/internal/config"
	"github.com/contractqueue/backend/internal/model"
)

// recordingPublisher - collects published queue events
type recordingPublisher struct {
	mu     sync.Mutex
	events []model.QueueEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, evt model.QueueEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) Events() []model.QueueEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.QueueEvent(nil), p.events...)
}

// recordingNotifier - collects completion notifications
type recordingNotifier struct {
	mu        sync.Mutex
	completed []model.CompletedContract
}

func (n *recordingNotifier) NotifyCompleted(ctx context.Context, c model.CompletedContract) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, c)
}

// staticSettings - fixed settingsReader
type staticSettings struct {
	settings model.PipedriveSettings
	err      error
}

func (s staticSettings) Current(ctx context.Context) (model.PipedriveSettings, error) {
	return s.settings, s.err
}

func testPipedriveConfig() config.PipedriveConfig {
	return config.PipedriveConfig{
		PipelineID:          4,
		StageID:             20,
		DefaultCurrency:     "BRL",
		DefaultCustomerName: "Cliente via Webhook",
		DefaultSalesperson:  "Integração",
		DefaultStageName:    "Elaborar Contrato",
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
