// Package queue keeps a client-side view of the active contract queue.
//
// Each item moves visible -> processing -> (removed | visible). The view
// refreshes on a timer and whenever a queue-changed signal arrives.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/contractqueue/backend/internal/model"
)

const DefaultRefreshInterval = 60 * time.Second

var (
	ErrRefreshInFlight = errors.New("refresh already in flight")
	ErrProcessing      = errors.New("contract is already being processed")
	ErrNotVisible      = errors.New("contract is not in the queue")
)

type contractsAPI interface {
	ListActive(ctx context.Context) ([]model.ActiveContract, error)
	Complete(ctx context.Context, id int64) (*model.CompletedContract, error)
	Remove(ctx context.Context, id int64) error
}

// Item - one queue row as displayed
type Item struct {
	Contract   model.ActiveContract
	Processing bool
}

// Snapshot - copy of the view state handed to renderers
type Snapshot struct {
	Items     []Item
	Notice    string
	UpdatedAt time.Time
}

type View struct {
	api      contractsAPI
	onChange func(Snapshot)
	now      func() time.Time

	mu         sync.Mutex
	items      []model.ActiveContract
	inflight   map[int64]struct{}
	refreshing bool
	notice     string
	updatedAt  time.Time
}

// NewView builds an empty view. onChange may be nil; it is called without the lock held.
func NewView(api contractsAPI, onChange func(Snapshot)) *View {
	return &View{
		api:      api,
		onChange: onChange,
		now:      time.Now,
		inflight: make(map[int64]struct{}),
	}
}

func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *View) snapshotLocked() Snapshot {
	items := make([]Item, 0, len(v.items))
	for _, c := range v.items {
		_, busy := v.inflight[c.ID]
		items = append(items, Item{Contract: c, Processing: busy})
	}
	return Snapshot{Items: items, Notice: v.notice, UpdatedAt: v.updatedAt}
}

// Refresh replaces the visible list with the server's. Only one refresh runs at a time.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	if v.refreshing {
		v.mu.Unlock()
		return ErrRefreshInFlight
	}
	v.refreshing = true
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.refreshing = false
		v.mu.Unlock()
	}()

	list, err := v.api.ListActive(ctx)
	if err != nil {
		v.update(func() { v.notice = fmt.Sprintf("failed to load contracts: %v", err) })
		return err
	}

	v.update(func() {
		v.items = list
		v.notice = ""
		v.updatedAt = v.now()
	})
	return nil
}

// Complete marks id as signed. The item is dropped on success and stays visible on failure.
func (v *View) Complete(ctx context.Context, id int64) error {
	return v.process(ctx, id, "complete", func(ctx context.Context) error {
		_, err := v.api.Complete(ctx, id)
		return err
	})
}

// Remove drops id from the queue without completing it
func (v *View) Remove(ctx context.Context, id int64) error {
	return v.process(ctx, id, "remove", func(ctx context.Context) error {
		return v.api.Remove(ctx, id)
	})
}

func (v *View) process(ctx context.Context, id int64, action string, call func(context.Context) error) error {
	if err := v.begin(id); err != nil {
		return err
	}
	v.update(func() {})
	defer v.update(func() { delete(v.inflight, id) })

	if err := call(ctx); err != nil {
		slog.WarnContext(ctx, "queue action failed", "action", action, "deal_id", id, "error", err)
		v.setNotice(fmt.Sprintf("failed to %s contract %d: %v", action, id, err))
		return err
	}

	v.mu.Lock()
	for i, c := range v.items {
		if c.ID == id {
			v.items = append(v.items[:i:i], v.items[i+1:]...)
			break
		}
	}
	v.notice = ""
	v.mu.Unlock()
	// the deferred cleanup reports the final state
	return nil
}

func (v *View) begin(id int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, busy := v.inflight[id]; busy {
		return ErrProcessing
	}
	for _, c := range v.items {
		if c.ID == id {
			v.inflight[id] = struct{}{}
			return nil
		}
	}
	return ErrNotVisible
}

// Run refreshes immediately, then on every tick and every signal until ctx is done
func (v *View) Run(ctx context.Context, interval time.Duration, signals <-chan struct{}) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	v.refreshLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.refreshLogged(ctx)
		case <-signals:
			v.refreshLogged(ctx)
		}
	}
}

func (v *View) refreshLogged(ctx context.Context) {
	err := v.Refresh(ctx)
	if err == nil || errors.Is(err, ErrRefreshInFlight) || ctx.Err() != nil {
		return
	}
	slog.WarnContext(ctx, "queue refresh failed", "error", err)
}

func (v *View) setNotice(notice string) {
	v.update(func() { v.notice = notice })
}

// update applies fn under the lock, then reports the new state
func (v *View) update(fn func()) {
	v.mu.Lock()
	fn()
	snap := v.snapshotLocked()
	v.mu.Unlock()

	if v.onChange != nil {
		v.onChange(snap)
	}
}
