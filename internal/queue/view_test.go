package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/contractqueue/backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu        sync.Mutex
	contracts []model.ActiveContract
	listCalls atomic.Int32
	failWith  error

	// when set, Complete/Remove/ListActive block until release is closed
	entered chan struct{}
	release chan struct{}
}

func (f *fakeAPI) wait(ctx context.Context) {
	if f.release == nil {
		return
	}
	f.entered <- struct{}{}
	select {
	case <-f.release:
	case <-ctx.Done():
	}
}

func (f *fakeAPI) ListActive(ctx context.Context) ([]model.ActiveContract, error) {
	f.listCalls.Add(1)
	f.wait(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return append([]model.ActiveContract(nil), f.contracts...), nil
}

func (f *fakeAPI) Complete(ctx context.Context, id int64) (*model.CompletedContract, error) {
	f.wait(ctx)
	if err := f.drop(id); err != nil {
		return nil, err
	}
	return &model.CompletedContract{ID: id}, nil
}

func (f *fakeAPI) Remove(ctx context.Context, id int64) error {
	f.wait(ctx)
	return f.drop(id)
}

func (f *fakeAPI) drop(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	for i, c := range f.contracts {
		if c.ID == id {
			f.contracts = append(f.contracts[:i], f.contracts[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func seeded(ids ...int64) *fakeAPI {
	api := &fakeAPI{}
	for _, id := range ids {
		api.contracts = append(api.contracts, model.ActiveContract{ID: id, Title: "deal"})
	}
	return api
}

func ids(s Snapshot) []int64 {
	out := make([]int64, 0, len(s.Items))
	for _, item := range s.Items {
		out = append(out, item.Contract.ID)
	}
	return out
}

func TestRefreshLoadsQueue(t *testing.T) {
	api := seeded(1, 2)
	var changes atomic.Int32
	v := NewView(api, func(Snapshot) { changes.Add(1) })

	require.NoError(t, v.Refresh(context.Background()))
	snap := v.Snapshot()
	assert.Equal(t, []int64{1, 2}, ids(snap))
	assert.False(t, snap.UpdatedAt.IsZero())
	assert.Equal(t, int32(1), changes.Load())
}

func TestRefreshFailureKeepsItems(t *testing.T) {
	api := seeded(1)
	v := NewView(api, nil)
	require.NoError(t, v.Refresh(context.Background()))

	api.failWith = errors.New("boom")
	require.Error(t, v.Refresh(context.Background()))

	snap := v.Snapshot()
	assert.Equal(t, []int64{1}, ids(snap))
	assert.Equal(t, "failed to load contracts: boom", snap.Notice)
}

func TestRefreshIsCoalesced(t *testing.T) {
	api := seeded(1)
	api.entered = make(chan struct{})
	api.release = make(chan struct{})
	v := NewView(api, nil)

	done := make(chan error, 1)
	go func() { done <- v.Refresh(context.Background()) }()
	<-api.entered

	assert.ErrorIs(t, v.Refresh(context.Background()), ErrRefreshInFlight)

	close(api.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), api.listCalls.Load())
}

func TestCompleteRemovesItem(t *testing.T) {
	api := seeded(1, 2)
	v := NewView(api, nil)
	require.NoError(t, v.Refresh(context.Background()))

	require.NoError(t, v.Complete(context.Background(), 1))
	assert.Equal(t, []int64{2}, ids(v.Snapshot()))

	assert.ErrorIs(t, v.Complete(context.Background(), 1), ErrNotVisible)
}

func TestSecondActionWhileProcessingIsRejected(t *testing.T) {
	api := seeded(7)
	v := NewView(api, nil)
	require.NoError(t, v.Refresh(context.Background()))

	api.entered = make(chan struct{})
	api.release = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- v.Complete(context.Background(), 7) }()
	<-api.entered

	snap := v.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.True(t, snap.Items[0].Processing)

	assert.ErrorIs(t, v.Complete(context.Background(), 7), ErrProcessing)
	assert.ErrorIs(t, v.Remove(context.Background(), 7), ErrProcessing)

	close(api.release)
	require.NoError(t, <-done)
	assert.Empty(t, v.Snapshot().Items)
}

func TestFailedActionRestoresItem(t *testing.T) {
	api := seeded(3)
	v := NewView(api, nil)
	require.NoError(t, v.Refresh(context.Background()))

	api.failWith = errors.New("server down")
	err := v.Remove(context.Background(), 3)
	require.Error(t, err)

	snap := v.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.False(t, snap.Items[0].Processing)
	assert.Equal(t, "failed to remove contract 3: server down", snap.Notice)

	api.failWith = nil
	require.NoError(t, v.Remove(context.Background(), 3))
	assert.Empty(t, v.Snapshot().Items)
	assert.Empty(t, v.Snapshot().Notice)
}

func TestRunRefreshesOnStartTickAndSignal(t *testing.T) {
	api := seeded(1)
	v := NewView(api, nil)
	signals := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		v.Run(ctx, time.Hour, signals)
		close(done)
	}()

	require.Eventually(t, func() bool { return api.listCalls.Load() == 1 }, time.Second, 5*time.Millisecond)

	signals <- struct{}{}
	require.Eventually(t, func() bool { return api.listCalls.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	v2 := NewView(seeded(1), nil)
	api2 := v2.api.(*fakeAPI)
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	go v2.Run(ctx2, 10*time.Millisecond, nil)
	require.Eventually(t, func() bool { return api2.listCalls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}
