package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/contractqueue/backend/internal/broadcast"
	"github.com/contractqueue/backend/internal/db"
	"github.com/contractqueue/backend/internal/model"
)

const (
	SortByDate  = "date"
	SortByValue = "value"
	OrderAsc    = "asc"
	OrderDesc   = "desc"

	defaultCompletedRange = 30 * 24 * time.Hour
	statsWindow           = 7 * 24 * time.Hour
)

// contractRepo - DB interface for the contract queue
type contractRepo interface {
	ListActiveContracts(ctx context.Context, filter model.ActiveFilter) ([]model.ActiveContract, error)
	CompleteContract(ctx context.Context, id int64, completedBy string, completedAt time.Time) (*model.CompletedContract, error)
	DeleteActiveContract(ctx context.Context, id int64) error
	ListCompletedContracts(ctx context.Context, start, end time.Time) ([]model.CompletedContract, error)
	CompletedStats(ctx context.Context, since time.Time) (model.CompletedStats, error)
}

// completionNotifier - outbound notification on completion
type completionNotifier interface {
	NotifyCompleted(ctx context.Context, c model.CompletedContract)
}

// CompletedQuery - concluded contracts listing. Zero Start/End select the last 30 days.
type CompletedQuery struct {
	Start time.Time
	End   time.Time
	Sort  string
	Order string
}

type ContractService struct {
	db        contractRepo
	settings  settingsReader
	publisher broadcast.Publisher
	notifier  completionNotifier
	now       func() time.Time
}

func NewContractService(db contractRepo, settings settingsReader, publisher broadcast.Publisher, notifier completionNotifier) *ContractService {
	return &ContractService{
		db:        db,
		settings:  settings,
		publisher: publisher,
		notifier:  notifier,
		now:       time.Now,
	}
}

// ListActive - queue for stageID (configured stage when nil), optionally one pipeline
func (s *ContractService) ListActive(ctx context.Context, stageID, pipelineID *int64) ([]model.ActiveContract, error) {
	filter := model.ActiveFilter{PipelineID: pipelineID}
	if stageID != nil {
		filter.StageID = *stageID
	} else {
		settings, err := s.settings.Current(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load pipeline settings: %w", err)
		}
		filter.StageID = settings.StageID
	}
	return s.db.ListActiveContracts(ctx, filter)
}

// Complete moves contract id to the completed set, stamped with completedBy and now.
// A deal that was completed before is only dropped from the queue; the stored
// record stands and ErrConflict is returned.
func (s *ContractService) Complete(ctx context.Context, id int64, completedBy string) (*model.CompletedContract, error) {
	if id <= 0 {
		return nil, invalidf("invalid contract id")
	}
	if completedBy == "" {
		return nil, ErrUnauthorized
	}

	completed, err := s.db.CompleteContract(ctx, id, completedBy, s.now().UTC())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: contract %d is not in the queue", ErrNotFound, id)
		}
		if errors.Is(err, db.ErrAlreadyCompleted) {
			slog.WarnContext(ctx, "stale queue entry for completed contract dropped", "deal_id", id)
			s.publisher.Publish(ctx, model.NewQueueEvent(model.QueueReasonRemoved, id))
			return nil, fmt.Errorf("%w: contract %d was already completed", ErrConflict, id)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "contract completed", "deal_id", id, "completed_by", completedBy)
	s.publisher.Publish(ctx, model.NewQueueEvent(model.QueueReasonCompleted, id))
	s.notifier.NotifyCompleted(ctx, *completed)
	return completed, nil
}

// Remove drops contract id from the queue without completing it
func (s *ContractService) Remove(ctx context.Context, id int64) error {
	if id <= 0 {
		return invalidf("invalid contract id")
	}
	if err := s.db.DeleteActiveContract(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: contract %d is not in the queue", ErrNotFound, id)
		}
		return err
	}

	slog.InfoContext(ctx, "contract removed from queue", "deal_id", id)
	s.publisher.Publish(ctx, model.NewQueueEvent(model.QueueReasonRemoved, id))
	return nil
}

func (s *ContractService) ListCompleted(ctx context.Context, q CompletedQuery) ([]model.CompletedContract, error) {
	if q.Sort == "" {
		q.Sort = SortByDate
	}
	if q.Order == "" {
		q.Order = OrderDesc
	}
	if q.Sort != SortByDate && q.Sort != SortByValue {
		return nil, invalidf("sort must be %q or %q", SortByDate, SortByValue)
	}
	if q.Order != OrderAsc && q.Order != OrderDesc {
		return nil, invalidf("order must be %q or %q", OrderAsc, OrderDesc)
	}

	if q.End.IsZero() {
		q.End = s.now()
	}
	if q.Start.IsZero() {
		q.Start = q.End.Add(-defaultCompletedRange)
	}
	if q.Start.After(q.End) {
		return nil, invalidf("start must not be after end")
	}

	list, err := s.db.ListCompletedContracts(ctx, q.Start, q.End)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if q.Order == OrderDesc {
			a, b = b, a
		}
		if q.Sort == SortByValue {
			return a.Value < b.Value
		}
		return a.CompletedAt.Before(b.CompletedAt)
	})
	return list, nil
}

// Stats - all-time totals plus the last seven days
func (s *ContractService) Stats(ctx context.Context) (model.CompletedStats, error) {
	return s.db.CompletedStats(ctx, s.now().Add(-statsWindow))
}
