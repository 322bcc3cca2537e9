package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/paycoord/internal/models"
	"github.com/fatflowers/paycoord/internal/purchase"
	"github.com/fatflowers/paycoord/pkg/logctx"
	"github.com/fatflowers/paycoord/pkg/tool"
	"github.com/fatflowers/paycoord/pkg/types"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

var filterableFields = map[string]bool{
	"event":           true,
	"provider":        true,
	"product_id":      true,
	"trace_id":        true,
	"amount":          true,
	"is_subscription": true,
	"occurred_at":     true,
}

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	wg  sync.WaitGroup
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Record asynchronously persists a purchase progress event.
func (s *Service) Record(ctx context.Context, ev purchase.Event) {
	row := toModel(logctx.TraceID(ctx), ev, time.Now())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(row).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("failed to save purchase event", "event", ev.Name, "error", err)
		}
	}()
}

// Flush waits for pending writes.
func (s *Service) Flush() { s.wg.Wait() }

type SearchRequest struct {
	Filters []types.CommonFilter `json:"filters"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

type SearchResponse struct {
	Items []*models.PurchaseEventLog `json:"items"`
	Total int64                      `json:"total"`
}

// Search lists stored events, newest first.
func (s *Service) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	if req == nil {
		req = &SearchRequest{}
	}
	q := s.db.WithContext(ctx).Model(&models.PurchaseEventLog{})
	for i := range req.Filters {
		f := &req.Filters[i]
		if err := f.Validate(filterableFields); err != nil {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
		q = q.Where(f)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count purchase events: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	var items []*models.PurchaseEventLog
	if err := q.Order("occurred_at DESC").Limit(limit).Offset(req.Offset).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list purchase events: %w", err)
	}
	return &SearchResponse{Items: items, Total: total}, nil
}

func toModel(traceID string, ev purchase.Event, now time.Time) *models.PurchaseEventLog {
	row := &models.PurchaseEventLog{
		ID:             tool.GenerateUUIDV7(),
		Event:          ev.Name,
		TraceID:        traceID,
		ProductID:      ev.ProductID,
		Amount:         ev.Amount,
		IsSubscription: ev.IsSubscription,
		OccurredAt:     now,
	}
	if p, ok := ev.Meta["provider"].(string); ok {
		row.Provider = p
	}
	if len(ev.Meta) > 0 {
		raw, err := json.Marshal(ev.Meta)
		if err != nil {
			raw, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
		}
		row.Meta = datatypes.JSON(raw)
	}
	if ev.Err != nil {
		msg := ev.Err.Error()
		row.Error = &msg
	}
	return row
}

func registerFlush(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			s.Flush()
			return nil
		},
	})
}

// Module exposes the purchase event log via Fx.
var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerFlush),
)
