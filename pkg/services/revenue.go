package services

import (
	"context"
	"fmt"
	"time"

	"github.com/blush-marketing/core/pkg/logger"
	"github.com/blush-marketing/core/pkg/models"
	"github.com/blush-marketing/core/pkg/scheduler"
)

// RevenueService pulls daily revenue reports from the upstream revenue
// API and snapshots them into the document store.
type RevenueService struct {
	client *APIClient
	db     scheduler.DBTX
	logger *logger.Logger
}

func NewRevenueService(client *APIClient, db scheduler.DBTX) *RevenueService {
	return &RevenueService{
		client: client,
		db:     db,
		logger: logger.New("revenue-service"),
	}
}

// SyncDaily fetches yesterday's revenue across all channels and upserts
// one snapshot row per channel.
func (s *RevenueService) SyncDaily(ctx context.Context) (int, error) {
	var result models.RevenueResponse
	if err := s.client.GetJSON(ctx, "/v1/revenue/daily", &result); err != nil {
		return 0, fmt.Errorf("failed to fetch revenue reports: %w", err)
	}
	if !result.IsSuccess {
		return 0, fmt.Errorf("revenue API request failed: %s", result.Message)
	}

	query := `
		INSERT INTO revenue_snapshots (channel, report_date, gross_cents, net_cents, currency, conversions, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (channel, report_date) DO UPDATE SET
			gross_cents = EXCLUDED.gross_cents,
			net_cents = EXCLUDED.net_cents,
			currency = EXCLUDED.currency,
			conversions = EXCLUDED.conversions,
			updated_at = EXCLUDED.updated_at`

	synced := 0
	for _, report := range result.Reports {
		start := time.Now()
		tag, err := s.db.Exec(ctx, query,
			report.Channel,
			report.Date,
			report.GrossCents,
			report.NetCents,
			report.Currency,
			report.Conversions,
			time.Now(),
		)
		s.logger.LogDatabaseOperation("upsert", "revenue_snapshots", int(tag.RowsAffected()), time.Since(start), err)
		if err != nil {
			return synced, fmt.Errorf("failed to upsert revenue snapshot for %s: %w", report.Channel, err)
		}
		synced++
	}

	return synced, nil
}
