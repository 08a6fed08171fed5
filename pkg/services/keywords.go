package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/blush-marketing/core/pkg/logger"
	"github.com/blush-marketing/core/pkg/models"
	"github.com/blush-marketing/core/pkg/scheduler"
)

// KeywordService fetches search-rank positions for tracked keywords.
// The upstream rank tracker throttles aggressively, so requests are
// rate-limited client-side.
type KeywordService struct {
	client  *APIClient
	db      scheduler.DBTX
	limiter *rate.Limiter
	logger  *logger.Logger
}

func NewKeywordService(client *APIClient, db scheduler.DBTX, requestsPerSecond float64) *KeywordService {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	return &KeywordService{
		client:  client,
		db:      db,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger.New("keyword-service"),
	}
}

// TrackedKeywords returns the keywords currently tracked in the store.
func (s *KeywordService) TrackedKeywords(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT keyword FROM tracked_keywords WHERE active ORDER BY keyword`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked keywords: %w", err)
	}
	defer rows.Close()

	var keywords []string
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, fmt.Errorf("failed to scan keyword row: %w", err)
		}
		keywords = append(keywords, kw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keyword rows: %w", err)
	}
	return keywords, nil
}

// SyncRanks fetches the current rank for every tracked keyword and
// records it. Returns how many keywords were updated.
func (s *KeywordService) SyncRanks(ctx context.Context) (int, error) {
	keywords, err := s.TrackedKeywords(ctx)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, keyword := range keywords {
		if err := s.limiter.Wait(ctx); err != nil {
			return synced, fmt.Errorf("rate limiter interrupted: %w", err)
		}

		var result models.KeywordRankResponse
		if err := s.client.GetJSON(ctx, "/v1/ranks?keyword="+keyword, &result); err != nil {
			return synced, fmt.Errorf("failed to fetch rank for %q: %w", keyword, err)
		}
		if !result.IsSuccess {
			return synced, fmt.Errorf("rank API request failed for %q: %s", keyword, result.Message)
		}

		for _, rank := range result.Ranks {
			start := time.Now()
			tag, err := s.db.Exec(ctx, `
				INSERT INTO keyword_ranks (keyword, engine, position, previous_position, landing_url, checked_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				rank.Keyword, rank.Engine, rank.Position, rank.PrevRank, rank.LandingURL, rank.CheckedAt,
			)
			s.logger.LogDatabaseOperation("insert", "keyword_ranks", int(tag.RowsAffected()), time.Since(start), err)
			if err != nil {
				return synced, fmt.Errorf("failed to record rank for %q: %w", keyword, err)
			}
		}
		synced++
	}

	return synced, nil
}
