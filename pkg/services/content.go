package services

import (
	"context"
	"fmt"
	"time"

	"github.com/blush-marketing/core/pkg/logger"
	"github.com/blush-marketing/core/pkg/models"
	"github.com/blush-marketing/core/pkg/scheduler"
	"github.com/blush-marketing/core/pkg/utils"
)

// ContentService turns approved content briefs into draft posts awaiting
// editorial review.
type ContentService struct {
	db     scheduler.DBTX
	logger *logger.Logger
}

func NewContentService(db scheduler.DBTX) *ContentService {
	return &ContentService{
		db:     db,
		logger: logger.New("content-service"),
	}
}

// GenerateDrafts creates one draft per pending brief and marks the brief
// consumed. Returns how many drafts were created.
func (s *ContentService) GenerateDrafts(ctx context.Context) (int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, title, campaign, outline
		FROM content_briefs
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT 20`)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending briefs: %w", err)
	}
	defer rows.Close()

	type brief struct {
		id       int64
		title    string
		campaign string
		outline  string
	}
	var briefs []brief
	for rows.Next() {
		var b brief
		if err := rows.Scan(&b.id, &b.title, &b.campaign, &b.outline); err != nil {
			return 0, fmt.Errorf("failed to scan brief row: %w", err)
		}
		briefs = append(briefs, b)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read brief rows: %w", err)
	}
	rows.Close()

	created := 0
	for _, b := range briefs {
		draft := models.ContentDraft{
			Title:     b.title,
			Slug:      utils.GenerateContentSlug(b.title, b.campaign),
			Campaign:  b.campaign,
			Body:      b.outline,
			CreatedAt: time.Now(),
		}

		start := time.Now()
		tag, err := s.db.Exec(ctx, `
			INSERT INTO content_drafts (title, slug, campaign, body, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (slug) DO NOTHING`,
			draft.Title, draft.Slug, draft.Campaign, draft.Body, draft.CreatedAt,
		)
		s.logger.LogDatabaseOperation("insert", "content_drafts", int(tag.RowsAffected()), time.Since(start), err)
		if err != nil {
			return created, fmt.Errorf("failed to insert draft %q: %w", draft.Slug, err)
		}

		if _, err := s.db.Exec(ctx, `UPDATE content_briefs SET status = 'drafted' WHERE id = $1`, b.id); err != nil {
			return created, fmt.Errorf("failed to mark brief %d drafted: %w", b.id, err)
		}
		created++
	}

	return created, nil
}
