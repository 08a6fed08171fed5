package models

import "time"

// RevenueReport is one day of revenue for a channel, as returned by the
// upstream revenue API.
type RevenueReport struct {
	Channel     string    `json:"channel"`
	Date        time.Time `json:"date"`
	GrossCents  int64     `json:"gross_cents"`
	NetCents    int64     `json:"net_cents"`
	Currency    string    `json:"currency"`
	Conversions int       `json:"conversions"`
}

// RevenueResponse is the upstream revenue API envelope.
type RevenueResponse struct {
	IsSuccess bool            `json:"success"`
	Message   string          `json:"message"`
	Reports   []RevenueReport `json:"reports"`
}

// KeywordRank is one tracked keyword's current search position.
type KeywordRank struct {
	Keyword    string    `json:"keyword"`
	Engine     string    `json:"engine"`
	Position   int       `json:"position"`
	PrevRank   int       `json:"previous_position"`
	CheckedAt  time.Time `json:"checked_at"`
	LandingURL string    `json:"landing_url"`
}

// KeywordRankResponse is the upstream rank-tracker API envelope.
type KeywordRankResponse struct {
	IsSuccess bool          `json:"success"`
	Message   string        `json:"message"`
	Ranks     []KeywordRank `json:"ranks"`
}

// ContentDraft is a generated piece of marketing content awaiting review.
type ContentDraft struct {
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	Campaign  string    `json:"campaign"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
