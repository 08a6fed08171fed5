package utils

import (
	"github.com/gosimple/slug"
)

// NormalizeSlug creates a URL-friendly slug using the gosimple/slug library
// This handles all Unicode characters including Turkish, European, and other languages
func NormalizeSlug(text string) string {
	if text == "" {
		return ""
	}

	return slug.Make(text)
}

// GenerateContentSlug creates a slug for a content draft from its title
// and campaign name.
func GenerateContentSlug(title, campaign string) string {
	if title == "" {
		title = "draft"
	}

	text := title
	if campaign != "" {
		text = campaign + " " + text
	}
	return NormalizeSlug(text)
}

// GenerateCampaignSlug creates a slug for a campaign name and channel.
func GenerateCampaignSlug(campaignName, channel string) string {
	if campaignName == "" {
		campaignName = "campaign"
	}

	text := campaignName
	if channel != "" {
		text += " " + channel
	}

	return NormalizeSlug(text)
}
