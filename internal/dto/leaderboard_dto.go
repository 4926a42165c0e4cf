package dto

import (
	"time"

	"github.com/noah-isme/codearena-api/internal/models"
)

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
}

// LeaderboardResponse is the display-ordered leaderboard of an event.
type LeaderboardResponse struct {
	EventID   string             `json:"event_id"`
	Entries   []LeaderboardEntry `json:"entries"`
	Version   int64              `json:"version"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ReconcileResponse summarises a reconciliation pass.
type ReconcileResponse struct {
	Scanned  int `json:"scanned"`
	Credited int `json:"credited"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// NewLeaderboardResponse sorts the stored scores for display. Tied scores share a rank.
func NewLeaderboardResponse(board models.Leaderboard) LeaderboardResponse {
	sorted := models.SortScores(board.Scores)
	entries := make([]LeaderboardEntry, 0, len(sorted))

	rank := 0
	for i, entry := range sorted {
		if i == 0 || entry.Score != sorted[i-1].Score {
			rank = i + 1
		}
		entries = append(entries, LeaderboardEntry{
			Rank:        rank,
			UserID:      entry.UserID,
			DisplayName: entry.DisplayName,
			Score:       entry.Score,
		})
	}

	return LeaderboardResponse{
		EventID:   board.EventID,
		Entries:   entries,
		Version:   board.Version,
		UpdatedAt: board.UpdatedAt,
	}
}
