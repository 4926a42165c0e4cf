package models

// All lists every persisted model for migrations.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Event{},
		&Question{},
		&Submission{},
		&Leaderboard{},
		&ScoreAward{},
	}
}
