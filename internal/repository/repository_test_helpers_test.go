package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/codearena-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func seedEvent(t *testing.T, repo EventRepository, organizerID string) models.Event {
	t.Helper()

	now := time.Now().UTC()
	event := models.Event{
		Name:        "Spring Cup",
		Description: "Warm-up round",
		StartTime:   now.Add(-time.Hour),
		EndTime:     now.Add(time.Hour),
		OrganizerID: organizerID,
	}
	require.NoError(t, repo.Create(context.Background(), &event))
	return event
}
