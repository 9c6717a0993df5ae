package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bybrooklyn/alchemist/internal/models"
)

func TestLogRepoHistoryAndSweep(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLogRepository(db)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, repo.Record(ctx, "info", nil, fmt.Sprintf("message %d", i)))
	}

	entries, total, err := repo.History(ctx, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 25, total)
	require.Len(t, entries, 10)
	// Newest first.
	assert.Equal(t, "message 24", entries[0].Message)

	removed, err := repo.Sweep(ctx, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 15, removed)

	_, total, err = repo.History(ctx, 1, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 10, total)

	// Survivors are the newest rows.
	entries, _, err = repo.History(ctx, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, "message 24", entries[0].Message)
	assert.Equal(t, "message 15", entries[len(entries)-1].Message)

	require.NoError(t, repo.Clear(ctx))
	_, total, err = repo.History(ctx, 1, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestSettingsRepoUpsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettingsRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "transcode.output_codec", "av1"))
	require.NoError(t, repo.Set(ctx, "transcode.output_codec", "hevc"))

	value, err := repo.Get(ctx, "transcode.output_codec")
	require.NoError(t, err)
	assert.Equal(t, "hevc", value)

	require.NoError(t, repo.SetAll(ctx, map[string]string{
		"files.delete_source":   "true",
		"files.output_suffix":   "-x",
		"transcode.output_codec": "h264",
	}))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "h264", all["transcode.output_codec"])
	assert.Equal(t, "true", all["files.delete_source"])

	// Missing keys read as empty.
	missing, err := repo.Get(ctx, "does.not.exist")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestSessionRepoExpiry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	live := &models.Session{UserID: models.NewULID(), Token: "tok-live", ExpiresAt: now.Add(time.Hour)}
	stale := &models.Session{UserID: models.NewULID(), Token: "tok-stale", ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, repo.Create(ctx, live))
	require.NoError(t, repo.Create(ctx, stale))

	removed, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	found, err := repo.GetByToken(ctx, "tok-live")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.False(t, found.IsExpired(now))

	gone, err := repo.GetByToken(ctx, "tok-stale")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
