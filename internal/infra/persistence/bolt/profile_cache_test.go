package bolt

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"testing"

	"gratia/internal/domain/entity"
	"gratia/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bbolt "go.etcd.io/bbolt"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()

	cache, err := Open(filepath.Join(t.TempDir(), "profile.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	return cache
}

func TestCache_SaveLoadRoundTrip(t *testing.T) {
	cache := openTestCache(t)
	ctx := context.Background()

	saved := &entity.Profile{
		ID:           "user-1",
		Username:     "gracie",
		Onboarded:    true,
		ReminderTime: "08:30",
		DailyGoal:    3,
	}
	require.NoError(t, cache.Save(ctx, saved))

	loaded, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
}

func TestCache_LoadMiss(t *testing.T) {
	cache := openTestCache(t)

	_, err := cache.Load(context.Background())
	assert.ErrorIs(t, err, repository.ErrCacheMiss)
}

func TestCache_Clear(t *testing.T) {
	cache := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, &entity.Profile{ID: "user-1"}))
	require.NoError(t, cache.Clear(ctx))

	_, err := cache.Load(ctx)
	assert.ErrorIs(t, err, repository.ErrCacheMiss)

	// Clearing an already empty cache is a no-op.
	require.NoError(t, cache.Clear(ctx))
}

// writeRaw seeds a record at an explicit schema version, bypassing Save.
func writeRaw(t *testing.T, cache *Cache, record map[string]any, version int) {
	t.Helper()

	raw, err := json.Marshal(record)
	require.NoError(t, err)

	require.NoError(t, cache.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		if err := bucket.Put(keyRecord, raw); err != nil {
			return err
		}
		if version == 0 {
			return nil
		}

		return bucket.Put(keySchemaVersion, []byte(strconv.Itoa(version)))
	}))
}

func TestCache_MigratesInvalidReminderTime(t *testing.T) {
	cache := openTestCache(t)

	writeRaw(t, cache, map[string]any{
		"id":            "user-1",
		"reminder_time": "late evening",
	}, 1)

	loaded, err := cache.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded.ReminderTime)
	assert.Equal(t, "user-1", loaded.ID)
}

func TestCache_MigrationKeepsValidReminderTime(t *testing.T) {
	cache := openTestCache(t)

	writeRaw(t, cache, map[string]any{
		"id":            "user-1",
		"reminder_time": "21:15",
	}, 1)

	loaded, err := cache.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "21:15", loaded.ReminderTime)
}

func TestCache_UnversionedRecordTreatedAsV1(t *testing.T) {
	cache := openTestCache(t)

	writeRaw(t, cache, map[string]any{
		"id":            "user-1",
		"reminder_time": "not-a-time",
	}, 0)

	loaded, err := cache.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded.ReminderTime)
}

func TestCache_NewerVersionLoadsWithoutMigration(t *testing.T) {
	cache := openTestCache(t)

	writeRaw(t, cache, map[string]any{"id": "user-1"}, currentSchemaVersion+5)

	loaded, err := cache.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-1", loaded.ID)
}
