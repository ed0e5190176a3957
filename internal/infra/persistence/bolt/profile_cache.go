// Package bolt provides the bbolt-backed local profile cache. The cache keeps
// the mirrored profile record across app restarts; it is invalidated by an
// identity mismatch in the store layer, never by time.
package bolt

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"gratia/config"
	"gratia/internal/domain/entity"
	"gratia/internal/domain/repository"
	"gratia/internal/errors"

	bbolt "go.etcd.io/bbolt"
	"go.uber.org/fx"
)

var (
	bucketName = []byte("gratia.profile")

	keyRecord        = []byte("record")
	keySchemaVersion = []byte("schema_version")
)

// currentSchemaVersion is bumped whenever the persisted shape changes; a
// matching entry must be added to the migrations table.
const currentSchemaVersion = 2

// migrations maps a stored schema version to the pure step that lifts a
// record to the next version. Steps run in sequence until the record reaches
// currentSchemaVersion.
var migrations = map[int]func(map[string]any) map[string]any{
	// v1 -> v2: early builds persisted arbitrary reminder_time strings;
	// anything that does not parse as "HH:MM" is normalized to unset.
	1: func(record map[string]any) map[string]any {
		raw, _ := record["reminder_time"].(string)
		if raw != "" {
			if _, err := time.Parse(entity.ReminderTimeLayout, raw); err != nil {
				record["reminder_time"] = ""
			}
		}

		return record
	},
}

// Cache implements repository.ProfileCache backed by a bbolt database.
type Cache struct {
	db *bbolt.DB
}

var _ repository.ProfileCache = (*Cache)(nil)

// Open opens (creating if needed) a cache database at the given path.
func Open(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open profile cache")
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return errors.WithStack(c.db.Close())
}

// Params holds dependencies for the profile cache, injected by Fx.
type Params struct {
	fx.In
	fx.Lifecycle

	Config *config.Config
}

// NewProfileCache is the Fx constructor for the profile cache.
func NewProfileCache(params Params) (repository.ProfileCache, error) {
	cache, err := Open(params.Config.ProfileSync.CachePath)
	if err != nil {
		return nil, err
	}

	params.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return cache.Close()
		},
	})

	return cache, nil
}

// Load returns the persisted profile migrated to the current schema version.
func (c *Cache) Load(_ context.Context) (*entity.Profile, error) {
	var profile *entity.Profile

	err := c.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return repository.ErrCacheMiss
		}

		raw := bucket.Get(keyRecord)
		if raw == nil {
			return repository.ErrCacheMiss
		}

		version := currentSchemaVersion
		if stored := bucket.Get(keySchemaVersion); stored != nil {
			parsed, err := strconv.Atoi(string(stored))
			if err != nil {
				return errors.Wrap(err, "corrupt schema version")
			}
			version = parsed
		} else {
			// Records written before versioning are v1 by definition.
			version = 1
		}

		record := make(map[string]any)
		if err := json.Unmarshal(raw, &record); err != nil {
			return errors.Wrap(err, "failed to decode cached profile")
		}

		for v := version; v < currentSchemaVersion; v++ {
			step, ok := migrations[v]
			if !ok {
				return errors.Errorf("no migration from schema version %d", v)
			}
			record = step(record)
		}

		migrated, err := json.Marshal(record)
		if err != nil {
			return errors.Wrap(err, "failed to re-encode migrated profile")
		}

		profile = &entity.Profile{}

		return errors.Wrap(json.Unmarshal(migrated, profile), "failed to decode migrated profile")
	})
	if err != nil {
		return nil, err
	}

	return profile, nil
}

// Save persists the profile at the current schema version.
func (c *Cache) Save(_ context.Context, profile *entity.Profile) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return errors.Wrap(err, "failed to create cache bucket")
		}

		raw, err := json.Marshal(profile)
		if err != nil {
			return errors.Wrap(err, "failed to encode profile")
		}

		if err := bucket.Put(keyRecord, raw); err != nil {
			return errors.Wrap(err, "failed to write profile record")
		}

		return errors.Wrap(
			bucket.Put(keySchemaVersion, []byte(strconv.Itoa(currentSchemaVersion))),
			"failed to write schema version",
		)
	})
}

// Clear removes the persisted record.
func (c *Cache) Clear(_ context.Context) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketName) == nil {
			return nil
		}

		return errors.Wrap(tx.DeleteBucket(bucketName), "failed to drop cache bucket")
	})
}
