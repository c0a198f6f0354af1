package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/interstitch/sectorwars-intel/internal/database"
)

// cacheSweeper evicts expired ghost-trade cache rows.
type cacheSweeper interface {
	SweepCache(ctx context.Context) (int64, error)
}

// CacheSweepJob purges expired ghost-trade evaluations. The cache reads
// already evict lazily; this keeps the table small between lookups.
type CacheSweepJob struct {
	sweeper cacheSweeper
	log     zerolog.Logger
}

// NewCacheSweepJob creates a cache sweep job.
func NewCacheSweepJob(sweeper cacheSweeper, log zerolog.Logger) *CacheSweepJob {
	return &CacheSweepJob{
		sweeper: sweeper,
		log:     log.With().Str("job", "cache_sweep").Logger(),
	}
}

// Run executes the sweep.
func (j *CacheSweepJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := j.sweeper.SweepCache(ctx)
	if err != nil {
		return fmt.Errorf("cache sweep failed: %w", err)
	}

	if removed > 0 {
		j.log.Info().Int64("removed", removed).Msg("Swept expired cache entries")
	}
	return nil
}

// Name returns the job name for the scheduler.
func (j *CacheSweepJob) Name() string {
	return "cache_sweep"
}

// CheckpointJob truncates the WAL on every database to keep the files
// from growing unbounded between restarts.
type CheckpointJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewCheckpointJob creates a WAL checkpoint job.
func NewCheckpointJob(databases []*database.DB, log zerolog.Logger) *CheckpointJob {
	return &CheckpointJob{
		databases: databases,
		log:       log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Run checkpoints every database. A failed checkpoint is logged but does
// not abort the remaining databases.
func (j *CheckpointJob) Run() error {
	for _, db := range j.databases {
		if err := db.WALCheckpoint(); err != nil {
			j.log.Warn().
				Err(err).
				Str("database", db.Name()).
				Msg("WAL checkpoint failed")
			continue
		}
		j.log.Debug().Str("database", db.Name()).Msg("WAL checkpoint completed")
	}
	return nil
}

// Name returns the job name for the scheduler.
func (j *CheckpointJob) Name() string {
	return "wal_checkpoint"
}

// SnapshotJob ships a fresh snapshot to the bucket and rotates old ones.
type SnapshotJob struct {
	service *SnapshotService
	log     zerolog.Logger
}

// NewSnapshotJob creates a snapshot job.
func NewSnapshotJob(service *SnapshotService, log zerolog.Logger) *SnapshotJob {
	return &SnapshotJob{
		service: service,
		log:     log.With().Str("job", "snapshot").Logger(),
	}
}

// Run creates and uploads a snapshot, then applies retention.
func (j *SnapshotJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := j.service.CreateAndUpload(ctx); err != nil {
		return err
	}

	if err := j.service.Rotate(ctx); err != nil {
		j.log.Error().Err(err).Msg("Snapshot rotation failed")
		// The upload succeeded, so the job did its main work.
	}
	return nil
}

// Name returns the job name for the scheduler.
func (j *SnapshotJob) Name() string {
	return "snapshot"
}
