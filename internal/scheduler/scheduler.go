// Package scheduler drives the engine's recurring upkeep: ghost-cache
// sweeps, WAL checkpoints and snapshot uploads all run as cron-scheduled
// maintenance jobs registered at startup.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one unit of recurring maintenance work. Run is expected to
// bound its own execution time; the scheduler never cancels a job.
type Job interface {
	Run() error
	Name() string
}

// Scheduler owns the cron runner the maintenance jobs hang off.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates an empty scheduler. Schedules use the six-field form with
// a seconds column.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins dispatching registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Maintenance scheduler started")
}

// Stop halts dispatching and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Maintenance scheduler stopped")
}

// AddJob registers a job against a cron schedule, e.g. "@every 5m",
// "@hourly" or "0 0 4 * * *". A failing run is logged and the schedule
// keeps ticking; one bad sweep must not stall the rest of the upkeep.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		start := time.Now()
		if err := job.Run(); err != nil {
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Msg("Maintenance job failed")
			return
		}
		s.log.Debug().
			Str("job", job.Name()).
			Dur("elapsed", time.Since(start)).
			Msg("Maintenance job completed")
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Maintenance job registered")
	return nil
}

// RunNow executes a job immediately, outside its schedule. Used at
// startup to take a first snapshot without waiting for the cron slot.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running maintenance job on demand")
	return job.Run()
}
