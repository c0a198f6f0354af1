package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/interstitch/sectorwars-intel/internal/clients/gameserver"
	"github.com/interstitch/sectorwars-intel/internal/config"
	"github.com/interstitch/sectorwars-intel/internal/database"
	"github.com/interstitch/sectorwars-intel/internal/engine"
	"github.com/interstitch/sectorwars-intel/internal/events"
	"github.com/interstitch/sectorwars-intel/internal/locks"
	"github.com/interstitch/sectorwars-intel/internal/modules/cascade"
	"github.com/interstitch/sectorwars-intel/internal/modules/evolution"
	"github.com/interstitch/sectorwars-intel/internal/modules/exploration"
	"github.com/interstitch/sectorwars-intel/internal/modules/forecast"
	"github.com/interstitch/sectorwars-intel/internal/modules/ghost"
	"github.com/interstitch/sectorwars-intel/internal/modules/intelligence"
	"github.com/interstitch/sectorwars-intel/internal/modules/security"
	"github.com/interstitch/sectorwars-intel/internal/reliability"
	"github.com/interstitch/sectorwars-intel/internal/scheduler"
	"github.com/interstitch/sectorwars-intel/internal/server"
	"github.com/interstitch/sectorwars-intel/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootstrapLog := logger.New(logger.Config{Level: "info"})
		bootstrapLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting market intelligence engine")

	// Databases: intelligence data, the append-only audit trail and the
	// ephemeral ghost-trade cache each get their own file and profile.
	intelDB := openDatabase(log, cfg, "intel", database.ProfileStandard)
	defer intelDB.Close()
	auditDB := openDatabase(log, cfg, "audit", database.ProfileAudit)
	defer auditDB.Close()
	cacheDB := openDatabase(log, cfg, "cache", database.ProfileCache)
	defer cacheDB.Close()

	bus := events.NewBus()
	keyLocks := locks.NewKeyedMutex()
	game := gameserver.NewClient(cfg.GameServerURL, log)

	auditRepo := security.NewAuditRepository(auditDB.Conn(), log)
	guard := security.NewGuard(
		game,
		auditRepo,
		security.NewAnomalyScorer(auditRepo),
		security.NewRateLimiter(cfg.Intel.QueriesPerMinute, time.Minute),
		security.NewManipulationDetector(game, log),
		auditRepo,
		bus,
		cfg.Intel.AnomalyThreshold,
		log,
	)

	explorationSvc := exploration.NewService(exploration.NewRepository(intelDB.Conn(), log), guard, log)
	intelligenceSvc := intelligence.NewService(intelligence.NewRepository(intelDB.Conn(), log), guard, keyLocks, cfg.Intel, log)
	forecastGen := forecast.NewGenerator(explorationSvc, intelligenceSvc, game, guard, cfg.Intel, log)
	ghostEval := ghost.NewEvaluator(forecastGen, ghost.NewCache(cacheDB.Conn(), cfg.Intel.CacheTTL, log), guard, log)
	cascadePlanner := cascade.NewPlanner(explorationSvc, intelligenceSvc, game, guard, log)
	evolutionSvc := evolution.NewService(evolution.NewRepository(intelDB.Conn(), log), game, guard, bus, keyLocks, log)

	eng := engine.New(explorationSvc, intelligenceSvc, forecastGen, ghostEval, cascadePlanner, evolutionSvc, guard, log)

	sched := scheduler.New(log)
	registerJobs(sched, log, cfg, eng, []*database.DB{intelDB, auditDB, cacheDB})
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:     log,
		Engine:  eng,
		Bus:     bus,
		IntelDB: intelDB,
		AuditDB: auditDB,
		CacheDB: cacheDB,
		Config:  cfg,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func openDatabase(log zerolog.Logger, cfg *config.Config, name string, profile database.Profile) *database.DB {
	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		log.Fatal().Err(err).Str("database", name).Msg("Failed to open database")
	}
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Str("database", name).Msg("Failed to migrate database")
	}
	return db
}

func registerJobs(sched *scheduler.Scheduler, log zerolog.Logger, cfg *config.Config, eng *engine.Engine, dbs []*database.DB) {
	mustAdd := func(schedule string, job scheduler.Job) {
		if err := sched.AddJob(schedule, job); err != nil {
			log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to register job")
		}
	}

	mustAdd("@every 5m", reliability.NewCacheSweepJob(eng, log))
	mustAdd("@hourly", reliability.NewCheckpointJob(dbs, log))

	if !cfg.Backup.Enabled {
		log.Debug().Msg("Snapshot backups disabled")
		return
	}

	store, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize snapshot storage")
	}

	// cache.db is deliberately left out of the snapshot set.
	snapshotDBs := make([]*database.DB, 0, len(dbs))
	for _, db := range dbs {
		if db.Name() != "cache" {
			snapshotDBs = append(snapshotDBs, db)
		}
	}
	snapshots := reliability.NewSnapshotService(store, snapshotDBs, cfg.DataDir, cfg.Backup.Keep, log)
	snapshotJob := reliability.NewSnapshotJob(snapshots, log)
	mustAdd("0 0 4 * * *", snapshotJob)
	log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Snapshot backups enabled")

	// Take a first snapshot right away instead of waiting for the 04:00
	// slot; a failure only delays coverage until the next scheduled run.
	go func() {
		if err := sched.RunNow(snapshotJob); err != nil {
			log.Warn().Err(err).Msg("Initial snapshot failed")
		}
	}()
}
