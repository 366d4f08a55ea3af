package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/gatherhq/gather/pkg/audit"
	"github.com/gatherhq/gather/pkg/auth"
	"github.com/gatherhq/gather/pkg/config"
	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/storage/postgres"
)

var (
	sessionSchedule = flag.String("session-schedule", "15 * * * *", "Cron schedule for expired session purges (default: 15 past every hour)")
	archiveSchedule = flag.String("archive-schedule", "30 2 * * *", "Cron schedule for audit archival (default: 02:30 UTC)")
	batchSize       = flag.Int("archive-batch-size", audit.DefaultArchiveBatchSize, "Events per archive object")
	runOnce         = flag.Bool("run-once", false, "Run both sweeps once and exit (for testing)")
)

// sweeper owns the periodic retention work: purging dead sessions and
// moving aged audit rows to the archive bucket.
type sweeper struct {
	logger   *observability.Logger
	sessions *auth.SessionStore
	archiver *audit.S3Archiver

	sessionRetention time.Duration
	auditRetention   time.Duration
	batchSize        int
}

func main() {
	flag.Parse()

	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", observability.Version).Info("starting gather-sweeper")

	db, err := postgres.NewDB(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer db.Close()

	s := &sweeper{
		logger:   logger,
		sessions: auth.NewSessionStore(db, cfg.Auth.SessionTTL, nil),
		// Expired sessions are kept around for the session TTL again
		// before deletion so recent activity stays inspectable.
		sessionRetention: cfg.Auth.SessionTTL,
		auditRetention:   cfg.Audit.Retention,
		batchSize:        *batchSize,
	}

	// Archival needs a bucket; without one audit rows stay in postgres
	// and only sessions are swept.
	if cfg.Storage.S3Bucket != "" {
		s3Client, err := postgres.NewS3Client(cfg.Storage)
		if err != nil {
			logger.WithError(err).Error("failed to initialize S3 client")
			os.Exit(1)
		}
		s.archiver = audit.NewS3Archiver(db, s3Client, cfg.Audit.ArchivePrefix, logger)
	} else {
		logger.Warn("no S3 bucket configured, audit archival disabled")
	}

	if *runOnce {
		ctx := context.Background()
		s.purgeSessions(ctx)
		s.archiveAudit(ctx)
		logger.Info("sweep completed")
		return
	}

	c := cron.New()

	if _, err := c.AddFunc(*sessionSchedule, func() {
		s.purgeSessions(context.Background())
	}); err != nil {
		logger.WithError(err).Error("failed to schedule session purge")
		os.Exit(1)
	}

	if s.archiver != nil {
		if _, err := c.AddFunc(*archiveSchedule, func() {
			s.archiveAudit(context.Background())
		}); err != nil {
			logger.WithError(err).Error("failed to schedule audit archival")
			os.Exit(1)
		}
	}

	c.Start()
	logger.WithFields(map[string]interface{}{
		"session_schedule": *sessionSchedule,
		"archive_schedule": *archiveSchedule,
	}).Info("gather-sweeper started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	<-c.Stop().Done()
	logger.Info("gather-sweeper stopped")
}

func (s *sweeper) purgeSessions(ctx context.Context) {
	// A panicking job must not take the whole sweeper down with it.
	defer observability.RecoverPanic(s.logger, "session purge")

	purged, err := s.sessions.PurgeExpired(ctx, s.sessionRetention)
	if err != nil {
		s.logger.WithError(err).Error("session purge failed")
		return
	}
	s.logger.WithField("purged", purged).Info("session purge completed")
}

func (s *sweeper) archiveAudit(ctx context.Context) {
	defer observability.RecoverPanic(s.logger, "audit archival")

	if s.archiver == nil {
		return
	}
	archived, err := s.archiver.Archive(ctx, s.auditRetention, s.batchSize)
	if err != nil {
		s.logger.WithError(err).Error("audit archival failed")
		return
	}
	s.logger.WithField("archived", archived).Info("audit archival completed")
}
