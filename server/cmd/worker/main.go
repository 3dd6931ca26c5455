package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/analysis"
	"server/internal/credentials"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/queue"
	"server/internal/scheduler"
	"server/internal/storage"
	"server/internal/trimmer"
	"server/internal/upload"
	"server/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer dbPool.Close()
	runner := infra.NewSQLRunner(dbPool, logger)
	jobRepo := repo.NewJobRepository(runner)

	rdb, err := infra.NewRedisClient(ctx, cfg.QueueURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: queue store connection failed")
	}
	defer rdb.Close()

	q := queue.New(rdb, queue.Options{
		MaxWaiting:   cfg.MaxQueueSize,
		LeaseTimeout: cfg.LeaseTimeout,
	})

	fileStore, err := storage.NewFileStore(cfg.TempVideoDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure temp storage")
	}

	pool := credentials.NewPool(cfg.Credentials, credentials.Options{
		PerCredCap: cfg.PerCredCap,
		Cooldown:   time.Duration(cfg.RateLimitCooldownMS) * time.Millisecond,
	})

	analysisClient := analysis.NewClient(analysis.Options{
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
		Logger:     logger,
	})
	uploadClient := upload.NewClient(analysisClient)
	trim := trimmer.NewLocalTrimmer(2 * time.Second)

	schedRun := func(schedCtx context.Context, plan domain.ChunkPlan, fileRefs map[string]string, onProgress func(domain.ParallelProgress)) scheduler.Result {
		return scheduler.Run(schedCtx, pool, analysisClient, plan, scheduler.Options{
			FileRefs:       fileRefs,
			MimeType:       "video/mp4",
			ModelID:        cfg.DefaultModelID,
			MaxConcurrency: cfg.MaxConcurrentChunks,
			OnProgress:     onProgress,
		})
	}

	w := worker.New(q, pool, uploadClient, schedRun, jobRepo, fileStore, trim, logger, worker.Options{
		ChunkTargetMinutes:  cfg.ChunkSizeMinutes,
		MaxConcurrentChunks: cfg.MaxConcurrentChunks,
		ModelID:             cfg.DefaultModelID,
	})

	// Stale-lease reclaim and delayed-retry re-enqueue, run separately from
	// the main lease loop per §4.6's housekeeping-pass invariant.
	go runHousekeeping(ctx, q, logger)

	logger.Info().Msg("worker: started")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func runHousekeeping(ctx context.Context, q *queue.Queue, logger infra.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if moved, err := q.SweepDelayed(ctx); err != nil {
				logger.Warn().Err(err).Msg("worker: sweep delayed failed")
			} else if moved > 0 {
				logger.Info().Int("moved", moved).Msg("worker: delayed jobs re-enqueued")
			}
			if reclaimed, err := q.SweepStaleLeases(ctx); err != nil {
				logger.Warn().Err(err).Msg("worker: sweep stale leases failed")
			} else if reclaimed > 0 {
				logger.Info().Int("reclaimed", reclaimed).Msg("worker: stale leases reclaimed")
			}
			if purged, err := q.CompleteRetention(ctx); err != nil {
				logger.Warn().Err(err).Msg("worker: complete retention failed")
			} else if purged > 0 {
				logger.Info().Int("purged", purged).Msg("worker: succeeded records purged")
			}
		}
	}
}
