package service

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"trustlens/internal/repository"
)

// CleanupService barre periodicamente los trabajos cuya ventana de
// retencion vencio: los marca expired y purga el contenido transitorio.
type CleanupService struct {
	logger    *zap.Logger
	jobs      repository.UploadRepository
	store     ContentStore
	interval  time.Duration
	batchSize int
	scheduler gocron.Scheduler
}

func NewCleanupService(logger *zap.Logger, jobs repository.UploadRepository, store ContentStore, interval time.Duration) (*CleanupService, error) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}
	return &CleanupService{
		logger:    logger,
		jobs:      jobs,
		store:     store,
		interval:  interval,
		batchSize: 100,
		scheduler: scheduler,
	}, nil
}

// Start registra el barrido y arranca el scheduler en segundo plano.
func (s *CleanupService) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			defer cancel()
			s.Sweep(ctx)
		}),
		gocron.WithName("retention-sweep"),
	)
	if err != nil {
		return err
	}
	s.scheduler.Start()
	return nil
}

func (s *CleanupService) Stop() error {
	return s.scheduler.Shutdown()
}

// Sweep expira un lote de trabajos vencidos. Expuesto para poder
// invocarlo directo en tests y en el arranque.
func (s *CleanupService) Sweep(ctx context.Context) {
	now := time.Now().UTC()
	expired, err := s.jobs.ListExpired(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("list expired uploads", zap.Error(err))
		return
	}

	var count int
	for _, job := range expired {
		ok, err := s.jobs.Expire(ctx, job.ID)
		if err != nil {
			s.logger.Error("expire upload", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if err := s.store.Purge(ctx, job.ID); err != nil {
			s.logger.Error("purge expired content", zap.String("job_id", job.ID), zap.Error(err))
		}
		if ok {
			count++
		}
	}
	if count > 0 {
		s.logger.Info("retention sweep", zap.Int("expired", count))
	}
}
