package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ApartmentHunter/internal/domain"
	"ApartmentHunter/internal/ports"
)

// Scheduler wires the cron driver with the scan pipeline.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring scans.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the pipeline with the provided scheduler. A store failure
// ends only the cycle it happened in; the next trigger tries again.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		_, err := s.pipeline.RunCycle(ctx)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrScanInProgress):
			s.logger.Info("trigger skipped, scan in progress", "trigger", trigger)
		default:
			s.logger.Error("scheduled scan failed", "trigger", trigger, "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
