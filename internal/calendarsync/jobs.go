package calendarsync

import (
	"context"
	"errors"
	"time"

	"lodging/pkg/logger"
)

// JobProcessor runs SyncAll on a fixed interval.
type JobProcessor struct {
	service Service
	config  *JobConfig
	done    chan struct{}
	stopped chan struct{}
}

// JobConfig contains configuration for the background sync
type JobConfig struct {
	Interval    time.Duration
	RunOnStart  bool
	SyncTimeout time.Duration
}

// DefaultJobConfig returns default job configuration
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		Interval:    15 * time.Minute,
		RunOnStart:  true,
		SyncTimeout: 5 * time.Minute,
	}
}

// NewJobProcessor creates a new job processor
func NewJobProcessor(service Service, config *JobConfig) *JobProcessor {
	if config == nil {
		config = DefaultJobConfig()
	}
	return &JobProcessor{
		service: service,
		config:  config,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start launches the sync loop in the background.
func (jp *JobProcessor) Start(ctx context.Context) {
	logger.GetDefault().Info("Starting calendar sync job", "interval", jp.config.Interval.String())
	go jp.loop(ctx)
}

// Stop signals the loop and waits for an in-flight run to finish.
func (jp *JobProcessor) Stop() {
	close(jp.done)
	<-jp.stopped
	logger.GetDefault().Info("Calendar sync job stopped")
}

func (jp *JobProcessor) loop(ctx context.Context) {
	defer close(jp.stopped)

	ticker := time.NewTicker(jp.config.Interval)
	defer ticker.Stop()

	if jp.config.RunOnStart {
		jp.runOnce(ctx)
	}

	for {
		select {
		case <-ticker.C:
			jp.runOnce(ctx)
		case <-jp.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (jp *JobProcessor) runOnce(ctx context.Context) {
	if jp.config.SyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, jp.config.SyncTimeout)
		defer cancel()
	}

	ctx = logger.ContextWithRequestID(ctx, "calendar-sync-"+time.Now().UTC().Format("20060102T150405"))
	report, err := jp.service.SyncAll(ctx)
	if err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			logger.GetDefault().Debug("Skipping scheduled calendar sync, one is already running")
			return
		}
		logger.GetDefault().WithError(err).ErrorContext(ctx, "Scheduled calendar sync failed")
		return
	}

	logger.GetDefault().InfoContext(ctx, "Scheduled calendar sync finished",
		"status", string(report.Status),
		"sources", len(report.Sources),
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
	)
}
