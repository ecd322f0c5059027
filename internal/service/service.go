package service

import (
	"context"
	"time"

	"machine_monitor"
	"machine_monitor/internal/kpi"
	"machine_monitor/internal/lock"
	"machine_monitor/internal/logger"
	"machine_monitor/internal/models"
	"machine_monitor/internal/repository"
	"machine_monitor/internal/status"
)

// Tracker mutates the activity log. Every method serializes on the machine lock.
type Tracker interface {
	ProcessSignal(ctx context.Context, sig machine_monitor.Signal) error
	Record(ctx context.Context, obs Observation) error
	MarkOffline(ctx context.Context, req OfflineRequest) error
	Heal(ctx context.Context, machineID string) (int, error)
	HealAll(ctx context.Context) (HealReport, error)
}

// Monitoring exposes read-only views of the activity log.
type Monitoring interface {
	CurrentState(ctx context.Context, machineRef string) (*models.ActivityInterval, error)
	Timeline(ctx context.Context, machineRef string, r TimeRange) ([]models.ActivityInterval, error)
}

// Metrics computes KPIs on point-in-time snapshots. Lock-free.
type Metrics interface {
	MachineOEE(ctx context.Context, machineRef string, r TimeRange) (kpi.Summary, error)
	JobOEE(ctx context.Context, jobID string) (kpi.JobMetrics, error)
	Downtime(ctx context.Context, machineRef string, r TimeRange) ([]models.DowntimeBucket, error)
	Utilization(ctx context.Context, machineRef string, r TimeRange, scope string) (kpi.UtilizationResult, error)
}

// Sweeper marks silent machines offline in the background.
// Stop via context cancellation in main() for graceful shutdown.
type Sweeper interface {
	Run(ctx context.Context, tick time.Duration)
}

// Options carries the timing knobs from configuration.
type Options struct {
	LockLease    time.Duration
	LockWait     time.Duration
	OfflineAfter time.Duration
	Now          func() time.Time // defaults to time.Now
}

func (o Options) clock() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}

type Service struct {
	Tracker
	Monitoring
	Metrics
	Sweeper
}

func NewService(repos *repository.Repository, locker lock.Locker, resolver *status.Resolver, opts Options, log *logger.Logger) *Service {
	tracker := NewTrackerService(repos, locker, resolver, opts, log)
	return &Service{
		Tracker:    tracker,
		Monitoring: NewMonitoringService(repos, opts),
		Metrics:    NewMetricsService(repos, resolver, opts),
		Sweeper:    NewSweeperService(repos.Activity, tracker, opts, log),
	}
}
