package service

import (
	"context"
	"errors"
	"time"

	"machine_monitor/internal/kpi"
	"machine_monitor/internal/models"
	"machine_monitor/internal/repository"
	"machine_monitor/internal/status"
)

// Utilization scopes.
const (
	ScopeAll       = "all"
	ScopeCompleted = "completed"
)

type MetricsService struct {
	activity repository.ActivityRepo
	jobs     repository.JobRepo
	machines repository.MachineRepo
	resolver *status.Resolver
	now      func() time.Time
}

func NewMetricsService(repos *repository.Repository, resolver *status.Resolver, opts Options) *MetricsService {
	return &MetricsService{
		activity: repos.Activity,
		jobs:     repos.Jobs,
		machines: repos.Machines,
		resolver: resolver,
		now:      opts.clock(),
	}
}

// MachineOEE aggregates every non-cancelled job overlapping the window,
// weighted by planned time.
func (s *MetricsService) MachineOEE(ctx context.Context, machineRef string, r TimeRange) (kpi.Summary, error) {
	now := s.now()
	r, err := r.normalize(now)
	if err != nil {
		return kpi.Summary{}, err
	}
	m, err := lookupMachine(ctx, s.machines, machineRef)
	if err != nil {
		return kpi.Summary{}, err
	}

	jobs, err := s.jobs.ListOverlapping(ctx, m.ID, r.From, r.To)
	if err != nil {
		return kpi.Summary{}, err
	}
	jobs = withoutCancelled(jobs)
	if len(jobs) == 0 {
		return kpi.Aggregate(nil), nil
	}

	from, to := jobs[0].PlannedStart, jobs[0].PlannedEnd
	for _, j := range jobs[1:] {
		if j.PlannedStart.Before(from) {
			from = j.PlannedStart
		}
		if j.PlannedEnd.After(to) {
			to = j.PlannedEnd
		}
	}
	downtime, err := s.activity.ListRange(ctx, m.ID, from, to, s.resolver.Downtime())
	if err != nil {
		return kpi.Summary{}, err
	}

	perJob := make([]kpi.JobMetrics, 0, len(jobs))
	for _, j := range jobs {
		j.Downtime = overlapping(downtime, j.PlannedStart, j.PlannedEnd, now)
		perJob = append(perJob, kpi.JobOEE(j, now))
	}
	return kpi.Aggregate(perJob), nil
}

func (s *MetricsService) JobOEE(ctx context.Context, jobID string) (kpi.JobMetrics, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		return kpi.JobMetrics{}, ErrJobNotFound
	}
	if err != nil {
		return kpi.JobMetrics{}, err
	}

	now := s.now()
	if job.PlannedEnd.After(job.PlannedStart) {
		job.Downtime, err = s.activity.ListRange(ctx, job.MachineID, job.PlannedStart, job.PlannedEnd, s.resolver.Downtime())
		if err != nil {
			return kpi.JobMetrics{}, err
		}
	}
	return kpi.JobOEE(job, now), nil
}

func (s *MetricsService) Downtime(ctx context.Context, machineRef string, r TimeRange) ([]models.DowntimeBucket, error) {
	now := s.now()
	r, err := r.normalize(now)
	if err != nil {
		return nil, err
	}
	m, err := lookupMachine(ctx, s.machines, machineRef)
	if err != nil {
		return nil, err
	}
	rows, err := s.activity.ListRange(ctx, m.ID, r.From, r.To, s.resolver.Downtime())
	if err != nil {
		return nil, err
	}
	return kpi.DowntimeBuckets(rows, r.From, r.To, now), nil
}

// Utilization with scope "all" counts every running interval; "completed" only
// running time inside completed jobs.
func (s *MetricsService) Utilization(ctx context.Context, machineRef string, r TimeRange, scope string) (kpi.UtilizationResult, error) {
	if scope == "" {
		scope = ScopeAll
	}
	if scope != ScopeAll && scope != ScopeCompleted {
		return kpi.UtilizationResult{}, ErrInvalidScope
	}

	now := s.now()
	r, err := r.normalize(now)
	if err != nil {
		return kpi.UtilizationResult{}, err
	}
	m, err := lookupMachine(ctx, s.machines, machineRef)
	if err != nil {
		return kpi.UtilizationResult{}, err
	}
	rows, err := s.activity.ListRange(ctx, m.ID, r.From, r.To, s.resolver.Running())
	if err != nil {
		return kpi.UtilizationResult{}, err
	}

	if scope == ScopeAll {
		return kpi.Utilization(rows, s.resolver.IsRunning, r.From, r.To, now), nil
	}
	jobs, err := s.jobs.ListOverlapping(ctx, m.ID, r.From, r.To)
	if err != nil {
		return kpi.UtilizationResult{}, err
	}
	return kpi.UtilizationForCompletedJobs(rows, jobs, s.resolver.IsRunning, r.From, r.To, now), nil
}

func withoutCancelled(jobs []models.MachineJob) []models.MachineJob {
	out := jobs[:0]
	for _, j := range jobs {
		if j.Status != models.JobCancelled {
			out = append(out, j)
		}
	}
	return out
}

// overlapping returns the rows that intersect [from, to].
func overlapping(rows []models.ActivityInterval, from, to, now time.Time) []models.ActivityInterval {
	var out []models.ActivityInterval
	for _, iv := range rows {
		if iv.Start.Before(to) && iv.EndOr(now).After(from) {
			out = append(out, iv)
		}
	}
	return out
}
