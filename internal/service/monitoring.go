package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"machine_monitor/internal/intervals"
	"machine_monitor/internal/models"
	"machine_monitor/internal/repository"
)

const defaultRange = 24 * time.Hour

// TimeRange is a reporting window. Zero To means now; zero From means To minus 24h.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// normalize fills defaults, converts to UTC and validates order.
func (r TimeRange) normalize(now time.Time) (TimeRange, error) {
	out := TimeRange{From: toUTC(r.From), To: toUTC(r.To)}
	if out.To.IsZero() {
		out.To = now.UTC()
	}
	if out.From.IsZero() {
		out.From = out.To.Add(-defaultRange)
	}
	if out.From.After(out.To) {
		return TimeRange{}, ErrInvalidTimeRange
	}
	return out, nil
}

type MonitoringService struct {
	activity repository.ActivityRepo
	machines repository.MachineRepo
	now      func() time.Time
}

func NewMonitoringService(repos *repository.Repository, opts Options) *MonitoringService {
	return &MonitoringService{
		activity: repos.Activity,
		machines: repos.Machines,
		now:      opts.clock(),
	}
}

// CurrentState returns the open interval, or nil when the machine has none.
// With more than one open row the one a transition would keep is returned.
func (s *MonitoringService) CurrentState(ctx context.Context, machineRef string) (*models.ActivityInterval, error) {
	m, err := lookupMachine(ctx, s.machines, machineRef)
	if err != nil {
		return nil, err
	}
	open, err := s.activity.ListOpen(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	current, _ := pickSurvivor(open)
	return current, nil
}

// Timeline returns deduplicated intervals clamped to the window.
func (s *MonitoringService) Timeline(ctx context.Context, machineRef string, r TimeRange) ([]models.ActivityInterval, error) {
	now := s.now()
	r, err := r.normalize(now)
	if err != nil {
		return nil, err
	}
	m, err := lookupMachine(ctx, s.machines, machineRef)
	if err != nil {
		return nil, err
	}
	rows, err := s.activity.ListRange(ctx, m.ID, r.From, r.To, nil)
	if err != nil {
		return nil, err
	}
	return intervals.Window(rows, r.From, r.To, now), nil
}

func lookupMachine(ctx context.Context, machines repository.MachineRepo, ref string) (models.Machine, error) {
	m, err := machines.Resolve(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Machine{}, fmt.Errorf("%w: %q", ErrUnknownMachine, ref)
	}
	return m, err
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
