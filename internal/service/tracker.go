package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"machine_monitor"
	"machine_monitor/internal/lock"
	"machine_monitor/internal/logger"
	"machine_monitor/internal/models"
	"machine_monitor/internal/observability"
	"machine_monitor/internal/repository"
	"machine_monitor/internal/status"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const persistAttempts = 2

// OfflineRequest asks to mark a machine offline. NotSeenSince defaults to At:
// the request is skipped when the machine showed activity after that instant.
type OfflineRequest struct {
	MachineID    string    `json:"-"`
	At           time.Time `json:"at"`
	NotSeenSince time.Time `json:"not_seen_since"`
	Source       string    `json:"source"`
}

// HealReport summarizes a batch self-heal run.
type HealReport struct {
	Machines int `json:"machines"`
	Closed   int `json:"closed"`
}

// TrackerService is the only writer of activity intervals.
type TrackerService struct {
	activity repository.ActivityRepo
	machines repository.MachineRepo
	jobs     repository.JobRepo
	locker   lock.Locker
	resolver *status.Resolver
	lease    time.Duration
	wait     time.Duration
	now      func() time.Time
	log      *logger.Logger
}

func NewTrackerService(repos *repository.Repository, locker lock.Locker, resolver *status.Resolver, opts Options, log *logger.Logger) *TrackerService {
	return &TrackerService{
		activity: repos.Activity,
		machines: repos.Machines,
		jobs:     repos.Jobs,
		locker:   locker,
		resolver: resolver,
		lease:    opts.LockLease,
		wait:     opts.LockWait,
		now:      opts.clock(),
		log:      log.Named("tracker"),
	}
}

// ProcessSignal resolves machine, status and job for a raw signal and records it.
func (s *TrackerService) ProcessSignal(ctx context.Context, sig machine_monitor.Signal) error {
	m, err := s.resolveMachine(ctx, sig.Machine)
	if err != nil {
		return err
	}

	ts := sig.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	ts = ts.UTC()

	res := s.resolver.Resolve(ctx, m.ID, sig.Bits, sig.Type)

	jobID := strings.TrimSpace(sig.JobID)
	if jobID == "" {
		job, err := s.jobs.Active(ctx, m.ID, ts)
		switch {
		case err == nil:
			jobID = job.ID
		case !errors.Is(err, repository.ErrNotFound):
			s.log.Warnw("active_job_lookup_failed", "machine_id", m.ID, "err", err)
		}
	}

	reason := strings.TrimSpace(sig.Reason)
	if s.resolver.IsRunning(res.Status) {
		reason = ""
	}

	observability.RecordSignal(ts)
	return s.Record(ctx, Observation{
		MachineID:  m.ID,
		CustomerID: m.CustomerID,
		Status:     res.Status,
		Color:      res.Color,
		Reason:     reason,
		JobID:      jobID,
		Timestamp:  ts,
		Source:     sig.Source,
	})
}

// MarkOffline opens an Offline interval unless the machine was seen after NotSeenSince.
func (s *TrackerService) MarkOffline(ctx context.Context, req OfflineRequest) error {
	m, err := s.resolveMachine(ctx, req.MachineID)
	if err != nil {
		return err
	}
	at := req.At
	if at.IsZero() {
		at = s.now()
	}
	notSeenSince := req.NotSeenSince
	if notSeenSince.IsZero() {
		notSeenSince = at
	}
	source := req.Source
	if source == "" {
		source = "offline"
	}

	return s.Record(ctx, Observation{
		MachineID:    m.ID,
		CustomerID:   m.CustomerID,
		Status:       models.StatusOffline,
		Color:        s.resolver.OfflineColor(),
		Timestamp:    at.UTC(),
		Source:       source,
		notSeenSince: notSeenSince.UTC(),
	})
}

// Record applies one observation under the machine lock. A lock timeout is not an
// error: the unit of work is dropped and the next signal re-evaluates.
func (s *TrackerService) Record(ctx context.Context, obs Observation) error {
	h, ok, err := s.acquire(ctx, obs.MachineID)
	if err != nil || !ok {
		return err
	}
	defer h.Release()
	defer observability.ObserveTransition(time.Now())

	// past this point the write runs to completion
	wctx := context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if attempt > 1 {
			observability.RecordPersistRetry()
			s.log.Warnw("transition_retry", "machine_id", obs.MachineID, "err", lastErr)
		}

		open, err := s.activity.ListOpen(wctx, obs.MachineID)
		if err != nil {
			lastErr = err
			continue
		}

		p := planTransition(open, obs)
		tr, err := s.buildTransition(obs, p)
		if err != nil {
			return err
		}
		if err := s.activity.ApplyTransition(wctx, tr); err != nil {
			lastErr = err
			continue
		}

		s.afterCommit(wctx, obs, p, tr)
		return nil
	}

	observability.RecordPersistFailure()
	s.log.Errorw("transition_failed", "machine_id", obs.MachineID, "status", obs.Status, "err", lastErr)
	return fmt.Errorf("%w: machine %s: %v", ErrPersist, obs.MachineID, lastErr)
}

// acquire returns ok=false when the lock wait ran out.
func (s *TrackerService) acquire(ctx context.Context, machineID string) (lock.Handle, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	h, err := s.locker.Acquire(ctx, lock.MachineKey(machineID), s.lease, s.wait)
	if errors.Is(err, lock.ErrNotAcquired) {
		observability.RecordLockTimeout()
		s.log.Warnw("transition_skipped_lock", "machine_id", machineID, "wait", s.wait)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		h.Release()
		return nil, false, err
	}
	return h, true, nil
}

func (s *TrackerService) buildTransition(obs Observation, p plan) (models.Transition, error) {
	tr := models.Transition{MachineID: obs.MachineID, Closes: p.closes}
	now := s.now().UTC()

	if p.replaced != nil {
		closed := *p.replaced
		end := p.closes[len(p.closes)-1].End
		closed.End = &end
		ev, err := newOutboxEvent(machine_monitor.EventIntervalClosed, closed, now)
		if err != nil {
			return models.Transition{}, err
		}
		tr.Events = append(tr.Events, ev)
	}

	if p.open {
		iv := &models.ActivityInterval{
			ID:             uuid.NewString(),
			MachineID:      obs.MachineID,
			CustomerID:     obs.CustomerID,
			JobID:          obs.JobID,
			Status:         obs.Status,
			Color:          obs.Color,
			Reason:         obs.Reason,
			Start:          p.openAt,
			LastUpdateTime: p.openAt,
			Source:         obs.Source,
		}
		tr.Open = iv
		ev, err := newOutboxEvent(machine_monitor.EventIntervalOpened, *iv, now)
		if err != nil {
			return models.Transition{}, err
		}
		tr.Events = append(tr.Events, ev)
	}
	return tr, nil
}

func newOutboxEvent(typ string, iv models.ActivityInterval, occurredAt time.Time) (models.OutboxEvent, error) {
	ev := machine_monitor.IntervalEvent{
		EventID:    uuid.NewString(),
		Type:       typ,
		IntervalID: iv.ID,
		MachineID:  iv.MachineID,
		CustomerID: iv.CustomerID,
		JobID:      iv.JobID,
		Status:     iv.Status,
		Color:      iv.Color,
		Reason:     iv.Reason,
		Start:      iv.Start,
		End:        iv.End,
		OccurredAt: occurredAt,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("encode %s event: %w", typ, err)
	}
	return models.OutboxEvent{
		EventID:   ev.EventID,
		MachineID: iv.MachineID,
		Type:      typ,
		Payload:   payload,
		CreatedAt: occurredAt,
	}, nil
}

func (s *TrackerService) afterCommit(ctx context.Context, obs Observation, p plan, tr models.Transition) {
	observability.RecordTransition(p.action)

	if len(p.healed) > 0 {
		observability.RecordHealed(len(p.healed))
		ids := make([]string, len(p.healed))
		for i, iv := range p.healed {
			ids[i] = iv.ID
		}
		s.log.Warnw("open_intervals_healed", "machine_id", obs.MachineID, "closed", ids)
	}

	switch p.action {
	case observability.ActionOpened, observability.ActionReplaced:
		s.log.Infow("interval_opened",
			"machine_id", obs.MachineID, "status", obs.Status, "interval_id", tr.Open.ID, "at", p.openAt)
	case observability.ActionStale:
		s.log.Debugw("observation_stale", "machine_id", obs.MachineID, "status", obs.Status, "at", obs.Timestamp)
	case observability.ActionSkipped:
		s.log.Debugw("offline_skipped_recent_activity", "machine_id", obs.MachineID)
	}

	if p.touchID != "" {
		if err := s.activity.Touch(ctx, p.touchID, obs.Timestamp); err != nil {
			s.log.Warnw("touch_failed", "machine_id", obs.MachineID, "interval_id", p.touchID, "err", err)
		}
	}
}

// Heal closes all but the current open interval of one machine. Extras end at the
// survivor's start. Returns the number of rows closed.
func (s *TrackerService) Heal(ctx context.Context, machineID string) (int, error) {
	h, ok, err := s.acquire(ctx, machineID)
	if err != nil || !ok {
		return 0, err
	}
	defer h.Release()

	wctx := context.WithoutCancel(ctx)
	open, err := s.activity.ListOpen(wctx, machineID)
	if err != nil {
		return 0, err
	}
	survivor, extras := pickSurvivor(open)
	if len(extras) == 0 {
		return 0, nil
	}

	tr := models.Transition{MachineID: machineID}
	for _, iv := range extras {
		tr.Closes = append(tr.Closes, models.Closure{IntervalID: iv.ID, End: notBefore(survivor.Start, iv.Start)})
	}
	if err := s.activity.ApplyTransition(wctx, tr); err != nil {
		return 0, fmt.Errorf("%w: heal machine %s: %v", ErrPersist, machineID, err)
	}

	observability.RecordHealed(len(extras))
	s.log.Warnw("open_intervals_healed", "machine_id", machineID, "closed", len(extras), "survivor", survivor.ID)
	return len(extras), nil
}

// HealAll runs Heal for every machine with more than one open interval.
func (s *TrackerService) HealAll(ctx context.Context) (HealReport, error) {
	ids, err := s.activity.MachinesWithMultipleOpen(ctx)
	if err != nil {
		return HealReport{}, err
	}

	var (
		report HealReport
		errs   []error
	)
	for _, id := range ids {
		n, err := s.Heal(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if n > 0 {
			report.Machines++
			report.Closed += n
		}
	}
	return report, errors.Join(errs...)
}

func (s *TrackerService) resolveMachine(ctx context.Context, ref string) (models.Machine, error) {
	m, err := s.machines.Resolve(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Machine{}, fmt.Errorf("%w: %q", ErrUnknownMachine, ref)
	}
	return m, err
}
