package service

import (
	"context"
	"time"

	"machine_monitor/internal/logger"
	"machine_monitor/internal/models"
	"machine_monitor/internal/repository"
)

const sweeperSource = "offline-sweeper"

// SweeperService marks machines offline once their open interval has not been
// touched for the configured silence period.
type SweeperService struct {
	activity repository.ActivityRepo
	tracker  *TrackerService
	after    time.Duration
	now      func() time.Time
	log      *logger.Logger
}

func NewSweeperService(activity repository.ActivityRepo, tracker *TrackerService, opts Options, log *logger.Logger) *SweeperService {
	return &SweeperService{
		activity: activity,
		tracker:  tracker,
		after:    opts.OfflineAfter,
		now:      opts.clock(),
		log:      log.Named("sweeper"),
	}
}

// Run ticks at the given interval until ctx is canceled.
func (s *SweeperService) Run(ctx context.Context, tick time.Duration) {
	if s.after <= 0 || tick <= 0 {
		return
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Warnw("offline_sweep_failed", "err", err)
			}
		}
	}
}

// Sweep marks every silent machine offline from its last sign of activity and
// returns how many machines were asked. The tracker re-checks activity under the
// lock, so a signal that lands between the query and the lock wins.
func (s *SweeperService) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	silentSince := now.Add(-s.after)

	stale, err := s.activity.ListStaleOpen(ctx, silentSince, models.StatusOffline)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(stale))
	for _, iv := range stale {
		if _, dup := seen[iv.MachineID]; dup {
			continue
		}
		seen[iv.MachineID] = struct{}{}

		err := s.tracker.MarkOffline(ctx, OfflineRequest{
			MachineID:    iv.MachineID,
			At:           lastActivity(iv),
			NotSeenSince: silentSince,
			Source:       sweeperSource,
		})
		if err != nil {
			if ctx.Err() != nil {
				return len(seen), ctx.Err()
			}
			s.log.Warnw("mark_offline_failed", "machine_id", iv.MachineID, "err", err)
		}
	}
	return len(seen), nil
}
