package service

import (
	"sort"
	"time"

	"machine_monitor/internal/models"
	"machine_monitor/internal/observability"
)

// Observation is one state reading for a machine, already resolved to a canonical status.
type Observation struct {
	MachineID  string
	CustomerID string
	Status     string
	Color      string
	Reason     string
	JobID      string
	Timestamp  time.Time
	Source     string

	// set by MarkOffline: skip when the machine was active after this instant
	notSeenSince time.Time
}

// plan is the decision for one observation. It carries no ids or events yet.
type plan struct {
	action   string
	closes   []models.Closure
	healed   []models.ActivityInterval
	replaced *models.ActivityInterval
	openAt   time.Time
	open     bool
	touchID  string
}

// planTransition decides what one observation does to the machine's open set.
// open may contain more than one row; extras are closed at the observation time
// (never before their own start) and the latest-started row is treated as current.
func planTransition(open []models.ActivityInterval, obs Observation) plan {
	ts := obs.Timestamp
	p := plan{action: observability.ActionNoop}

	survivor, extras := pickSurvivor(open)
	for _, iv := range extras {
		p.closes = append(p.closes, models.Closure{IntervalID: iv.ID, End: notBefore(ts, iv.Start)})
		p.healed = append(p.healed, iv)
	}

	if survivor == nil {
		p.action = observability.ActionOpened
		p.open, p.openAt = true, ts
		return p
	}

	if obs.Status == models.StatusOffline && !obs.notSeenSince.IsZero() &&
		survivor.Status != models.StatusOffline && lastActivity(*survivor).After(obs.notSeenSince) {
		p.action = observability.ActionSkipped
		return p
	}

	if survivor.Status == obs.Status {
		p.touchID = survivor.ID
		return p
	}

	if survivor.Status == models.StatusOffline {
		// a real signal always ends offline; one older than the offline mark
		// starts at the mark, since the row before it already ends there
		at := notBefore(ts, survivor.Start)
		p.closes = append(p.closes, models.Closure{IntervalID: survivor.ID, End: at})
		p.replaced = survivor
		p.action = observability.ActionReplaced
		p.open, p.openAt = true, at
		return p
	}

	if ts.Before(survivor.Start) {
		p.action = observability.ActionStale
		return p
	}

	p.closes = append(p.closes, models.Closure{IntervalID: survivor.ID, End: ts})
	p.replaced = survivor
	p.action = observability.ActionReplaced
	p.open, p.openAt = true, ts
	return p
}

// pickSurvivor returns the most recently started open interval and the rest.
// Ties go to the later last_update_time, then the larger id.
func pickSurvivor(open []models.ActivityInterval) (*models.ActivityInterval, []models.ActivityInterval) {
	if len(open) == 0 {
		return nil, nil
	}
	sorted := append([]models.ActivityInterval(nil), open...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.After(b.Start)
		}
		if !a.LastUpdateTime.Equal(b.LastUpdateTime) {
			return a.LastUpdateTime.After(b.LastUpdateTime)
		}
		return a.ID > b.ID
	})
	survivor := sorted[0]
	return &survivor, sorted[1:]
}

func lastActivity(iv models.ActivityInterval) time.Time {
	if iv.LastUpdateTime.After(iv.Start) {
		return iv.LastUpdateTime
	}
	return iv.Start
}

func notBefore(t, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}
