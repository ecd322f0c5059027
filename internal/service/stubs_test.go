package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"machine_monitor/internal/config"
	"machine_monitor/internal/lock"
	"machine_monitor/internal/logger"
	"machine_monitor/internal/models"
	"machine_monitor/internal/repository"
	"machine_monitor/internal/status"
)

var t0 = time.Date(2024, 1, 6, 8, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// memActivity is an in-memory ActivityRepo with the same atomicity and conflict
// rules as the SQL implementation.
type memActivity struct {
	mu         sync.Mutex
	rows       map[string]models.ActivityInterval
	outbox     []models.OutboxEvent
	applyErrs  []error // consumed one per ApplyTransition call
	applyCalls int
	touched    map[string]time.Time
}

func newMemActivity(seed ...models.ActivityInterval) *memActivity {
	m := &memActivity{rows: make(map[string]models.ActivityInterval), touched: make(map[string]time.Time)}
	for _, iv := range seed {
		m.rows[iv.ID] = iv
	}
	return m
}

func (m *memActivity) ListOpen(_ context.Context, machineID string) ([]models.ActivityInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ActivityInterval
	for _, iv := range m.rows {
		if iv.MachineID == machineID && iv.IsOpen() {
			out = append(out, iv)
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *memActivity) ApplyTransition(_ context.Context, t models.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	if len(m.applyErrs) > 0 {
		err := m.applyErrs[0]
		m.applyErrs = m.applyErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, c := range t.Closes {
		iv, ok := m.rows[c.IntervalID]
		if !ok || !iv.IsOpen() {
			return repository.ErrConflict
		}
	}
	for _, c := range t.Closes {
		iv := m.rows[c.IntervalID]
		end := c.End
		iv.End = &end
		iv.LastUpdateTime = end
		m.rows[c.IntervalID] = iv
	}
	if t.Open != nil {
		m.rows[t.Open.ID] = *t.Open
	}
	m.outbox = append(m.outbox, t.Events...)
	return nil
}

func (m *memActivity) Touch(_ context.Context, intervalID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	iv, ok := m.rows[intervalID]
	if ok && iv.IsOpen() && at.After(iv.LastUpdateTime) {
		iv.LastUpdateTime = at
		m.rows[intervalID] = iv
		m.touched[intervalID] = at
	}
	return nil
}

func (m *memActivity) ListRange(_ context.Context, machineID string, from, to time.Time, statuses []string) ([]models.ActivityInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	allowed := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}
	var out []models.ActivityInterval
	for _, iv := range m.rows {
		if iv.MachineID != machineID {
			continue
		}
		if len(statuses) > 0 && !allowed[iv.Status] {
			continue
		}
		if !to.IsZero() && iv.Start.After(to) {
			continue
		}
		if !from.IsZero() && iv.End != nil && iv.End.Before(from) {
			continue
		}
		out = append(out, iv)
	}
	sortByStart(out)
	return out, nil
}

func (m *memActivity) MachinesWithMultipleOpen(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, iv := range m.rows {
		if iv.IsOpen() {
			counts[iv.MachineID]++
		}
	}
	var ids []string
	for id, n := range counts {
		if n > 1 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memActivity) ListStaleOpen(_ context.Context, before time.Time, skipStatus string) ([]models.ActivityInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ActivityInterval
	for _, iv := range m.rows {
		if iv.IsOpen() && iv.Status != skipStatus && iv.LastUpdateTime.Before(before) {
			out = append(out, iv)
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *memActivity) open(machineID string) []models.ActivityInterval {
	out, _ := m.ListOpen(context.Background(), machineID)
	return out
}

func (m *memActivity) all(machineID string) []models.ActivityInterval {
	out, _ := m.ListRange(context.Background(), machineID, time.Time{}, time.Time{}, nil)
	return out
}

func (m *memActivity) events() []models.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OutboxEvent(nil), m.outbox...)
}

func sortByStart(ivs []models.ActivityInterval) {
	sort.Slice(ivs, func(i, j int) bool {
		if !ivs[i].Start.Equal(ivs[j].Start) {
			return ivs[i].Start.Before(ivs[j].Start)
		}
		return ivs[i].ID < ivs[j].ID
	})
}

type stubMachines struct {
	machines []models.Machine
}

func (s *stubMachines) Resolve(_ context.Context, ref string) (models.Machine, error) {
	for _, m := range s.machines {
		if m.ID == ref || m.Name == ref {
			return m, nil
		}
	}
	return models.Machine{}, repository.ErrNotFound
}

func (s *stubMachines) List(_ context.Context) ([]models.Machine, error) {
	return s.machines, nil
}

type stubJobs struct {
	jobs []models.MachineJob
}

func (s *stubJobs) Active(_ context.Context, machineID string, at time.Time) (models.MachineJob, error) {
	for _, j := range s.jobs {
		if j.MachineID == machineID && j.Status == models.JobRunning && !j.PlannedStart.After(at) {
			return j, nil
		}
	}
	return models.MachineJob{}, repository.ErrNotFound
}

func (s *stubJobs) ListOverlapping(_ context.Context, machineID string, from, to time.Time) ([]models.MachineJob, error) {
	var out []models.MachineJob
	for _, j := range s.jobs {
		if j.MachineID == machineID && j.PlannedStart.Before(to) && j.PlannedEnd.After(from) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *stubJobs) Get(_ context.Context, id string) (models.MachineJob, error) {
	for _, j := range s.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return models.MachineJob{}, repository.ErrNotFound
}

type stubStatusConfigs struct{}

func (stubStatusConfigs) Get(_ context.Context, machineID string) (models.StatusConfig, error) {
	return models.StatusConfig{}, repository.ErrNotFound
}

// stubLocker always times out.
type stubLocker struct{ calls int }

func (l *stubLocker) Acquire(context.Context, string, time.Duration, time.Duration) (lock.Handle, error) {
	l.calls++
	return nil, lock.ErrNotAcquired
}

func testStatusSettings() config.StatusConfig {
	return config.StatusConfig{
		Running:      []string{models.StatusRunning},
		Downtime:     []string{models.StatusDown},
		UnknownColor: "#9E9E9E",
		OfflineColor: "#616161",
		DefaultMappings: []models.StatusMapping{
			{Type: "running", Status: models.StatusRunning, Color: "#4CAF50"},
			{Type: "idle", Status: models.StatusIdle, Color: "#FFC107"},
			{Type: "fault", Status: models.StatusDown, Color: "#F44336"},
			{Mask: 0b1, Status: models.StatusRunning, Color: "#4CAF50"},
		},
	}
}

type fixture struct {
	activity *memActivity
	machines *stubMachines
	jobs     *stubJobs
	repos    *repository.Repository
	resolver *status.Resolver
	tracker  *TrackerService
}

func newFixture(now time.Time, seed ...models.ActivityInterval) *fixture {
	f := &fixture{
		activity: newMemActivity(seed...),
		machines: &stubMachines{machines: []models.Machine{
			{ID: "m-1", Name: "press-1", CustomerID: "c-1"},
			{ID: "m-2", Name: "press-2", CustomerID: "c-1"},
		}},
		jobs: &stubJobs{},
	}
	f.repos = &repository.Repository{
		Activity:      f.activity,
		Jobs:          f.jobs,
		Machines:      f.machines,
		StatusConfigs: stubStatusConfigs{},
	}
	f.resolver = status.NewResolver(stubStatusConfigs{}, testStatusSettings(), time.Minute, logger.Nop())
	f.tracker = NewTrackerService(f.repos, lock.NewMapLocker(), f.resolver, f.options(now), logger.Nop())
	return f
}

func (f *fixture) options(now time.Time) Options {
	return Options{
		LockLease:    5 * time.Second,
		LockWait:     5 * time.Second,
		OfflineAfter: 5 * time.Minute,
		Now:          fixedClock(now),
	}
}

func obs(status string, at time.Time) Observation {
	return Observation{
		MachineID:  "m-1",
		CustomerID: "c-1",
		Status:     status,
		Color:      "#000",
		Timestamp:  at,
		Source:     "plc",
	}
}

func openRow(id, status string, start, lastUpdate time.Time) models.ActivityInterval {
	return models.ActivityInterval{
		ID:             id,
		MachineID:      "m-1",
		CustomerID:     "c-1",
		Status:         status,
		Start:          start,
		LastUpdateTime: lastUpdate,
		Source:         "plc",
	}
}
