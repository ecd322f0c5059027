package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"machine_monitor/internal/config"
	"machine_monitor/internal/logger"
	"machine_monitor/internal/models"
	"machine_monitor/internal/repository"

	"github.com/stretchr/testify/require"
)

type stubSource struct {
	configs map[string]models.StatusConfig
	err     error
	calls   int
}

func (s *stubSource) Get(_ context.Context, machineID string) (models.StatusConfig, error) {
	s.calls++
	if s.err != nil {
		return models.StatusConfig{}, s.err
	}
	cfg, ok := s.configs[machineID]
	if !ok {
		return models.StatusConfig{}, repository.ErrNotFound
	}
	return cfg, nil
}

func u32(v uint32) *uint32 { return &v }

func testSettings() config.StatusConfig {
	return config.StatusConfig{
		Running:      []string{models.StatusRunning},
		Downtime:     []string{models.StatusDown},
		UnknownColor: "#9E9E9E",
		OfflineColor: "#616161",
		DefaultMappings: []models.StatusMapping{
			{Type: "running", Status: models.StatusRunning, Color: "#4CAF50"},
			{Type: "idle", Status: models.StatusIdle, Color: "#FFC107"},
		},
	}
}

func TestResolve_MachineMappings(t *testing.T) {
	src := &stubSource{configs: map[string]models.StatusConfig{
		"m-1": {MachineID: "m-1", Mappings: []models.StatusMapping{
			{Mask: 0b0100, Status: models.StatusDown, Color: "#F44336"},
			{Mask: 0b0001, Status: models.StatusRunning, Color: "#4CAF50"},
			{Type: "fault", Status: models.StatusDown, Color: "#F44336"},
		}},
	}}
	r := NewResolver(src, testSettings(), time.Minute, logger.Nop())

	tests := []struct {
		name string
		bits *uint32
		typ  string
		want Resolution
	}{
		{"mask bit set", u32(0b0001), "", Resolution{models.StatusRunning, "#4CAF50"}},
		{"first mapping wins", u32(0b0101), "", Resolution{models.StatusDown, "#F44336"}},
		{"type case-insensitive", nil, "FAULT", Resolution{models.StatusDown, "#F44336"}},
		{"no bit matches", u32(0b1000), "", Resolution{models.StatusUnknown, "#9E9E9E"}},
		{"empty signal", nil, "", Resolution{models.StatusUnknown, "#9E9E9E"}},
		{"unknown type", nil, "warp-drive", Resolution{models.StatusUnknown, "#9E9E9E"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(context.Background(), "m-1", tt.bits, tt.typ)
			require.Equal(t, tt.want, got)
		})
	}
	require.Equal(t, 1, src.calls, "mapping table is cached")
}

func TestResolve_FallsBackToDefaults(t *testing.T) {
	src := &stubSource{configs: map[string]models.StatusConfig{}}
	r := NewResolver(src, testSettings(), time.Minute, logger.Nop())

	got := r.Resolve(context.Background(), "m-9", nil, "idle")
	require.Equal(t, Resolution{models.StatusIdle, "#FFC107"}, got)
}

func TestResolve_LookupErrorIsNotCached(t *testing.T) {
	src := &stubSource{err: errors.New("db down")}
	r := NewResolver(src, testSettings(), time.Minute, logger.Nop())

	got := r.Resolve(context.Background(), "m-1", nil, "running")
	require.Equal(t, models.StatusRunning, got.Status)

	r.Resolve(context.Background(), "m-1", nil, "running")
	require.Equal(t, 2, src.calls)
}

func TestApply_ReloadsClassification(t *testing.T) {
	r := NewResolver(&stubSource{}, testSettings(), time.Minute, logger.Nop())
	require.True(t, r.IsRunning(models.StatusRunning))
	require.False(t, r.IsDowntime(models.StatusIdle))

	next := testSettings()
	next.Downtime = []string{models.StatusDown, models.StatusIdle}
	next.UnknownColor = "#000000"
	r.Apply(next)

	require.True(t, r.IsDowntime(models.StatusIdle))
	require.Equal(t, "#000000", r.UnknownColor())
	require.ElementsMatch(t, []string{models.StatusDown, models.StatusIdle}, r.Downtime())
}
