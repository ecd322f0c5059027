package kpi

import (
	"testing"
	"time"

	"machine_monitor/internal/models"

	"github.com/stretchr/testify/require"
)

func isRunning(s string) bool { return s == models.StatusRunning }

func run(id string, fromMin, toMin int) models.ActivityInterval {
	iv := down(id, fromMin, toMin, "")
	iv.Status = models.StatusRunning
	return iv
}

func TestUtilization(t *testing.T) {
	log := []models.ActivityInterval{
		run("a", 0, 30),
		down("b", 30, 40, "jam"),
		run("c", 40, 70),
	}
	res := Utilization(log, isRunning, t0, t0.Add(time.Hour), t0.Add(2*time.Hour))

	require.Equal(t, 3600.0, res.PeriodSeconds)
	require.Equal(t, 3000.0, res.RunningSeconds)
	require.Equal(t, 83.33, res.Percent)
}

func TestUtilization_NeverExceeds100(t *testing.T) {
	log := []models.ActivityInterval{
		run("a", 0, 60),
		run("b", 0, 60),
		run("c", -10, 70),
		run("d", 20, 50),
	}
	res := Utilization(log, isRunning, t0, t0.Add(time.Hour), t0.Add(2*time.Hour))
	require.Equal(t, 100.0, res.Percent)
	require.Equal(t, 3600.0, res.RunningSeconds)
}

func TestUtilization_OpenIntervalEndsAtNow(t *testing.T) {
	open := models.ActivityInterval{ID: "a", Status: models.StatusRunning, Start: t0}
	res := Utilization([]models.ActivityInterval{open}, isRunning, t0, t0.Add(time.Hour), t0.Add(15*time.Minute))
	require.Equal(t, 25.0, res.Percent)
}

func TestUtilization_EmptyPeriod(t *testing.T) {
	res := Utilization([]models.ActivityInterval{run("a", 0, 60)}, isRunning, t0, t0, t0)
	require.Equal(t, UtilizationResult{From: t0, To: t0}, res)
}

func TestUtilizationForCompletedJobs(t *testing.T) {
	log := []models.ActivityInterval{run("a", 0, 60)}

	done := job("j-1", 30)
	cancelled := job("j-2", 60)
	cancelled.Status = models.JobCancelled

	res := UtilizationForCompletedJobs(log, []models.MachineJob{done, cancelled}, isRunning, t0, t0.Add(time.Hour), t0.Add(2*time.Hour))
	require.Equal(t, 1800.0, res.RunningSeconds)
	require.Equal(t, 50.0, res.Percent)

	all := Utilization(log, isRunning, t0, t0.Add(time.Hour), t0.Add(2*time.Hour))
	require.Equal(t, 100.0, all.Percent)
}
