// Package status maps raw machine encodings to canonical (status, color) pairs
// and classifies statuses as running or downtime.
package status

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"machine_monitor/internal/config"
	"machine_monitor/internal/logger"
	"machine_monitor/internal/models"
	"machine_monitor/internal/repository"

	"github.com/patrickmn/go-cache"
)

// ConfigSource looks up a machine's own mapping table.
type ConfigSource interface {
	Get(ctx context.Context, machineID string) (models.StatusConfig, error)
}

// Resolution is the outcome of resolving one signal.
type Resolution struct {
	Status string
	Color  string
}

type Resolver struct {
	source ConfigSource
	cache  *cache.Cache
	log    *logger.Logger

	mu       sync.RWMutex
	settings config.StatusConfig
	running  map[string]struct{}
	downtime map[string]struct{}
}

func NewResolver(source ConfigSource, settings config.StatusConfig, ttl time.Duration, log *logger.Logger) *Resolver {
	if ttl <= 0 {
		ttl = time.Minute
	}
	r := &Resolver{
		source: source,
		cache:  cache.New(ttl, 2*ttl),
		log:    log.Named("status"),
	}
	r.Apply(settings)
	return r
}

// Apply swaps the classification sets, colors and default mappings.
func (r *Resolver) Apply(settings config.StatusConfig) {
	running := toSet(settings.Running)
	downtime := toSet(settings.Downtime)

	r.mu.Lock()
	r.settings = settings
	r.running = running
	r.downtime = downtime
	r.mu.Unlock()

	// cached tables may have come from the old defaults
	r.cache.Flush()
}

// Resolve never fails: unmatched or malformed input yields Unknown.
func (r *Resolver) Resolve(ctx context.Context, machineID string, bits *uint32, typ string) Resolution {
	for _, m := range r.mappings(ctx, machineID) {
		if matches(m, bits, typ) {
			if m.Status == "" {
				break
			}
			return Resolution{Status: m.Status, Color: m.Color}
		}
	}
	return Resolution{Status: models.StatusUnknown, Color: r.UnknownColor()}
}

func matches(m models.StatusMapping, bits *uint32, typ string) bool {
	if m.Type != "" {
		return typ != "" && strings.EqualFold(strings.TrimSpace(typ), m.Type)
	}
	if m.Mask != 0 && bits != nil {
		return *bits&m.Mask == m.Mask
	}
	return false
}

func (r *Resolver) mappings(ctx context.Context, machineID string) []models.StatusMapping {
	if cached, ok := r.cache.Get(machineID); ok {
		return cached.([]models.StatusMapping)
	}

	cfg, err := r.source.Get(ctx, machineID)
	switch {
	case err == nil && len(cfg.Mappings) > 0:
		r.cache.SetDefault(machineID, cfg.Mappings)
		return cfg.Mappings
	case err == nil, errors.Is(err, repository.ErrNotFound):
		defaults := r.defaults()
		r.cache.SetDefault(machineID, defaults)
		return defaults
	default:
		// not cached, so the next signal retries the lookup
		r.log.Warnw("status_config_lookup_failed", "machine_id", machineID, "err", err)
		return r.defaults()
	}
}

func (r *Resolver) defaults() []models.StatusMapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings.DefaultMappings
}

// Invalidate drops the cached table for one machine.
func (r *Resolver) Invalidate(machineID string) {
	r.cache.Delete(machineID)
}

func (r *Resolver) IsRunning(status string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.running[status]
	return ok
}

func (r *Resolver) IsDowntime(status string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.downtime[status]
	return ok
}

// Running returns the configured running labels.
func (r *Resolver) Running() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.settings.Running...)
}

// Downtime returns the configured downtime labels.
func (r *Resolver) Downtime() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.settings.Downtime...)
}

func (r *Resolver) UnknownColor() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings.UnknownColor
}

func (r *Resolver) OfflineColor() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings.OfflineColor
}

func toSet(labels []string) map[string]struct{} {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	return set
}
