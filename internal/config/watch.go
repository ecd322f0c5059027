package config

import (
	"machine_monitor/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch re-decodes the status section whenever the config file changes and hands it
// to apply. Other sections need a restart. Decode errors keep the previous settings.
func Watch(v *viper.Viper, log *logger.Logger, apply func(StatusConfig)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		st, err := decodeStatus(v)
		if err != nil {
			log.Errorw("config_reload_failed", "file", e.Name, "err", err)
			return
		}
		log.Infow("config_reloaded", "file", e.Name, "running", st.Running, "downtime", st.Downtime)
		apply(st)
	})
	v.WatchConfig()
}
