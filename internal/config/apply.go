package config

import (
	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/debug"
	"github.com/dshills/dbgcore/internal/logging"
)

// Apply returns a Handler that pushes the settings that can change while
// running: the log level and the session manager settings. Other changes
// take effect on restart.
func Apply(log *logging.Logger, m *debug.Manager) Handler {
	return func(old, cur *Config) {
		if old == nil || old.Log.Level != cur.Log.Level {
			if err := log.SetLevel(cur.Log.Level); err != nil {
				log.Warn("log level not changed", zap.Error(err))
			}
		}
		if m != nil {
			m.SetSettings(cur.Settings())
		}
	}
}
