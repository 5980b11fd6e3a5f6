package config

import (
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the config file on change and passes each valid new config
// to onChange. Invalid edits are logged and ignored. It reports false when
// no config file was loaded.
func (c *Config) Watch(logger *zap.Logger, onChange func(*Config)) bool {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return false
	}

	c.v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Config file changed",
			zap.String("file", e.Name),
			zap.String("op", e.Op.String()),
		)

		var next Config
		if err := c.v.Unmarshal(&next); err != nil {
			logger.Warn("Ignoring config change", zap.Error(err))
			return
		}
		next.v = c.v
		if err := next.Validate(); err != nil {
			logger.Warn("Ignoring invalid config change", zap.Error(err))
			return
		}
		onChange(&next)
	})
	c.v.WatchConfig()
	return true
}
