package app

import (
	"frameq/internal/config"
	"frameq/internal/loop"
	"frameq/internal/storage"
	logx "frameq/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapLoopConfig(st config.Settings) loop.Config {
	return loop.Config{
		TargetFPS:           st.TargetFPS,
		MaxFrameDelta:       st.MaxFrameDelta,
		RegressionLogPerSec: st.RegressionLogPerSec,
		PostQueue:           st.PostQueue,
	}
}

// mapStorageConfig reports false when storage is disabled.
func mapStorageConfig(st config.Settings) (storage.Config, bool) {
	if st.StorageDriver == config.DriverNone {
		return storage.Config{}, false
	}
	return storage.Config{
		Driver:      st.StorageDriver,
		Path:        st.StoragePath,
		BusyTimeout: st.BusyTimeout,
	}, true
}

// OpenStore opens the store configured in the file at cfgPath, for
// commands that only read traces.
func OpenStore(cfgPath string, log logx.Logger) (storage.Store, error) {
	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return nil, err
	}
	st, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	sc, ok := mapStorageConfig(st)
	if !ok {
		return nil, storage.ErrDisabled
	}
	return storage.Open(sc, log)
}
