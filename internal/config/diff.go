package config

import (
	"reflect"
	"sort"
	"strings"

	logx "frameq/pkg/logx"
)

// SummarizeConfigChange returns the sorted names of changed sections and
// structured fields describing the new values, for a single reload log line.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Loop != newCfg.Loop {
		changed = append(changed, "loop")
		attrs = append(attrs,
			logx.Int("loop.target_fps", newCfg.Loop.TargetFPS),
			logx.String("loop.max_frame_delta", strings.TrimSpace(newCfg.Loop.MaxFrameDelta)),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.tick_interval", strings.TrimSpace(newCfg.Scheduler.TickInterval)),
			logx.Int("scheduler.compact_min", newCfg.Scheduler.CompactMin),
		)
	}

	oldS, newS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oldS != newS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newS.Driver),
			logx.Bool("storage.path_set", newS.Path != ""),
			logx.String("storage.busy_timeout", newS.BusyTimeout),
		)
	}

	if oldCfg.Trace != newCfg.Trace {
		changed = append(changed, "trace")
		attrs = append(attrs,
			logx.Bool("trace.enabled", newCfg.Trace.Enabled),
			logx.String("trace.flush_schedule", strings.TrimSpace(newCfg.Trace.FlushSchedule)),
			logx.Int("trace.batch_size", newCfg.Trace.BatchSize),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs,
			logx.Bool("systemd.notify", newCfg.Systemd.Notify),
			logx.Bool("systemd.watchdog", newCfg.Systemd.Watchdog),
		)
	}

	if !reflect.DeepEqual(oldCfg.Demo, newCfg.Demo) {
		changed = append(changed, "demo")
		spells := 0
		if newCfg.Demo != nil {
			spells = len(newCfg.Demo.Spells)
		}
		attrs = append(attrs,
			logx.Bool("demo.enabled", newCfg.Demo != nil),
			logx.Int("demo.spells", spells),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired reports sections that changed but cannot be applied to a
// running process.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "storage", "systemd", "demo":
			out = append(out, s)
		}
	}
	return out
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return StorageConfig{
		Driver:      strings.ToLower(strings.TrimSpace(s.Driver)),
		Path:        strings.TrimSpace(s.Path),
		BusyTimeout: strings.TrimSpace(s.BusyTimeout),
	}
}
