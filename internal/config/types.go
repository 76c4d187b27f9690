package config

// Config is the frameq configuration file.
//
// All durations are Go duration strings (e.g. "16ms", "2s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Loop      LoopConfig      `json:"loop"`
	Scheduler SchedulerConfig `json:"scheduler"`
	// Storage is optional; nil (or driver "none") disables trace persistence.
	Storage *StorageConfig `json:"storage,omitempty"`
	Trace   TraceConfig    `json:"trace"`
	Systemd SystemdConfig  `json:"systemd"`
	Demo    *DemoConfig    `json:"demo,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoopConfig controls the frame driver.
//
// Defaults (when fields are omitted):
//   - target_fps: 60 (0 runs frames back to back)
//   - max_frame_delta: "250ms" ("0s" disables the clamp)
//   - regression_log_per_sec: 1
//   - post_queue: 256
type LoopConfig struct {
	TargetFPS           int    `json:"target_fps"`
	MaxFrameDelta       string `json:"max_frame_delta,omitempty"`
	RegressionLogPerSec int    `json:"regression_log_per_sec,omitempty"`
	PostQueue           int    `json:"post_queue,omitempty"`
}

// SchedulerConfig controls the deferred event scheduler.
type SchedulerConfig struct {
	// TickInterval is the length of one server tick used by tick-based delays.
	TickInterval string `json:"tick_interval,omitempty"`
	// CompactMin is the queue length below which cancelled events are only
	// dropped lazily.
	CompactMin int `json:"compact_min,omitempty"`
}

// StorageConfig controls frame trace persistence.
//
// Example:
//
//	storage:
//	  driver: sqlite
//	  path: ./frameq.db
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// TraceConfig controls frame recording. Recording needs a storage driver.
type TraceConfig struct {
	Enabled bool `json:"enabled"`
	// FlushSchedule is a cron spec ("@every 5s", "*/1 * * * *").
	FlushSchedule string `json:"flush_schedule,omitempty"`
	BatchSize     int    `json:"batch_size,omitempty"`
	// StatsSchedule logs loop/scheduler stats on a cron spec; empty disables.
	StatsSchedule string `json:"stats_schedule,omitempty"`
}

type SystemdConfig struct {
	Notify   bool `json:"notify"`
	Watchdog bool `json:"watchdog"`
}

// DemoConfig drives the built-in consumers (spell casts, movement locks,
// sound fades) so a running process exercises the scheduler.
type DemoConfig struct {
	Spells        []SpellConfig `json:"spells"`
	ProgressBars  bool          `json:"progress_bars"`
	MovementTicks float64       `json:"movement_ticks,omitempty"`
	FadeDuration  string        `json:"fade_duration,omitempty"`
}

type SpellConfig struct {
	Name      string  `json:"name"`
	CastTicks float64 `json:"cast_ticks"`
}

// Default returns the configuration used for omitted fields.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Loop: LoopConfig{
			TargetFPS:           60,
			MaxFrameDelta:       "250ms",
			RegressionLogPerSec: 1,
			PostQueue:           256,
		},
		Scheduler: SchedulerConfig{TickInterval: "50ms", CompactMin: 64},
		Trace:     TraceConfig{FlushSchedule: "@every 5s", BatchSize: 256},
	}
}
