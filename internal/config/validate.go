package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "frameq/pkg/logx"
)

// Storage drivers accepted by storage.driver.
const (
	DriverNone   = "none"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Settings holds the parsed, defaulted values the runtime consumes.
type Settings struct {
	TargetFPS           int
	MaxFrameDelta       time.Duration
	RegressionLogPerSec int
	PostQueue           int

	TickInterval time.Duration
	CompactMin   int

	StorageDriver string
	StoragePath   string
	BusyTimeout   time.Duration

	TraceEnabled  bool
	FlushSchedule string
	StatsSchedule string
	BatchSize     int

	FadeDuration time.Duration
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Resolve parses durations and applies fallbacks for zero values that would
// otherwise be invalid.
func (c *Config) Resolve() (Settings, error) {
	var st Settings
	if c == nil {
		c = Default()
	}

	if c.Loop.TargetFPS < 0 {
		return st, fmt.Errorf("loop.target_fps: must be >= 0")
	}
	st.TargetFPS = c.Loop.TargetFPS
	d, err := ParseDurationField("loop.max_frame_delta", c.Loop.MaxFrameDelta)
	if err != nil {
		return st, err
	}
	st.MaxFrameDelta = d
	st.RegressionLogPerSec = c.Loop.RegressionLogPerSec
	if st.RegressionLogPerSec <= 0 {
		st.RegressionLogPerSec = 1
	}
	st.PostQueue = c.Loop.PostQueue
	if st.PostQueue <= 0 {
		st.PostQueue = 256
	}

	if st.TickInterval, err = ParseDurationOrDefault("scheduler.tick_interval", c.Scheduler.TickInterval, 50*time.Millisecond); err != nil {
		return st, err
	}
	if st.TickInterval < time.Millisecond {
		return st, fmt.Errorf("scheduler.tick_interval: must be >= 1ms")
	}
	if c.Scheduler.CompactMin < 0 {
		return st, fmt.Errorf("scheduler.compact_min: must be >= 0")
	}
	st.CompactMin = c.Scheduler.CompactMin
	if st.CompactMin == 0 {
		st.CompactMin = 64
	}

	st.StorageDriver = DriverNone
	if c.Storage != nil {
		drv := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
		switch drv {
		case "", DriverNone:
		case DriverFile, DriverSQLite:
			st.StorageDriver = drv
			st.StoragePath = strings.TrimSpace(c.Storage.Path)
			if st.StoragePath == "" {
				return st, fmt.Errorf("storage.path: required for driver %q", drv)
			}
		default:
			return st, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		if st.BusyTimeout, err = ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, 5*time.Second); err != nil {
			return st, err
		}
	}

	st.TraceEnabled = c.Trace.Enabled
	if st.TraceEnabled && st.StorageDriver == DriverNone {
		return st, errors.New("trace.enabled: requires a storage driver")
	}
	st.FlushSchedule = strings.TrimSpace(c.Trace.FlushSchedule)
	if st.FlushSchedule == "" {
		st.FlushSchedule = "@every 5s"
	}
	if _, err := cronParser.Parse(st.FlushSchedule); err != nil {
		return st, fmt.Errorf("trace.flush_schedule: %w", err)
	}
	st.StatsSchedule = strings.TrimSpace(c.Trace.StatsSchedule)
	if st.StatsSchedule != "" {
		if _, err := cronParser.Parse(st.StatsSchedule); err != nil {
			return st, fmt.Errorf("trace.stats_schedule: %w", err)
		}
	}
	st.BatchSize = c.Trace.BatchSize
	if st.BatchSize <= 0 {
		st.BatchSize = 256
	}

	if c.Demo != nil {
		if st.FadeDuration, err = ParseDurationOrDefault("demo.fade_duration", c.Demo.FadeDuration, time.Second); err != nil {
			return st, err
		}
		for i, sp := range c.Demo.Spells {
			if strings.TrimSpace(sp.Name) == "" {
				return st, fmt.Errorf("demo.spells[%d].name: required", i)
			}
			if sp.CastTicks < 0 {
				return st, fmt.Errorf("demo.spells[%d].cast_ticks: must be >= 0", i)
			}
		}
		if c.Demo.MovementTicks < 0 {
			return st, fmt.Errorf("demo.movement_ticks: must be >= 0")
		}
	}
	return st, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	_, err := c.Resolve()
	return err
}

// CronParser is the parser used for trace schedules.
func CronParser() cron.Parser { return cronParser }
