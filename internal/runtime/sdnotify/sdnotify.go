// Package sdnotify reports service state to systemd (Type=notify units) and
// feeds the watchdog only while the frame loop is making progress.
package sdnotify

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "frameq/pkg/logx"
)

type Notifier struct {
	enabled bool
	log     logx.Logger

	notify          func(state string) (bool, error)
	watchdogEnabled func() (time.Duration, error)
}

// New returns a Notifier. A disabled Notifier, or one running outside
// systemd (no NOTIFY_SOCKET), does nothing.
func New(enabled bool, log logx.Logger) *Notifier {
	return &Notifier{
		enabled: enabled,
		log:     log,
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		watchdogEnabled: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
	}
}

func (n *Notifier) send(state string) {
	if n == nil || !n.enabled {
		return
	}
	sent, err := n.notify(state)
	if err != nil && !n.log.IsZero() {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent && !n.log.IsZero() {
		n.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

func (n *Notifier) Ready()    { n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }
func (n *Notifier) Reloading() {
	n.send(daemon.SdNotifyReloading)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) { n.send("STATUS=" + msg) }

// Watchdog pings systemd at half the configured WatchdogSec for as long as
// alive reports true. It returns immediately when the unit has no watchdog.
func (n *Notifier) Watchdog(ctx context.Context, alive func() bool) error {
	if n == nil || !n.enabled {
		return nil
	}
	interval, err := n.watchdogEnabled()
	if err != nil {
		return err
	}
	if interval <= 0 {
		return nil
	}
	period := interval / 2
	if !n.log.IsZero() {
		n.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	}

	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if alive != nil && !alive() {
				if !n.log.IsZero() {
					n.log.Warn("frame loop stalled; withholding watchdog ping")
				}
				continue
			}
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
