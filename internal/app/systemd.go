package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"msgwatch/pkg/logx"
)

// sdNotifier reports lifecycle state to systemd. Outside a Type=notify unit
// every call is a no-op.
type sdNotifier struct {
	log      logx.Logger
	notify   func(state string) (bool, error)
	watchdog func() (time.Duration, error)
}

func newSDNotifier(log logx.Logger) *sdNotifier {
	return &sdNotifier{
		log:      log,
		notify:   func(state string) (bool, error) { return daemon.SdNotify(false, state) },
		watchdog: func() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) },
	}
}

func (n *sdNotifier) send(state string) {
	sent, err := n.notify(state)
	switch {
	case err != nil:
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		n.log.Debug("sd_notify", logx.String("state", state))
	}
}

func (n *sdNotifier) ready()    { n.send(daemon.SdNotifyReady) }
func (n *sdNotifier) stopping() { n.send(daemon.SdNotifyStopping) }

// runWatchdog pings at half the watchdog interval until ctx is done. It
// returns immediately when the unit has no watchdog.
func (n *sdNotifier) runWatchdog(ctx context.Context) {
	every, err := n.watchdog()
	if err != nil {
		n.log.Warn("watchdog check failed", logx.Err(err))
		return
	}
	if every <= 0 {
		return
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	n.log.Info("systemd watchdog enabled", logx.Duration("interval", every))
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
