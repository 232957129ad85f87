package sync

import (
	"context"
	"log/slog"

	"github.com/mgost/mgost/logging"
)

// Daemon runs the engine in watch mode: one initial pass to converge,
// then one full pass per debounced batch of local changes.
type Daemon struct {
	runner *Runner
	root   string
	queue  *ChangeQueue
}

// NewDaemon wires a runner into watch mode over root.
func NewDaemon(runner *Runner, root string) *Daemon {
	return &Daemon{
		runner: runner,
		root:   root,
		queue:  NewChangeQueue(),
	}
}

// Run blocks until ctx is cancelled. A failed pass is logged and the
// daemon keeps waiting for the next change; only the initial pass and
// watcher setup abort the daemon.
func (d *Daemon) Run(ctx context.Context) error {
	l := logging.Sub("daemon")
	l.Info("watch mode starting", "root", d.root)

	// First pass brings the project up to date before we start
	// reacting to events.
	report, err := d.runner.Run(ctx)
	if err != nil {
		return err
	}
	d.logReport(l, report)

	watcher, err := NewWatcher(d.root, d.queue, LoadIgnore(d.root))
	if err != nil {
		return err
	}

	go func() {
		if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
			l.Warn("watcher stopped unexpectedly", "err", err)
		}
	}()

	done := ctx.Done()
	for {
		path, ok := d.queue.Pop(done)
		if !ok {
			break
		}

		// One changed file usually arrives with friends. Drain the
		// queue so the whole burst becomes a single pass.
		coalesced := d.queue.Drain()
		l.Info("local change", "path", path, "coalesced", len(coalesced))

		report, err := d.runner.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			l.Error("pass failed", "err", err)
			continue
		}
		d.logReport(l, report)
	}

	watcher.Close()
	l.Info("watch mode stopped")
	return nil
}

func (d *Daemon) logReport(l *slog.Logger, report *Report) {
	l.Info("pass finished",
		"state", report.State.String(),
		"completed", report.Completed,
		"failures", len(report.Failures),
		"duration", report.Duration)
	for _, f := range report.Failures {
		l.Warn("sync failure", "path", f.Path, "err", f.Err)
	}
}
