package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mgost/mgost/logging"
	"github.com/mgost/mgost/storage"
	"github.com/mgost/mgost/sync"
)

func newSyncCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the project directory with the cloud",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := openEnv(ctx, v)
			if err != nil {
				return err
			}
			defer env.close()
			project, err := env.requireProject(ctx)
			if err != nil {
				return err
			}

			bus := sync.NewEventBus()
			runner, cleanup, err := env.newRunner(v, project.ID, sync.WithEvents(bus))
			if err != nil {
				return err
			}
			defer cleanup()

			if v.GetBool("watch") {
				fmt.Printf("Watching %s (Ctrl-C to stop)\n", env.root)
				return sync.NewDaemon(runner, env.root).Run(ctx)
			}
			return runPass(ctx, runner, bus)
		},
	}
	flags := cmd.Flags()
	flags.BoolP("watch", "w", false, "keep running and sync on local changes")
	flags.IntP("workers", "n", 0, "concurrent transfer limit (default 4)")
	return cmd
}

// newRunner builds a pass runner wired to the upload ledger.
func (e *projectEnv) newRunner(v *viper.Viper, projectID int64, extra ...sync.RunnerOption) (*sync.Runner, func(), error) {
	opts := extra
	if n := v.GetInt("workers"); n > 0 {
		opts = append(opts, sync.WithWorkers(n))
	}

	store, err := storage.Open(e.info.LedgerPath())
	if err != nil {
		// The ledger only feeds status reporting; a locked or corrupt
		// database must not block a sync.
		logging.Sub("cmd").Warn("upload ledger unavailable", "err", err)
		return sync.NewRunner(e.client, projectID, e.root, opts...), func() {}, nil
	}
	opts = append(opts, sync.WithLedger(store))
	return sync.NewRunner(e.client, projectID, e.root, opts...), func() { store.Close() }, nil
}

// runPass runs one sync pass, printing transfers as they complete and
// a failure summary at the end. Paths that are already in agreement
// stay silent.
func runPass(ctx context.Context, runner *sync.Runner, bus *sync.EventBus) error {
	ch := bus.Subscribe()
	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		for e := range ch {
			if e.Type == sync.EventAction && e.Action.Kind != sync.KindNoOp {
				fmt.Println(" ", e.Action.String())
			}
		}
	}()

	report, err := runner.Run(ctx)
	bus.Unsubscribe(ch)
	<-printerDone
	if err != nil {
		return err
	}

	printReport(report)
	if n := len(report.Failures); n > 0 {
		return fmt.Errorf("%d of %d action(s) failed", n, len(report.Planned))
	}
	return nil
}

func printReport(report *sync.Report) {
	fmt.Printf("Synced %d/%d action(s) in %s\n",
		report.Completed, len(report.Planned), report.Duration.Round(time.Millisecond))
	for _, f := range report.Failures {
		if f.Action.Kind == sync.KindNoOp {
			// Planning failure; there is no action to describe.
			fmt.Printf("  FAILED %s: %v\n", f.Path, f.Err)
			continue
		}
		fmt.Printf("  FAILED %s: %v\n", f.Action, f.Err)
	}
}
