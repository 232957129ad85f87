package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/mgost/mgost/logging"
	"github.com/mgost/mgost/settings"
	"github.com/mgost/mgost/storage"
)

// fingerprintWorkers bounds concurrent hashing during drift checks.
const fingerprintWorkers = 4

func newStatusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the project binding and local drift since the last upload",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := projectRoot(v)
			if err != nil {
				return err
			}
			info, err := settings.Load(root)
			if err != nil {
				return err
			}
			logging.Init(info.LogPath(), v.GetBool("verbose"))

			if info.Settings.ProjectID == 0 {
				fmt.Printf("%s is not bound to a project; run \"mgost init\"\n", root)
				return nil
			}
			fmt.Printf("Project: %s (id %d)\n", info.Settings.ProjectName, info.Settings.ProjectID)

			if usage, err := disk.Usage(root); err == nil {
				fmt.Printf("Volume:  %.1f%% used, %.1f GiB free\n",
					usage.UsedPercent, float64(usage.Free)/(1<<30))
			}

			store, err := storage.Open(info.LedgerPath())
			if err != nil {
				fmt.Println("No upload history yet")
				return nil
			}
			defer store.Close()
			records, err := store.All()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No upload history yet")
				return nil
			}

			// Re-fingerprint in parallel; hashing large assets is the
			// slow part. A touched file whose content still matches
			// its recorded fingerprint is not drift.
			states := make([]string, len(records))
			g, _ := errgroup.WithContext(cmd.Context())
			g.SetLimit(fingerprintWorkers)
			for i, rec := range records {
				g.Go(func() error {
					local := filepath.Join(root, filepath.FromSlash(rec.Path))
					fi, err := os.Lstat(local)
					switch {
					case err != nil:
						states[i] = "missing locally"
					case fi.ModTime().After(rec.UploadedAt):
						fp, err := storage.Fingerprint(local)
						if err != nil || fp != rec.Fingerprint {
							states[i] = "modified since upload"
						}
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			clean := 0
			for i, state := range states {
				if state == "" {
					clean++
					continue
				}
				fmt.Printf("  %-40s %s\n", records[i].Path, state)
			}
			fmt.Printf("%d tracked upload(s), %d in sync\n", len(records), clean)
			return nil
		},
	}
}
