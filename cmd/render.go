package cmd

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"

	shlex "github.com/flynn/go-shlex"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mgost/mgost/logging"
	"github.com/mgost/mgost/sync"
)

func newRenderCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Sync, then build the project into a document",
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
			if err := runPass(ctx, runner, bus); err != nil {
				return fmt.Errorf("not rendering: %w", err)
			}

			fmt.Println("Rendering ...")
			result, err := env.client.Render(ctx, project.ID)
			if err != nil {
				return err
			}
			for _, w := range result.Warnings {
				fmt.Println("  warning:", w)
			}
			if !result.Success {
				for _, e := range result.Errors {
					fmt.Println("  error:", e)
				}
				return fmt.Errorf("build failed on the service")
			}

			// The build replaced the document on the cloud side;
			// refetch the project so the docx path is current, then
			// pull the file over the local copy.
			env.client.InvalidateCache()
			project, err = env.client.Project(ctx, project.ID)
			if err != nil {
				return err
			}
			if project.PathToDocx == "" {
				fmt.Println("Build succeeded but the project reports no document path")
				return nil
			}
			if err := env.client.Download(ctx, project.ID, project.PathToDocx, true); err != nil {
				return fmt.Errorf("download %s: %w", project.PathToDocx, err)
			}
			local := filepath.Join(env.root, filepath.FromSlash(project.PathToDocx))
			fmt.Println("Saved", local)

			if v.GetBool("open") {
				if err := openDocument(v, local); err != nil {
					logging.Sub("cmd").Warn("opening the document failed", "path", local, "err", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("open", false, "open the built document when done")
	cmd.Flags().String("open-with", "", "command used to open documents (default: OS opener)")
	return cmd
}

// openDocument hands the file to the configured opener, or the
// platform default. The opener string is split shell-style so values
// like "libreoffice --view" work.
func openDocument(v *viper.Viper, path string) error {
	opener := v.GetString("open-with")
	if opener == "" {
		switch runtime.GOOS {
		case "darwin":
			opener = "open"
		case "windows":
			opener = "cmd /c start"
		default:
			opener = "xdg-open"
		}
	}
	parts, err := shlex.Split(opener)
	if err != nil || len(parts) == 0 {
		return fmt.Errorf("bad open-with command %q", opener)
	}
	return exec.Command(parts[0], append(parts[1:], path)...).Start()
}
