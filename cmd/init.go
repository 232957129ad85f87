package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mgost/mgost/logging"
)

func newInitCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Bind this directory to a new cloud project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := openEnv(ctx, v)
			if err != nil {
				return err
			}
			defer env.close()

			if id := env.info.Settings.ProjectID; id != 0 {
				return fmt.Errorf("%s is already bound to project %q (id %d)",
					env.root, env.info.Settings.ProjectName, id)
			}

			name := v.GetString("name")
			if name == "" {
				name = filepath.Base(env.root)
			}
			id, err := env.client.CreateProject(ctx, name)
			if err != nil {
				return err
			}
			env.info.Settings.ProjectID = id
			env.info.Settings.ProjectName = name
			fmt.Printf("Created project %q (id %d)\n", name, id)

			// Seed the primary document from the service's example
			// library unless the directory already has one.
			mainPath := filepath.Join(env.root, "main.md")
			if _, err := os.Lstat(mainPath); os.IsNotExist(err) {
				example := v.GetString("example")
				data, err := env.client.DownloadExample(ctx, example, "md")
				if err != nil {
					logging.Sub("cmd").Warn("example download failed", "name", example, "err", err)
					fmt.Println("Could not fetch the example document; start from an empty main.md")
				} else if err := os.WriteFile(mainPath, data, 0644); err != nil {
					return fmt.Errorf("write main.md: %w", err)
				} else {
					fmt.Printf("Seeded main.md from example %q\n", example)
				}
			}

			fmt.Println("Run \"mgost sync\" to push the directory to the cloud")
			return nil
		},
	}
	cmd.Flags().String("name", "", "project name (default: directory name)")
	cmd.Flags().String("example", "init", "example document to seed main.md from")
	return cmd
}
