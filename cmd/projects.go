package cmd

import (
	"fmt"
	"sort"

	"github.com/maruel/natural"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newProjectsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List your projects on the service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := openEnv(ctx, v)
			if err != nil {
				return err
			}
			defer env.close()

			projects, err := env.client.Projects(ctx)
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Println("No projects yet; run \"mgost init\" in a project directory")
				return nil
			}

			// Natural order so chapter2 sorts before chapter10.
			sort.Slice(projects, func(i, j int) bool {
				return natural.Less(projects[i].Name, projects[j].Name)
			})

			current := env.info.Settings.ProjectID
			for _, p := range projects {
				marker := "  "
				if p.ID == current {
					marker = "* "
				}
				fmt.Printf("%s%-32s id %-6d modified %s\n",
					marker, p.Name, p.ID, p.Modified.Local().Format(stampFormat))
			}
			return nil
		},
	}
}
