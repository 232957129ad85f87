package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v3"

	"github.com/mgost/mgost/settings"
)

func newConfigCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration the other commands would run with, after
flags, MGOST_* environment variables and the global config file
(~/.config/mgost/config.yaml) have been merged.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := projectRoot(v)
			if err != nil {
				return err
			}
			info, err := settings.Load(root)
			if err != nil {
				return err
			}

			cfg := map[string]any{
				"root":     root,
				"base_url": v.GetString("base-url"),
				"verbose":  v.GetBool("verbose"),
				"workers":  v.GetInt("workers"),
				"project": map[string]any{
					"id":   info.Settings.ProjectID,
					"name": info.Settings.ProjectName,
				},
			}
			if file := v.ConfigFileUsed(); file != "" {
				cfg["config_file"] = file
			}

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}
