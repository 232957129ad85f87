// Package cmd implements the mgost command line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mgost/mgost/api"
	"github.com/mgost/mgost/logging"
)

// Execute runs the CLI. Interrupts cancel the running command's
// context so a sync pass in flight can wind down.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "mgost",
		Short: "Keep a local document project in step with the Articha build service",
		Long: `mgost binds a local directory to a cloud project on the Articha
document build service and keeps the two in step: local edits are
uploaded, cloud-side changes are downloaded, and renames are followed
by file identity rather than name. The render command then builds the
project into a document on the service and fetches the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringP("root", "r", ".", "project directory")
	flags.BoolP("verbose", "v", false, "log debug detail to the console")
	flags.String("base-url", api.DefaultBaseURL, "service endpoint")

	cmd.AddCommand(
		newVersionCmd(),
		newTokenCmd(v),
		newInitCmd(v),
		newSyncCmd(v),
		newRenderCmd(v),
		newStatusCmd(v),
		newProjectsCmd(v),
		newConfigCmd(v),
		newBackupCmd(v),
	)
	return cmd
}

// initConfig wires flags, MGOST_* environment variables and the
// optional global config file into one viper instance. Precedence is
// flag, then environment, then config file, then flag default.
func initConfig(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix("mgost")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := v.BindPFlags(cmd.InheritedFlags()); err != nil {
		return err
	}

	if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "mgost"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("read global config: %w", err)
			}
		}
	}

	// Console-only until a command loads its project root and points
	// the file handlers at <root>/.mgost/logs.
	logging.Init("", v.GetBool("verbose"))
	return nil
}

func projectRoot(v *viper.Viper) (string, error) {
	root, err := filepath.Abs(v.GetString("root"))
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	fi, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("project root: %w", err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("project root %s is not a directory", root)
	}
	return root, nil
}
