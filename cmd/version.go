package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgost/mgost/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Println("mgost", version.Version)
			fmt.Println("commit", version.CommitSHA)
		},
	}
}
