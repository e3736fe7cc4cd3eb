package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	Nd "github.com/maroda/neurales/display"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the neurales version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Nd.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
