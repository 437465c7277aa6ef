package cli

import (
	"github.com/spf13/cobra"
)

var venuesCmd = &cobra.Command{
	Use:   "venues",
	Short: "List supported venues and the enabled query order",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		a.Out = cmd.OutOrStdout()
		return a.Venues()
	},
}
