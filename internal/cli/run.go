package cli

import (
	"github.com/spf13/cobra"
)

var runFlags scanFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the spread radar until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := runFlags.overrides(cmd)
		if err != nil {
			return err
		}
		return getApp().Run(cmd.Context(), overrides)
	},
}

func init() {
	runFlags.register(runCmd.Flags())
}
