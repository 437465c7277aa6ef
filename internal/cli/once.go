package cli

import (
	"github.com/spf13/cobra"
)

var onceFlags scanFlags

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single scan cycle and print the table",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := onceFlags.overrides(cmd)
		if err != nil {
			return err
		}
		return getApp().Once(cmd.Context(), overrides)
	},
}

func init() {
	onceFlags.register(onceCmd.Flags())
}
