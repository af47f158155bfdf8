package cli

import (
	"github.com/spf13/cobra"
)

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Fetch one snapshot and print the merged rate table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Rates(cmd.Context())
	},
}
