package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "maapd",
		Short: "MAAP multicast address acquisition daemon",
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newAuditCmd())
	return root
}
