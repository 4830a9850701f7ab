package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maapnet/maapd/audit"
)

func newAuditCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the diagnostic audit log",
	}
	root.AddCommand(newAuditTailCmd())
	return root
}

func newAuditTailCmd() *cobra.Command {
	var (
		dbPath string
		count  int
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the most recent audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := audit.Open(dbPath)
			if err != nil {
				return err
			}
			defer log.Close()

			entries, err := log.Tail(count)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%d\t%d\t%s\t%s\tid=%d\t%s\t%s\n", e.Seq, e.ObservedAt, e.FlowID, e.Kind, e.ReservationID, e.Result, string(e.Payload))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "audit-db", "", "path to the SQLite audit log")
	cmd.Flags().IntVar(&count, "n", 20, "number of entries to show")
	cmd.MarkFlagRequired("audit-db")
	return cmd
}
