package main

import (
	"time"

	"github.com/spf13/cobra"
)

type reconcileOutput struct {
	OlderThan  string   `json:"older_than"`
	Reconciled []string `json:"reconciled"`
}

func newReconcileCmd(a *app) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Mark upload logs stuck in pending as failed",
		Long: "Marks every upload log that has been pending for longer than --older-than as failed. " +
			"Run it only when no ingestion older than the cutoff can still be in flight.",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			if olderThan <= 0 {
				olderThan = a.cfg.Ingestion.PendingTimeout
			}
			logs, err := a.newService(store).ReconcileStale(cmd.Context(), olderThan)
			out := reconcileOutput{OlderThan: olderThan.String(), Reconciled: []string{}}
			for _, log := range logs {
				out.Reconciled = append(out.Reconciled, log.ID.String())
			}
			if writeErr := writeJSON(out); writeErr != nil {
				return writeErr
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Pending age cutoff (defaults to ingestion.pending_timeout)")
	return cmd
}
