package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List stored machine snapshots",
	Long: `List the machine snapshots stored in the state database, newest
first. Each snapshot is keyed by the hash of its JSON form, so two
entries with different hashes compile to different machines.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStateDB()
		if err != nil {
			return err
		}
		defer db.Close()

		snaps, err := db.ListSnapshots()
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Println("no snapshots stored")
			return nil
		}

		fmt.Printf("%-14s %-20s %8s  %s\n", "HASH", "PLAN", "STATES", "CREATED")
		for _, s := range snaps {
			fmt.Printf("%-14s %-20s %8d  %s\n",
				s.Hash[:12], s.PlanName, s.StateCount, s.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}
