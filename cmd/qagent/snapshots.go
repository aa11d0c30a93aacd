package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cartridge/qagent/internal/config"
	"github.com/cartridge/qagent/internal/storage"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Inspect stored agent snapshots",
}

var listSnapshotsCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		store, closeStore, err := snapshotStore(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		records, err := store.ListSnapshots(cmd.Context(), limit)
		if err != nil {
			return err
		}
		return writeRecords(cmd, records)
	},
}

var pruneSnapshotsCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		keep, _ := cmd.Flags().GetInt("keep")
		if keep < 0 {
			return fmt.Errorf("--keep must not be negative")
		}
		store, closeStore, err := snapshotStore(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		removed, err := store.PruneSnapshots(cmd.Context(), keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d snapshot(s)\n", removed)
		return nil
	},
}

func init() {
	d := config.Default()
	for _, c := range []*cobra.Command{listSnapshotsCmd, pruneSnapshotsCmd} {
		c.Flags().String("storage-driver", d.Storage.Driver, "Snapshot store (sqlite, postgres)")
		c.Flags().String("storage-dsn", d.Storage.DSN, "Snapshot store data source name")
	}
	listSnapshotsCmd.Flags().Int("limit", 20, "Maximum snapshots to list (0 for all)")
	pruneSnapshotsCmd.Flags().Int("keep", d.Checkpoint.Keep, "Snapshots to keep")

	snapshotsCmd.AddCommand(listSnapshotsCmd, pruneSnapshotsCmd)
}

// snapshotStore opens the configured persistent store. Flags are bound here
// rather than in init because list and prune share viper keys.
func snapshotStore(cmd *cobra.Command) (storage.SnapshotStore, func() error, error) {
	if err := v.BindPFlag("storage.driver", cmd.Flags().Lookup("storage-driver")); err != nil {
		return nil, nil, err
	}
	if err := v.BindPFlag("storage.dsn", cmd.Flags().Lookup("storage-dsn")); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.Driver == config.DriverMemory {
		return nil, nil, fmt.Errorf("the memory driver does not persist snapshots; use sqlite or postgres")
	}
	return openStore(cmd.Context(), cfg.Storage)
}

func writeRecords(cmd *cobra.Command, records []storage.Record) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREASON\tPOINTS\tCREATED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.ID, r.Reason, r.Points, r.CreatedAt.Local().Format(time.RFC3339))
	}
	return w.Flush()
}
