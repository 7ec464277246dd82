package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/banshee-data/wallnav/internal/db"
)

func newMigrateCmd(rf *rootFlags) *cobra.Command {
	var dev bool
	cmd := &cobra.Command{
		Use:   "migrate <action> [version]",
		Short: "Manage the database schema",
		Long:  "Manage the database schema.\n\n" + db.MigrateUsage,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rf.dbPath == "" {
				return errors.New("--db-path is required")
			}
			db.DevMode = dev
			// migrations manage the schema, so open without applying them
			database, err := db.OpenDB(rf.dbPath)
			if err != nil {
				return err
			}
			defer database.Close()
			return db.RunMigrateCommand(cmd.OutOrStdout(), database, args)
		},
	}
	cmd.Flags().BoolVar(&dev, "dev", false, "read migrations from internal/db/migrations instead of the embedded copy")
	return cmd
}
