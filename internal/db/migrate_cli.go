package db

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

// MigrateUsage describes the migrate actions.
const MigrateUsage = `Actions:
  up              Apply all pending migrations
  down            Roll back one migration
  status          Show current version and whether migrations are pending
  version <N>     Migrate to version N
  force <N>       Force the recorded version to N (recovery only)`

// ErrUnknownMigrateAction is returned for an unrecognised action.
var ErrUnknownMigrateAction = errors.New("unknown migrate action")

// RunMigrateCommand runs one migrate action against database, reporting to w.
func RunMigrateCommand(w io.Writer, database *DB, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing action\n\n%s", MigrateUsage)
	}
	migrationsFS, err := getMigrationsFS()
	if err != nil {
		return fmt.Errorf("failed to get migrations filesystem: %w", err)
	}

	versionArg := func() (int, error) {
		if len(args) < 2 {
			return 0, fmt.Errorf("usage: migrate %s <version_number>", args[0])
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid version number: %s", args[1])
		}
		return v, nil
	}

	switch args[0] {
	case "up":
		if err := database.MigrateUp(migrationsFS); err != nil {
			return err
		}
		fmt.Fprintln(w, "All migrations applied")
	case "down":
		if err := database.MigrateDown(migrationsFS); err != nil {
			return err
		}
		fmt.Fprintln(w, "Rolled back one migration")
	case "status":
		version, dirty, err := database.MigrateVersion(migrationsFS)
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
		latest, err := LatestMigrationVersion(migrationsFS)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Current version: %d\n", version)
		fmt.Fprintf(w, "Latest available: %d\n", latest)
		fmt.Fprintf(w, "Dirty: %v\n", dirty)
		switch {
		case dirty:
			fmt.Fprintln(w, "A migration failed mid-execution; inspect the database, then run: migrate force <version>")
		case version < latest:
			fmt.Fprintf(w, "%d migration(s) pending; run: migrate up\n", latest-version)
		default:
			fmt.Fprintln(w, "Database is up to date")
		}
		return nil
	case "version":
		v, err := versionArg()
		if err != nil {
			return err
		}
		if err := database.MigrateTo(migrationsFS, uint(v)); err != nil {
			return err
		}
		fmt.Fprintf(w, "Migrated to version %d\n", v)
	case "force":
		v, err := versionArg()
		if err != nil {
			return err
		}
		if err := database.MigrateForce(migrationsFS, v); err != nil {
			return err
		}
		fmt.Fprintf(w, "Migration version forced to %d\n", v)
	default:
		return fmt.Errorf("%w %q\n\n%s", ErrUnknownMigrateAction, args[0], MigrateUsage)
	}

	version, dirty, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Current version: %d (dirty: %v)\n", version, dirty)
	return nil
}
