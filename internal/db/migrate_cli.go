package db

import (
	"fmt"
	"io"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand against the ledger at
// dbPath using the embedded migrations.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return fmt.Errorf("missing migrate action")
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(out)
		return nil
	}

	// migrations manage the schema, so open without applying them
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	migrationsFS := MigrationsFS()

	switch action {
	case "up":
		if err := database.MigrateUp(migrationsFS); err != nil {
			return err
		}
		fmt.Fprintln(out, "All migrations applied")

	case "down":
		if err := database.MigrateDown(migrationsFS); err != nil {
			return err
		}
		fmt.Fprintln(out, "Rolled back one migration")

	case "to", "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: catalog migrate %s <version>", action)
		}
		v, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		if action == "to" {
			err = database.MigrateTo(migrationsFS, uint(v))
		} else {
			err = database.MigrateForce(migrationsFS, int(v))
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Migration version set to %d\n", v)

	case "status":
		// reported below

	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action: %s", action)
	}

	return printMigrateStatus(database, out)
}

func printMigrateStatus(database *DB, out io.Writer) error {
	migrationsFS := MigrationsFS()
	version, dirty, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigrationVersion(migrationsFS)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Current version: %d\n", version)
	fmt.Fprintf(out, "Latest available: %d\n", latest)
	fmt.Fprintf(out, "Dirty: %v\n", dirty)
	if dirty {
		fmt.Fprintln(out, "A migration failed mid-execution; inspect the ledger, then run: catalog migrate force <version>")
	}
	return nil
}

// PrintMigrateHelp displays the help message for the migrate command.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprintln(out, "Run ledger migration commands")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage: catalog migrate [-ledger path] <command>")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  up              Apply all pending migrations")
	fmt.Fprintln(out, "  down            Roll back one migration")
	fmt.Fprintln(out, "  status          Show current and latest migration version")
	fmt.Fprintln(out, "  to <N>          Migrate up or down to version N")
	fmt.Fprintln(out, "  force <N>       Force migration version to N (recovery only)")
	fmt.Fprintln(out, "  help            Show this help message")
}
