package commands

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrfilipenk/new-sub004/eav/types"
	"github.com/andrfilipenk/new-sub004/errors"
)

// DbCmd represents the db command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database operations and statistics",
	Long: `Database operations for the EAV engine.

Examples:
  eavctl db stats    # Show database statistics`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Args:  cobra.NoArgs,
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	database, cfg, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := commandContext(cfg)
	defer cancel()

	entityTypes, err := countRows(ctx, database, "eav_entity_type")
	if err != nil {
		return err
	}
	attributes, err := countRows(ctx, database, "eav_attribute")
	if err != nil {
		return err
	}
	entities, err := countRows(ctx, database, "eav_entity")
	if err != nil {
		return err
	}
	cacheEntries, err := countRows(ctx, database, "eav_cache")
	if err != nil {
		return err
	}
	migrations, err := countRows(ctx, database, "eav_migrations")
	if err != nil {
		return err
	}

	fmt.Printf("Database Statistics\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:      %s\n", cfg.Database.Path)
	fmt.Printf("Entity Types:       %d\n", entityTypes)
	fmt.Printf("Attributes:         %d\n", attributes)
	fmt.Printf("Entities:           %d\n", entities)
	fmt.Printf("Cache Entries:      %d\n", cacheEntries)
	fmt.Printf("Applied Migrations: %d\n", migrations)
	fmt.Println()

	fmt.Printf("Value Rows by Backend\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	for _, backend := range types.AllBackendTypes {
		table := backend.ValueTable(cfg.EAV.TablePrefix)
		rows, err := countRows(ctx, database, table)
		if err != nil {
			return err
		}
		fmt.Printf("%-20s %d\n", table+":", rows)
	}
	fmt.Println()
	return nil
}

func countRows(ctx context.Context, database *sql.DB, table string) (int64, error) {
	var n int64
	// Table names come from migrations and backend types, never user input.
	err := database.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", table)).Scan(&n)
	if err != nil && err != sql.ErrNoRows {
		return 0, errors.Wrapf(err, "failed to count rows in %s", table)
	}
	return n, nil
}
