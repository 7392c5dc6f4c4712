package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andrfilipenk/new-sub004/cmd/eavctl/commands"
	"github.com/andrfilipenk/new-sub004/logger"
)

var rootCmd = &cobra.Command{
	Use:   "eavctl",
	Short: "eavctl - EAV storage engine management",
	Long: `eavctl - Entity-attribute-value storage engine management.

eavctl manages entity type definitions, inspects schema drift between the
declared types and the physical database, and applies risk-gated schema
synchronization with backup and rollback.

Available commands:
  types   - List and inspect registered entity types
  entity  - Inspect stored entities
  analyze - Compare declared entity types against the physical schema
  sync    - Synchronize the physical schema with the declared types
  backup  - Create, list and restore schema/data backups
  db      - Database operations and statistics
  version - Show version information

Examples:
  eavctl types list                # Show registered entity types
  eavctl analyze product           # Report schema drift for one type
  eavctl analyze --all             # Report schema drift for all types
  eavctl sync product --dry-run    # Preview the migration a sync would apply
  eavctl sync product --yes        # Apply, approving prompts automatically
  eavctl backup create product     # Snapshot schema and data for one type
  eavctl db stats                  # Show database statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if err := logger.Initialize(jsonOutput, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output machine-readable JSON")

	rootCmd.AddCommand(commands.TypesCmd)
	rootCmd.AddCommand(commands.EntityCmd)
	rootCmd.AddCommand(commands.AnalyzeCmd)
	rootCmd.AddCommand(commands.SyncCmd)
	rootCmd.AddCommand(commands.BackupCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
