package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/andrfilipenk/new-sub004/errors"
	"github.com/andrfilipenk/new-sub004/schema/migration"
	"github.com/andrfilipenk/new-sub004/schema/sync"
)

var (
	syncStrategy string
	syncDryRun   bool
	syncForce    bool
	syncYes      bool
	syncNoBackup bool
)

// SyncCmd represents the sync command
var SyncCmd = &cobra.Command{
	Use:   "sync TYPE",
	Short: "Synchronize the physical schema with a declared entity type",
	Long: `Synchronize the physical database schema with a declared entity type.

A sync run analyzes drift, generates a migration, validates its risk,
takes a backup before destructive changes, and applies the migration.
Migrations above the auto-approve risk threshold require confirmation.

Strategies:
  additive - Only create tables, columns and indexes (default)
  full     - Also drop and rebuild, gated by backup and confirmation
  dry_run  - Generate and validate without touching the schema

Examples:
  eavctl sync product                      # Additive sync
  eavctl sync product --dry-run            # Preview without applying
  eavctl sync product --strategy full      # Allow destructive operations
  eavctl sync product --strategy full --yes  # Approve prompts automatically`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	SyncCmd.Flags().StringVarP(&syncStrategy, "strategy", "s", "additive", "Sync strategy (additive/full/dry_run)")
	SyncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Preview the migration without applying it")
	SyncCmd.Flags().BoolVar(&syncForce, "force", false, "Allow destructive changes without a backup")
	SyncCmd.Flags().BoolVarP(&syncYes, "yes", "y", false, "Approve confirmation prompts automatically")
	SyncCmd.Flags().BoolVar(&syncNoBackup, "no-backup", false, "Skip the automatic pre-sync backup")
	SyncCmd.Flags().BoolP("json", "j", false, "Output result as JSON")
}

func runSync(cmd *cobra.Command, args []string) error {
	strategy, err := migration.ParseStrategy(syncStrategy)
	if err != nil {
		return err
	}
	if syncDryRun {
		strategy = migration.StrategyDryRun
	}

	database, cfg, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	engine := newSyncEngine(database, cfg)
	useJSON := shouldOutputJSON(cmd)

	opts := sync.Options{
		Strategy:   strategy,
		AutoBackup: cfg.Sync.AutoBackup && !syncNoBackup,
		Force:      syncForce,
		Confirm: func(m *migration.Migration, v *migration.ValidationResult) bool {
			if syncYes {
				return true
			}
			if useJSON {
				// Non-interactive output cannot prompt.
				return false
			}
			return confirmMigration(m, v)
		},
	}

	ctx, cancel := commandContext(cfg)
	defer cancel()
	result, err := engine.Sync(ctx, args[0], opts)
	if err != nil {
		return errors.Wrapf(err, "sync failed for entity type %s", args[0])
	}

	if useJSON {
		return outputJSON(result)
	}
	printSyncResult(result, strategy)
	if !result.Success {
		return errors.Newf("sync did not complete for entity type %s", args[0])
	}
	return nil
}

// confirmMigration shows the pending migration and asks the operator.
func confirmMigration(m *migration.Migration, v *migration.ValidationResult) bool {
	pterm.Warning.Printf("Migration %s requires approval (risk %d, %s)\n", m.Name, v.RiskScore, v.RiskLevel)
	for _, warning := range v.Warnings {
		pterm.Warning.Printf("  %s\n", warning)
	}
	fmt.Println()
	for _, stmt := range m.UpSQL {
		fmt.Printf("  %s\n", stmt)
	}
	fmt.Println()

	approved, _ := pterm.DefaultInteractiveConfirm.
		WithDefaultText("Apply this migration?").
		Show()
	return approved
}

func printSyncResult(result *sync.Result, strategy migration.Strategy) {
	if result.InSync {
		pterm.Success.Printf("%s: schema already in sync (%s)\n", result.TypeCode, result.Duration.Round(time.Millisecond))
		return
	}

	if strategy == migration.StrategyDryRun {
		pterm.Info.Printf("%s: dry run, nothing applied\n", result.TypeCode)
		if result.Migration != nil {
			fmt.Println()
			for _, stmt := range result.Migration.UpSQL {
				fmt.Printf("  %s\n", stmt)
			}
			fmt.Println()
		}
		if result.Validation != nil {
			fmt.Printf("Risk:         %d (%s)\n", result.Validation.RiskScore, result.Validation.RiskLevel)
			fmt.Printf("Auto-approve: %v\n", result.Validation.AutoApprove)
			for _, e := range result.Validation.Errors {
				pterm.Error.Printf("  %s\n", e)
			}
			for _, w := range result.Validation.Warnings {
				pterm.Warning.Printf("  %s\n", w)
			}
		}
		return
	}

	if result.BackupID != "" {
		pterm.Info.Printf("Backup created: %s\n", result.BackupID)
	}
	for _, e := range result.Errors {
		pterm.Error.Println(e)
	}
	if result.Success {
		if len(result.Applied) == 0 {
			pterm.Success.Printf("%s: nothing to apply\n", result.TypeCode)
		} else {
			pterm.Success.Printf("%s: applied %s (%s)\n", result.TypeCode, result.Applied[0], result.Duration.Round(time.Millisecond))
		}
	} else {
		pterm.Error.Printf("%s: sync failed\n", result.TypeCode)
	}
}
