package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/andrfilipenk/new-sub004/errors"
	"github.com/andrfilipenk/new-sub004/schema/backup"
)

var backupKind string

// BackupCmd represents the backup command
var BackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list and restore schema/data backups",
	Long: `Manage schema and data backups for entity types.

Backups are JSON artifacts under the configured backup directory, one
subdirectory per entity type. A full backup carries both the table DDL
and the row data; sync runs take full backups before destructive changes.

Examples:
  eavctl backup create product             # Full backup of one type
  eavctl backup create product --kind data # Row data only
  eavctl backup list                       # All backups, newest first
  eavctl backup restore <id>               # Restore one backup
  eavctl backup sweep                      # Remove expired backups`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create TYPE",
	Short: "Create a backup for one entity type",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:   "list [TYPE]",
	Short: "List backups, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore ID",
	Short: "Restore a backup by its identifier",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupRestore,
}

var backupSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove backups past the retention window",
	Args:  cobra.NoArgs,
	RunE:  runBackupSweep,
}

func init() {
	BackupCmd.AddCommand(backupCreateCmd)
	BackupCmd.AddCommand(backupListCmd)
	BackupCmd.AddCommand(backupRestoreCmd)
	BackupCmd.AddCommand(backupSweepCmd)

	backupCreateCmd.Flags().StringVarP(&backupKind, "kind", "k", "full", "Backup kind (schema/data/full)")
	backupCreateCmd.Flags().BoolP("json", "j", false, "Output record as JSON")
	backupListCmd.Flags().BoolP("json", "j", false, "Output records as JSON")
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	kind, err := backup.ParseKind(backupKind)
	if err != nil {
		return err
	}

	database, cfg, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := commandContext(cfg)
	defer cancel()
	et, err := newRegistry(database).Get(ctx, args[0])
	if err != nil {
		return errors.Wrapf(err, "unknown entity type %s", args[0])
	}

	record, err := newBackupManager(database, cfg).Create(ctx, et, kind)
	if err != nil {
		return errors.Wrapf(err, "failed to back up entity type %s", args[0])
	}

	if shouldOutputJSON(cmd) {
		return outputJSON(record)
	}
	pterm.Success.Printf("Backup %s created (%s, %d bytes)\n", record.ID, record.Kind, record.Size)
	fmt.Printf("Path: %s\n", record.Path)
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	database, cfg, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	typeCode := ""
	if len(args) > 0 {
		typeCode = args[0]
	}

	records, err := newBackupManager(database, cfg).List(typeCode)
	if err != nil {
		return errors.Wrap(err, "failed to list backups")
	}

	if shouldOutputJSON(cmd) {
		return outputJSON(records)
	}

	if len(records) == 0 {
		fmt.Println("No backups found")
		return nil
	}
	fmt.Printf("%-38s %-16s %-8s %-22s %s\n", "ID", "TYPE", "KIND", "CREATED", "SIZE")
	for _, record := range records {
		fmt.Printf("%-38s %-16s %-8s %-22s %d\n",
			record.ID, record.TypeCode, record.Kind,
			record.CreatedAt.Format("2006-01-02 15:04:05"), record.Size)
	}
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	database, cfg, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	manager := newBackupManager(database, cfg)
	record, err := manager.Find(args[0])
	if err != nil {
		return errors.Wrapf(err, "backup %s not found", args[0])
	}

	ctx, cancel := commandContext(cfg)
	defer cancel()
	if err := manager.Restore(ctx, record.ID); err != nil {
		return errors.Wrapf(err, "failed to restore backup %s", record.ID)
	}
	pterm.Success.Printf("Restored backup %s for entity type %s\n", record.ID, record.TypeCode)
	return nil
}

func runBackupSweep(cmd *cobra.Command, args []string) error {
	database, cfg, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	removed, err := newBackupManager(database, cfg).Sweep()
	if err != nil {
		return errors.Wrap(err, "failed to sweep backups")
	}
	if removed == 0 {
		fmt.Println("No backups past retention")
		return nil
	}
	pterm.Success.Printf("Removed %d expired backup(s)\n", removed)
	return nil
}
