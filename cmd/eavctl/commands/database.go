package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/andrfilipenk/new-sub004/config"
	"github.com/andrfilipenk/new-sub004/db"
	"github.com/andrfilipenk/new-sub004/eav"
	"github.com/andrfilipenk/new-sub004/eav/cache"
	"github.com/andrfilipenk/new-sub004/eav/storage"
	"github.com/andrfilipenk/new-sub004/errors"
	"github.com/andrfilipenk/new-sub004/logger"
	"github.com/andrfilipenk/new-sub004/schema"
	"github.com/andrfilipenk/new-sub004/schema/backup"
	"github.com/andrfilipenk/new-sub004/schema/migration"
	"github.com/andrfilipenk/new-sub004/schema/sync"
)

// openDatabase opens and migrates the engine database. If dbPath is empty,
// the path comes from configuration. Uses logger.Logger for db operations.
func openDatabase(dbPath string) (*sql.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load configuration")
	}
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, cfg, nil
}

// newRegistry builds the entity type registry over an open database.
func newRegistry(database *sql.DB) *eav.Registry {
	return eav.NewRegistry(storage.NewMetadataStore(database, logger.Logger), logger.Logger)
}

// newEntityManager wires the full entity manager from configuration.
func newEntityManager(database *sql.DB, cfg *config.Config) *eav.Manager {
	cacheStore := storage.NewCacheStore(database, logger.Logger)
	cacheManager := cache.NewManager(cacheStore, cfg.Cache.KeyPrefix,
		time.Duration(cfg.Cache.DefaultTTLSeconds)*time.Second, logger.Logger)
	return eav.NewManager(database, cfg.EAV.TablePrefix, cfg.EAV.Query.MaxJoins, cacheManager, logger.Logger)
}

// newAnalyzer builds the schema drift analyzer over an open database.
func newAnalyzer(database *sql.DB, cfg *config.Config, registry *eav.Registry) *schema.Analyzer {
	introspector := schema.NewSQLiteIntrospector(database)
	comparator := schema.NewComparator(introspector, cfg.EAV.TablePrefix)
	return schema.NewAnalyzer(registry, comparator, logger.Logger)
}

// newBackupManager builds the backup manager over the real filesystem.
func newBackupManager(database *sql.DB, cfg *config.Config) *backup.Manager {
	return backup.NewManager(afero.NewOsFs(), database, cfg.Backup.Dir,
		cfg.EAV.TablePrefix, cfg.Backup.RetentionDays, logger.Logger)
}

// newSyncEngine wires the synchronization engine and its collaborators.
func newSyncEngine(database *sql.DB, cfg *config.Config) *sync.Engine {
	registry := newRegistry(database)
	return sync.NewEngine(
		registry,
		newAnalyzer(database, cfg, registry),
		migration.NewGenerator(cfg.EAV.TablePrefix, logger.Logger),
		migration.NewValidator(logger.Logger),
		migration.NewExecutor(database, logger.Logger),
		newBackupManager(database, cfg),
		logger.Logger,
	)
}

// commandContext bounds one command's storage work by the configured
// query timeout. A zero or negative timeout leaves the context unbounded.
func commandContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	timeout := time.Duration(cfg.Database.QueryTimeoutSeconds) * time.Second
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

// shouldOutputJSON reports whether a command should emit JSON, honoring a
// command-local --json flag over the global one.
func shouldOutputJSON(cmd *cobra.Command) bool {
	if cmd.Flags().Changed("json") {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}
	globalFlag, _ := cmd.Root().PersistentFlags().GetBool("json")
	return globalFlag
}

// outputJSON prints v as indented JSON on stdout.
func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}
	fmt.Println(string(data))
	return nil
}
