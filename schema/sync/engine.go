// Package sync orchestrates schema synchronization: analyze the drift,
// back up, generate and validate a migration, obtain approval, execute,
// and record the outcome. Callers must serialize sync runs per entity
// type; the engine takes no lock of its own.
package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/andrfilipenk/new-sub004/errors"
	"github.com/andrfilipenk/new-sub004/schema"
	"github.com/andrfilipenk/new-sub004/schema/backup"
	"github.com/andrfilipenk/new-sub004/schema/migration"
)

// Options steers one sync run.
type Options struct {
	// Strategy selects additive, full or dry_run behavior.
	Strategy migration.Strategy
	// AutoBackup creates a backup before executing. Mandatory for
	// destructive changes unless Force is set.
	AutoBackup bool
	// Force skips the backup requirement for destructive changes.
	Force bool
	// Confirm is consulted when validation does not auto-approve. A nil
	// Confirm rejects everything that is not auto-approved.
	Confirm func(m *migration.Migration, v *migration.ValidationResult) bool
}

// Result records what one sync run did.
type Result struct {
	TypeCode   string                      `json:"entity_type"`
	Strategy   migration.Strategy          `json:"strategy"`
	Success    bool                        `json:"success"`
	InSync     bool                        `json:"in_sync,omitempty"`
	Applied    []string                    `json:"applied,omitempty"`
	Errors     []string                    `json:"errors,omitempty"`
	BackupID   string                      `json:"backup_id,omitempty"`
	Migration  *migration.Migration        `json:"migration,omitempty"`
	Validation *migration.ValidationResult `json:"validation,omitempty"`
	Report     *schema.AnalysisReport      `json:"report,omitempty"`
	Duration   time.Duration               `json:"duration"`
}

// Engine runs the sync state machine.
type Engine struct {
	metadata  schema.Metadata
	analyzer  *schema.Analyzer
	generator *migration.Generator
	validator *migration.Validator
	executor  *migration.Executor
	backups   *backup.Manager
	logger    *zap.SugaredLogger
}

// NewEngine wires the sync collaborators. logger may be nil.
func NewEngine(metadata schema.Metadata, analyzer *schema.Analyzer, generator *migration.Generator, validator *migration.Validator, executor *migration.Executor, backups *backup.Manager, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		metadata:  metadata,
		analyzer:  analyzer,
		generator: generator,
		validator: validator,
		executor:  executor,
		backups:   backups,
		logger:    logger,
	}
}

// Sync reconciles one entity type's live schema with its metadata.
func (e *Engine) Sync(ctx context.Context, typeCode string, opts Options) (*Result, error) {
	start := time.Now()
	result := &Result{TypeCode: typeCode, Strategy: opts.Strategy}
	defer func() { result.Duration = time.Since(start) }()

	dryRun := opts.Strategy == migration.StrategyDryRun

	// Analyze.
	report, err := e.analyzer.Analyze(ctx, typeCode)
	if err != nil {
		return nil, errors.NewSyncError("analyze", []string{typeCode}, err)
	}
	result.Report = report
	if report.InSync() {
		result.Success = true
		result.InSync = true
		return result, nil
	}

	// Generate. Dry-run generates with the full rule set so the caller
	// sees everything a real run would consider.
	genStrategy := opts.Strategy
	if dryRun {
		genStrategy = migration.StrategyFull
	}
	m, err := e.generator.Generate(report.Differences, genStrategy)
	if err != nil {
		return nil, errors.NewSyncError("generate", []string{typeCode}, err)
	}
	if m == nil {
		// Additive strategy filtered every difference out.
		result.Success = true
		return result, nil
	}
	result.Migration = m

	// Backup. Skipped on dry-run; mandatory before destructive changes
	// unless forced.
	if !dryRun && opts.AutoBackup {
		et, err := e.metadata.Get(ctx, typeCode)
		if err != nil {
			return nil, errors.NewSyncError("backup", []string{typeCode}, err)
		}
		record, err := e.backups.Create(ctx, et, backup.KindFull)
		if err != nil {
			return nil, errors.NewSyncError("backup", []string{typeCode}, err)
		}
		result.BackupID = record.ID
	}

	// Validate. Force stands in for a backup at the destructive gate.
	// A dry run previews the gate as the real run would see it: with
	// AutoBackup the real run has a backup by this point.
	hasBackup := result.BackupID != "" || opts.Force
	if dryRun {
		hasBackup = opts.AutoBackup || opts.Force
	}
	validation := e.validator.Validate(m, hasBackup)
	result.Validation = validation
	if !validation.Valid() {
		result.Errors = append(result.Errors, validation.Errors...)
		return result, nil
	}

	if dryRun {
		result.Success = true
		return result, nil
	}

	// Approve.
	if !validation.AutoApprove {
		approved := opts.Confirm != nil && opts.Confirm(m, validation)
		if !approved {
			result.Errors = append(result.Errors, "migration requires confirmation and was not approved")
			return result, nil
		}
	}

	// Execute, restoring this run's backup on failure.
	if err := e.executor.Apply(ctx, m); err != nil {
		result.Errors = append(result.Errors, err.Error())
		if result.BackupID != "" {
			if restoreErr := e.backups.Restore(ctx, result.BackupID); restoreErr != nil {
				result.Errors = append(result.Errors, "restore failed: "+restoreErr.Error())
			} else if e.logger != nil {
				e.logger.Warnw("Sync failed, restored backup",
					"entity_type", typeCode, "backup_id", result.BackupID)
			}
		}
		return result, nil
	}

	result.Success = true
	result.Applied = append(result.Applied, m.Name)

	// Cached metadata predates the schema change; drop it so the next
	// read reloads the declarations.
	if inv, ok := e.metadata.(interface{ Invalidate(code string) }); ok {
		inv.Invalidate(typeCode)
	}
	if e.logger != nil {
		e.logger.Infow("Sync complete",
			"entity_type", typeCode,
			"strategy", opts.Strategy,
			"migration", m.Name,
			"risk_score", validation.RiskScore,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return result, nil
}
