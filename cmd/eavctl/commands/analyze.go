package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/andrfilipenk/new-sub004/errors"
	"github.com/andrfilipenk/new-sub004/schema"
)

var analyzeAll bool

// AnalyzeCmd represents the analyze command
var AnalyzeCmd = &cobra.Command{
	Use:   "analyze [TYPE]",
	Short: "Compare declared entity types against the physical schema",
	Long: `Compare declared entity types against the physical database schema.

Reports every difference with its severity, required action and risk score,
plus an aggregate risk level and recommendations for the sync run.

Examples:
  eavctl analyze product           # Analyze one entity type
  eavctl analyze --all             # Analyze every registered type
  eavctl analyze product --json    # Machine-readable report`,
	RunE: runAnalyze,
}

func init() {
	AnalyzeCmd.Flags().BoolVar(&analyzeAll, "all", false, "Analyze all registered entity types")
	AnalyzeCmd.Flags().BoolP("json", "j", false, "Output report as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if !analyzeAll && len(args) == 0 {
		return errors.New("entity type code required (or use --all)")
	}

	database, cfg, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	registry := newRegistry(database)
	analyzer := newAnalyzer(database, cfg, registry)
	ctx, cancel := commandContext(cfg)
	defer cancel()

	var reports []*schema.AnalysisReport
	if analyzeAll {
		reports, err = analyzer.AnalyzeAll(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to analyze entity types")
		}
	} else {
		report, err := analyzer.Analyze(ctx, args[0])
		if err != nil {
			return errors.Wrapf(err, "failed to analyze entity type %s", args[0])
		}
		reports = []*schema.AnalysisReport{report}
	}

	if shouldOutputJSON(cmd) {
		if len(reports) == 1 && !analyzeAll {
			return outputJSON(reports[0])
		}
		return outputJSON(reports)
	}

	for _, report := range reports {
		printReport(report)
	}
	return nil
}

func printReport(report *schema.AnalysisReport) {
	if report.InSync() {
		pterm.Success.Printf("%s: schema is in sync\n", report.TypeCode)
		return
	}

	pterm.DefaultSection.Printf("%s", report.TypeCode)
	fmt.Printf("Risk:            %d (%s)\n", report.RiskScore, report.RiskLevel)
	fmt.Printf("Differences:     %d\n", len(report.Differences.Differences))
	fmt.Println()

	for _, diff := range report.Differences.Differences {
		line := fmt.Sprintf("[%2d] %-20s %s", diff.RiskScore(), diff.Type, diff.Description)
		if diff.IsDestructive() {
			pterm.Warning.Println(line)
		} else {
			pterm.Info.Println(line)
		}
	}

	if len(report.Recommendations) > 0 {
		fmt.Println()
		for _, rec := range report.Recommendations {
			fmt.Printf("  - %s\n", rec)
		}
	}
	fmt.Println()
}
