/*
main.go - Command-line reporting tool

PURPOSE:
  budgetctl exports the same budget reports the HTTP API serves, straight
  from the database file. Useful for the production office when the server
  is not running, and for cron jobs that archive weekly cost reports.

COMMANDS:
  budgetctl projects                         List project ids in the database
  budgetctl export budget                    Budget detail report
  budgetctl export cost-control              Cost-control report with status
  budgetctl export executive                 One-line executive summary

FLAGS:
  --db       SQLite database path (default: budget.db, or DATABASE_PATH)
  --project  Project id (required for export)
  --format   csv or xlsx (default: csv)
  --out      Output file (default: stdout; xlsx requires --out)

EXAMPLES:
  budgetctl --db=./data/budget.db projects
  budgetctl export cost-control --project=prod-042 --format=xlsx --out=costs.xlsx
*/
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/warp/budget-engine/ledger"
	"github.com/warp/budget-engine/report"
	"github.com/warp/budget-engine/store/sqlite"
)

var (
	dbPath    string
	projectID string
	format    string
	outPath   string
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "budgetctl",
		Short:         "Production budget reporting from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", envString("DATABASE_PATH", "budget.db"), "SQLite database path")

	export := &cobra.Command{
		Use:   "export",
		Short: "Export a report as CSV or XLSX",
	}
	export.PersistentFlags().StringVar(&projectID, "project", "", "project id (required)")
	export.PersistentFlags().StringVar(&format, "format", "csv", "output format: csv or xlsx")
	export.PersistentFlags().StringVar(&outPath, "out", "", "output file (default: stdout)")

	for _, kind := range []string{"budget", "cost-control", "executive"} {
		kind := kind
		export.AddCommand(&cobra.Command{
			Use:   kind,
			Short: fmt.Sprintf("Export the %s report", kind),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runExport(cmd.Context(), kind)
			},
		})
	}

	root.AddCommand(export, &cobra.Command{
		Use:   "projects",
		Short: "List project ids in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjects(cmd.Context())
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runProjects(ctx context.Context) error {
	store, err := sqlite.New(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	projects, err := store.ListProjects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		fmt.Println(p)
	}
	return nil
}

func runExport(ctx context.Context, kind string) error {
	if projectID == "" {
		return fmt.Errorf("--project is required")
	}
	if format != "csv" && format != "xlsx" {
		return fmt.Errorf("--format must be csv or xlsx")
	}
	if format == "xlsx" && outPath == "" {
		return fmt.Errorf("--out is required for xlsx output")
	}

	store, err := sqlite.New(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	agg := &report.Aggregator{Store: store}
	summary, err := agg.Summarize(ctx, ledger.ProjectID(projectID))
	if err != nil {
		return err
	}

	var header []string
	var rows [][]string
	switch kind {
	case "budget":
		header, rows = report.BudgetHeader, report.BudgetRows(summary)
	case "cost-control":
		header, rows = report.CostControlHeader, report.CostControlRows(summary)
	case "executive":
		header, rows = report.ExecutiveHeader, [][]string{report.ExecutiveRow(summary)}
	}

	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if format == "xlsx" {
		return report.WriteXLSX(w, header, rows)
	}
	return report.WriteCSV(w, header, rows)
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
