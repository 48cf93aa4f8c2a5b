package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/forecast-recon/api"
	"github.com/warp/forecast-recon/export"
	"github.com/warp/forecast-recon/ingest"
	"github.com/warp/forecast-recon/recon"
	"github.com/warp/forecast-recon/store"
)

type diffOptions struct {
	format string
	xlsx   string
	save   bool
	label  string
}

func newDiffCmd(a *app) *cobra.Command {
	opts := &diffOptions{}

	cmd := &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Compare two report files",
		Long: `Compares two revisions of a report. Each file is .json (array of points)
or .xlsx (long-format sheet with a header row).

Examples:
  recon diff last_week.xlsx this_week.xlsx
  recon diff old.json new.json --format json
  recon diff old.xlsx new.xlsx --xlsx report.xlsx --save --label "W12"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.diff(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text or json")
	cmd.Flags().StringVar(&opts.xlsx, "xlsx", "", "Also write the report workbook to this path")
	cmd.Flags().BoolVar(&opts.save, "save", false, "Store the run in the configured database")
	cmd.Flags().StringVar(&opts.label, "label", "", "Label for the stored run")
	return cmd
}

func (a *app) diff(cmd *cobra.Command, oldPath, newPath string, opts *diffOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (want text or json)", opts.format)
	}

	analyzer, err := a.analyzer()
	if err != nil {
		return err
	}
	cal := analyzer.Config().Calendar

	oldPoints, err := ingest.ReadFile(oldPath, recon.Old, cal)
	if err != nil {
		return fmt.Errorf("old revision: %w", err)
	}
	newPoints, err := ingest.ReadFile(newPath, recon.New, cal)
	if err != nil {
		return fmt.Errorf("new revision: %w", err)
	}

	ctx := cmd.Context()
	report, err := analyzer.Analyze(ctx, oldPoints, newPoints)
	if err != nil {
		return err
	}

	if opts.xlsx != "" {
		f, err := export.Workbook(report.Stats, report.Changes)
		if err != nil {
			return err
		}
		err = f.SaveAs(opts.xlsx)
		f.Close()
		if err != nil {
			return fmt.Errorf("write workbook: %w", err)
		}
		a.logger.Info("workbook written", zap.String("path", opts.xlsx))
	}

	if opts.save {
		runs, closeStore, err := a.openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		run := store.Run{
			ID:          uuid.NewString(),
			Label:       opts.label,
			OldSource:   filepath.Base(oldPath),
			NewSource:   filepath.Base(newPath),
			RecordCount: report.RecordCount,
			Collisions:  len(report.Collisions),
			Epsilon:     analyzer.Config().Epsilon,
			CreatedAt:   time.Now().UTC(),
			Stats:       report.Stats,
			Changes:     report.Changes,
		}
		if err := runs.SaveRun(ctx, run, oldPoints, newPoints); err != nil {
			return err
		}
		a.logger.Info("run stored", zap.String("run_id", run.ID))
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(api.NewAnalysisDTO(report))
	}
	return printReport(out, report)
}

// printReport writes the change log and the period table as aligned text.
func printReport(w io.Writer, report *recon.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "CHANGES (%d)\n", len(report.Changes))
	fmt.Fprintln(tw, "KIND\tPERIOD\tENTITY\tSUB-ENTITY\tOLD\tNEW\tTARGET")
	for _, c := range report.Changes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Kind, c.Period, c.Entity, c.SubEntity,
			nullString(c.OldValue), nullString(c.NewValue), c.TargetPeriod)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "PERIODS")
	fmt.Fprintln(tw, "PERIOD\tOLD FCST\tNEW FCST\tΔ FCST\tOLD ACT\tNEW ACT\tΔ ACT")
	for _, s := range report.Stats {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Period, s.OldForecast, s.NewForecast, s.ForecastDelta,
			s.OldActual, s.NewActual, s.ActualDelta)
	}

	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "records: %d, forecast delta: %s, actual delta: %s\n",
		report.RecordCount, report.Summary.ForecastDelta, report.Summary.ActualDelta)
	for _, c := range report.Collisions {
		fmt.Fprintf(tw, "warning: duplicate %s point %s in %s revision (%s replaced %s)\n",
			c.Kind, c.Identity, c.Revision, c.Current, c.Previous)
	}
	return tw.Flush()
}

func nullString(v decimal.NullDecimal) string {
	if !v.Valid {
		return "-"
	}
	return v.Decimal.String()
}
