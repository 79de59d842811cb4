package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/doorplate-crawler/internal/catalog"
	"github.com/user/doorplate-crawler/internal/crawler"
	"github.com/user/doorplate-crawler/internal/entity"
	"github.com/user/doorplate-crawler/internal/export"
	"github.com/user/doorplate-crawler/internal/usecase"
	"github.com/user/doorplate-crawler/pkg/metrics"
)

type crawlFlags struct {
	city        string
	start       string
	end         string
	kind        string
	districts   []string
	csv         string
	noDB        bool
	interactive bool
}

var crawlOpts crawlFlags

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run one batch and print a summary",
	Example: `  doorplate crawl --start 114-09-01 --end 114-11-30
  doorplate crawl --start 114-09-01 --end 114-11-30 --districts 松山區,信義區 --csv out/ --no-db`,
	RunE: runCrawl,
}

func init() {
	f := crawlCmd.Flags()
	f.StringVar(&crawlOpts.city, "city", "", "City code (defaults to CITY_CODE)")
	f.StringVar(&crawlOpts.start, "start", "", "Start date, e.g. 114-09-01")
	f.StringVar(&crawlOpts.end, "end", "", "End date, e.g. 114-11-30")
	f.StringVar(&crawlOpts.kind, "kind", "1", "Register kind code")
	f.StringSliceVar(&crawlOpts.districts, "districts", nil, "Districts to query (default: all)")
	f.StringVar(&crawlOpts.csv, "csv", "", "Write records to this CSV file or directory")
	f.BoolVar(&crawlOpts.noDB, "no-db", false, "Do not store results in PostgreSQL")
	f.BoolVar(&crawlOpts.interactive, "interactive", false, "Ask on the terminal when captcha recognition fails")
	_ = crawlCmd.MarkFlagRequired("start")
	_ = crawlCmd.MarkFlagRequired("end")
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)

	var solver crawler.ManualSolver
	if crawlOpts.interactive {
		solver = newTerminalSolver("", cmd.InOrStdin(), cmd.ErrOrStderr())
	}

	runner, err := newRunner(cfg, m, solver)
	if err != nil {
		return err
	}

	deps := usecase.CrawlDeps{
		Catalog: catalog.Default(),
		Runner:  runner,
		Metrics: m,
	}
	if !crawlOpts.noDB {
		pool, err := connectPostgres(ctx, cfg)
		if err != nil {
			return fmt.Errorf("%w (use --no-db to crawl without storing)", err)
		}
		defer pool.Close()
		addPostgres(&deps, pool, cfg)
	}

	req := crawlOpts.request(cfg.CityCode)
	report, err := usecase.NewCrawlUseCase(deps).Crawl(ctx, req)
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), report)

	if crawlOpts.csv != "" {
		path, err := export.SaveCSV(crawlOpts.csv, report.Outcome.Records, time.Now())
		if err != nil {
			return err
		}
		if path != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "CSV written to %s\n", path)
		} else {
			slog.Info("No records, CSV not written")
		}
	}

	if !report.Outcome.Success {
		return fmt.Errorf("batch failed: %s", report.Outcome.ErrorMessage)
	}
	return nil
}

func (f crawlFlags) request(defaultCity string) usecase.CrawlRequest {
	city := f.city
	if city == "" {
		city = defaultCity
	}
	return usecase.CrawlRequest{
		CityCode:  city,
		Range:     entity.DateRange{Start: f.start, End: f.end},
		EditKind:  f.kind,
		Districts: f.districts,
		SaveToDB:  !f.noDB,
		Trigger:   "cli",
	}
}

func printSummary(w io.Writer, report *usecase.CrawlReport) {
	out := report.Outcome
	fmt.Fprintf(w, "%s  batch=%d  duration=%s\n", report.City.Name, report.BatchID, report.Duration.Round(time.Millisecond))
	for _, r := range out.Results {
		switch r.Status {
		case entity.DistrictStatusFailed:
			fmt.Fprintf(w, "  %-6s failed  %s\n", r.DistrictName, r.ErrorMessage)
		default:
			fmt.Fprintf(w, "  %-6s %d\n", r.DistrictName, r.RecordCount)
		}
	}
	fmt.Fprintf(w, "total=%d failed=%d success=%t\n", out.TotalCount(), len(out.FailedDistricts()), out.Success)
	if out.ErrorMessage != "" {
		fmt.Fprintf(w, "error: %s\n", out.ErrorMessage)
	}
}
