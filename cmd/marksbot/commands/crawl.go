package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"marksbot/internal/components/telemetry"
	"marksbot/internal/portal"
	"marksbot/pkg/serviceutil"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	crawlDepartment *string
	crawlYear       *string
	crawlSeason     *string
	crawlRateLimit  *float64
)

func init() {
	crawlDepartment = crawlCmd.Flags().String("department", "-1", "The department id or name, -1 for all departments.")
	crawlYear = crawlCmd.Flags().String("year", fmt.Sprint(time.Now().Year()), "The academic year.")
	crawlSeason = crawlCmd.Flags().String("season", "-1", "The season id or name, 1, 2 or -1 for both.")
	crawlRateLimit = crawlCmd.Flags().Float64("rate-limit", 0, "Max requests per second sent to the portal.")
	rootCmd.AddCommand(crawlCmd)
}

var crawlCmd = &cobra.Command{
	Use:   "crawl [--department <id>] [--year <year>] [--season <id>]",
	Short: "Crawls the results portal once and prints the files found.",
	Run: func(cmd *cobra.Command, args []string) {
		department, ok := portal.ResolveOption(portal.Departments, *crawlDepartment)
		if !ok {
			serviceutil.Fatal("unknown department", fmt.Errorf("%q", *crawlDepartment))
		}
		season, ok := portal.ResolveOption(portal.Seasons, *crawlSeason)
		if !ok {
			serviceutil.Fatal("unknown season", fmt.Errorf("%q", *crawlSeason))
		}
		slog.Info("crawling", "department", department.Label, "year", *crawlYear, "season", season.Label)

		tel := telemetry.SlogAPI{}
		fetcher := portal.NewFetcher(portal.FetcherOptions{RateLimit: *crawlRateLimit}, tel)
		crawler, err := portal.NewCrawler(fetcher, portal.CrawlerOptions{}, tel)
		if err != nil {
			serviceutil.Fatal("failed to create crawler", err)
		}

		entries, err := crawler.Crawl(cmd.Context(), portal.Query{
			DepartmentID: department.Value,
			Year:         *crawlYear,
			Season:       season.Value,
		})
		if errors.Is(err, portal.ErrNoResults) {
			fmt.Println("no results.")
			return
		}
		if err != nil {
			serviceutil.Fatal("failed to crawl", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"#", "Title", "Url"})
		for i, e := range entries {
			t.AppendRow(table.Row{i + 1, e.Title, e.URL})
		}
		t.AppendFooter(table.Row{"", "Total", len(entries)})

		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
