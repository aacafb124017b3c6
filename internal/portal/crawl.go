package portal

import (
	"context"
	"errors"
	"fmt"
	"marksbot/internal/components/assert"
	"marksbot/internal/components/telemetry"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_crawler_crawl      = "crawler.crawl"
	report_crawler_pagination = "crawler.pagination"
	report_crawler_entries    = "crawler.entries"
)

// ErrNoResults means the query was well-formed but the portal lists no files for it.
var ErrNoResults = errors.New("portal: no results for the given query")

// CrawlError is returned when the first results page cannot be fetched.
type CrawlError struct {
	Query Query
	Err   error
}

func (e *CrawlError) Error() string {
	return fmt.Sprintf("crawl: %s", e.Err.Error())
}

func (e *CrawlError) Unwrap() error {
	return e.Err
}

// PageFetcher is implemented by Fetcher.
//
// note: fault injection point
type PageFetcher interface {
	Fetch(ctx context.Context, endpoint string, form map[string]string) (*goquery.Document, error)
}

type CrawlerOptions struct {
	// Endpoint is the search form url, defaults to Endpoint.
	Endpoint string
	// BaseUrl is what download links are resolved against, defaults to BaseUrl.
	BaseUrl string
}

// Crawler walks every results page of a query and aggregates the entries.
type Crawler struct {
	fetcher  PageFetcher
	endpoint *url.URL
	base     *url.URL
	tel      telemetry.API
}

func NewCrawler(fetcher PageFetcher, opts CrawlerOptions, tel telemetry.API) (Crawler, error) {
	assert.NotNil(fetcher, "fetcher")
	assert.NotNil(tel, "tel")

	if opts.Endpoint == "" {
		opts.Endpoint = Endpoint
	}
	if opts.BaseUrl == "" {
		opts.BaseUrl = BaseUrl
	}
	endpoint, err := url.Parse(opts.Endpoint)
	if err != nil {
		return Crawler{}, fmt.Errorf("parse endpoint: %w", err)
	}
	base, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return Crawler{}, fmt.Errorf("parse base url: %w", err)
	}

	return Crawler{
		fetcher:  fetcher,
		endpoint: endpoint,
		base:     base,
		tel:      telemetry.NewScopedAPI("portal", tel),
	}, nil
}

// Crawl fetches the first results page for q, then every page linked from
// the first page's pagination table in the order they appear, using the same
// form data for each. Links found on later pages are not followed.
//
// A failure on the first page returns a *CrawlError, a first page without
// rows returns ErrNoResults. Failures on later pages only drop that page's rows.
func (c Crawler) Crawl(ctx context.Context, q Query) ([]Entry, error) {
	ctx, span := tracer.Start(ctx, "crawler:Crawl")
	defer span.End()
	span.SetAttributes(
		attribute.String("department_id", q.DepartmentID),
		attribute.String("year", q.Year),
		attribute.String("season", q.Season),
	)

	form := q.FormData()
	endpoint := c.endpoint.String()

	first, err := c.fetcher.Fetch(ctx, endpoint, form)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch first page")
		telemetry.CrawlPagesTotal.WithLabelValues("failed").Inc()
		telemetry.CrawlsTotal.WithLabelValues("failed").Inc()
		c.tel.ReportWarning(report_crawler_crawl, err, q)
		return nil, &CrawlError{Query: q, Err: err}
	}
	telemetry.CrawlPagesTotal.WithLabelValues("ok").Inc()

	entries := ExtractRows(first, c.base)
	if len(entries) == 0 {
		telemetry.CrawlsTotal.WithLabelValues("empty").Inc()
		return nil, ErrNoResults
	}

	links := ExtractPagination(first, c.endpoint)
	span.SetAttributes(attribute.Int("pages", len(links)+1))

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "crawl cancelled")
			telemetry.CrawlsTotal.WithLabelValues("failed").Inc()
			return nil, &CrawlError{Query: q, Err: err}
		}

		page, err := c.fetcher.Fetch(ctx, link, form)
		if err != nil {
			telemetry.CrawlPagesTotal.WithLabelValues("failed").Inc()
			c.tel.ReportWarning(report_crawler_pagination, err, link)
			continue
		}
		telemetry.CrawlPagesTotal.WithLabelValues("ok").Inc()

		entries = append(entries, ExtractRows(page, c.base)...)
	}

	telemetry.CrawlsTotal.WithLabelValues("ok").Inc()
	c.tel.ReportCount(report_crawler_entries, int64(len(entries)))

	return entries, nil
}
