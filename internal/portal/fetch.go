package portal

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"marksbot/internal/components/assert"
	"marksbot/internal/components/telemetry"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/time/rate"
)

const (
	report_fetcher_fetch = "fetcher.fetch"
)

var tracer = otel.Tracer("marksbot/portal")

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// FetchError is returned when a results page could not be fetched, Status is
// 0 for transport failures.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Err.Error())
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type FetcherOptions struct {
	// Timeout bounds a single page fetch, defaults to 30s.
	Timeout time.Duration
	// RateLimit is the max requests per second sent to the portal, 0 disables it.
	RateLimit float64
}

// Fetcher submits the results search form and parses the returned page.
type Fetcher struct {
	http *resty.Client
	tel  telemetry.API
}

func NewFetcher(opts FetcherOptions, tel telemetry.API) *Fetcher {
	assert.NotNil(tel, "tel")

	tel = telemetry.NewScopedAPI("portal", tel)

	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 30
	}

	client := resty.New()
	// the portal's certificate chain does not validate
	client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	client.SetHeader("user-agent", userAgent)
	client.SetTimeout(opts.Timeout)

	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(client, tel)

	return &Fetcher{
		http: client,
		tel:  tel,
	}
}

// Fetch POSTs form to endpoint and returns the parsed response. The body is
// always decoded as UTF-8 since the portal does not declare its charset correctly.
func (f *Fetcher) Fetch(ctx context.Context, endpoint string, form map[string]string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "fetcher:Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", endpoint))

	res, err := f.http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		f.tel.ReportWarning(report_fetcher_fetch, fmt.Errorf("request: %w", err), endpoint)
		return nil, &FetchError{URL: endpoint, Err: err}
	}
	if !res.IsSuccess() {
		span.SetStatus(codes.Error, "unexpected status")
		f.tel.ReportWarning(report_fetcher_fetch, fmt.Errorf("unexpected status: %s", res.Status()), endpoint)
		return nil, &FetchError{URL: endpoint, Status: res.StatusCode()}
	}

	body := unicode.UTF8.NewDecoder().Reader(bytes.NewReader(res.Body()))
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		f.tel.ReportBroken(report_fetcher_fetch, fmt.Errorf("parse: %w", err), endpoint)
		return nil, &FetchError{URL: endpoint, Status: res.StatusCode(), Err: err}
	}
	doc.Url, _ = url.Parse(endpoint)

	return doc, nil
}
