package portal

import (
	"context"
	"errors"
	"fmt"
	"marksbot/internal/components/telemetry"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

// renderResultsPage renders a results page in the portal's markup with one
// row per title and a pagination table holding links (if any).
func renderResultsPage(prefix string, count int, links []string) string {
	var out strings.Builder
	out.WriteString(`<html><body><table border="1"><tr>`)
	out.WriteString(`<th>المادة</th><th>القسم</th><th>السنة</th><th>العام</th><th>الفصل</th><th>المدرس</th><th>الملف</th></tr>`)
	for i := 0; i < count; i++ {
		fmt.Fprintf(
			&out,
			`<tr><td>%s %d</td><td>-</td><td>-</td><td>-</td><td>-</td><td>-</td><td><a href="files/%s-%d.pdf">تحميل</a></td></tr>`,
			prefix, i, prefix, i,
		)
	}
	out.WriteString(`</table>`)
	if len(links) > 0 {
		out.WriteString(`<table align="center" width="100%" border="0" dir="rtl"><tr><td>`)
		for i, l := range links {
			fmt.Fprintf(&out, `<a class="blankblueLink2" href="%s">%d</a> `, l, i+2)
		}
		out.WriteString(`</td></tr></table>`)
	}
	out.WriteString(`</body></html>`)
	return out.String()
}

type fakeFetcher struct {
	pages map[string]string
	fail  map[string]bool
	calls []string
	forms []map[string]string
}

func (f *fakeFetcher) Fetch(ctx context.Context, endpoint string, form map[string]string) (*goquery.Document, error) {
	f.calls = append(f.calls, endpoint)
	f.forms = append(f.forms, form)

	if f.fail[endpoint] {
		return nil, &FetchError{URL: endpoint, Err: errors.New("connection refused")}
	}
	page, ok := f.pages[endpoint]
	if !ok {
		return nil, &FetchError{URL: endpoint, Status: 404}
	}
	return goquery.NewDocumentFromReader(strings.NewReader(page))
}

func newTestCrawler(t testing.TB, fetcher PageFetcher) Crawler {
	crawler, err := NewCrawler(fetcher, CrawlerOptions{}, telemetry.SlogAPI{})
	if err != nil {
		t.Fatal(err)
	}
	return crawler
}

func entryTitles(entries []Entry) []string {
	titles := make([]string, len(entries))
	for i, e := range entries {
		titles[i] = e.Title
	}
	return titles
}

func expectedTitles(prefix string, count int) []string {
	titles := make([]string, count)
	for i := range titles {
		titles[i] = fmt.Sprintf("%s %d", prefix, i)
	}
	return titles
}

const (
	pageA = "https://damascusuniversity.edu.sy/ite/index.php?page=2"
	pageB = "https://damascusuniversity.edu.sy/ite/index.php?page=3"
	pageC = "https://damascusuniversity.edu.sy/ite/index.php?page=4"
)

var testQuery = Query{DepartmentID: "-1", Year: "2024", Season: "1"}

func TestCrawlAggregatesPagination(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[string]string{
			Endpoint: renderResultsPage("p1", 14, []string{"index.php?page=2"}),
			pageA:    renderResultsPage("pA", 3, nil),
		},
	}
	crawler := newTestCrawler(t, fetcher)

	entries, err := crawler.Crawl(context.Background(), testQuery)
	if err != nil {
		t.Fatal(err)
	}

	require.Len(t, entries, 17)
	require.Equal(t, append(expectedTitles("p1", 14), expectedTitles("pA", 3)...), entryTitles(entries))
	require.Equal(t, "https://damascusuniversity.edu.sy/ite/files/pA-2.pdf", entries[16].URL)

	require.Equal(t, []string{Endpoint, pageA}, fetcher.calls)
	for _, form := range fetcher.forms {
		require.Equal(t, testQuery.FormData(), form)
	}
}

func TestCrawlSkipsFailedPages(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[string]string{
			Endpoint: renderResultsPage("p1", 2, []string{
				"index.php?page=2",
				"index.php?page=3",
				"index.php?page=4",
			}),
			pageA: renderResultsPage("pA", 2, nil),
			pageC: renderResultsPage("pC", 1, nil),
		},
		fail: map[string]bool{pageB: true},
	}
	crawler := newTestCrawler(t, fetcher)

	entries, err := crawler.Crawl(context.Background(), testQuery)
	if err != nil {
		t.Fatal(err)
	}

	expected := append(expectedTitles("p1", 2), expectedTitles("pA", 2)...)
	expected = append(expected, expectedTitles("pC", 1)...)
	require.Equal(t, expected, entryTitles(entries))
	require.Equal(t, []string{Endpoint, pageA, pageB, pageC}, fetcher.calls)
}

func TestCrawlIsDeterministic(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[string]string{
			Endpoint: renderResultsPage("p1", 5, []string{"index.php?page=3", "index.php?page=2"}),
			pageA:    renderResultsPage("pA", 4, nil),
			pageB:    renderResultsPage("pB", 4, nil),
		},
	}
	crawler := newTestCrawler(t, fetcher)

	first, err := crawler.Crawl(context.Background(), testQuery)
	if err != nil {
		t.Fatal(err)
	}
	second, err := crawler.Crawl(context.Background(), testQuery)
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, first, second)
	// link encounter order, not page number order
	expected := append(expectedTitles("p1", 5), expectedTitles("pB", 4)...)
	expected = append(expected, expectedTitles("pA", 4)...)
	require.Equal(t, expected, entryTitles(first))
}

func TestCrawlFollowsFirstPageLinksOnly(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[string]string{
			Endpoint: renderResultsPage("p1", 1, []string{"index.php?page=2"}),
			pageA:    renderResultsPage("pA", 1, []string{"index.php?page=3"}),
			pageB:    renderResultsPage("pB", 1, nil),
		},
	}
	crawler := newTestCrawler(t, fetcher)

	entries, err := crawler.Crawl(context.Background(), testQuery)
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, []string{"p1 0", "pA 0"}, entryTitles(entries))
	require.Equal(t, []string{Endpoint, pageA}, fetcher.calls)
}

func TestCrawlNoResults(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[string]string{
			Endpoint: string(emptyPage),
		},
	}
	crawler := newTestCrawler(t, fetcher)

	entries, err := crawler.Crawl(context.Background(), testQuery)
	require.ErrorIs(t, err, ErrNoResults)
	require.Nil(t, entries)

	var crawlErr *CrawlError
	require.False(t, errors.As(err, &crawlErr))
	// pagination is not consulted when the first page is empty
	require.Equal(t, []string{Endpoint}, fetcher.calls)
}

func TestCrawlFirstPageFailure(t *testing.T) {
	fetcher := &fakeFetcher{
		fail: map[string]bool{Endpoint: true},
	}
	crawler := newTestCrawler(t, fetcher)

	entries, err := crawler.Crawl(context.Background(), testQuery)
	require.Error(t, err)
	require.Nil(t, entries)
	require.NotErrorIs(t, err, ErrNoResults)

	var crawlErr *CrawlError
	require.True(t, errors.As(err, &crawlErr))
	require.Equal(t, testQuery, crawlErr.Query)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Equal(t, Endpoint, fetchErr.URL)
}

func TestCrawlCancelled(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[string]string{
			Endpoint: renderResultsPage("p1", 1, []string{"index.php?page=2"}),
			pageA:    renderResultsPage("pA", 1, nil),
		},
	}
	crawler := newTestCrawler(t, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := crawler.Crawl(ctx, testQuery)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{Endpoint}, fetcher.calls)
}
