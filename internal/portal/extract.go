package portal

import (
	"marksbot/pkg/htmlutil"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

const (
	resultsTableSelector    = `table[border="1"]`
	paginationTableSelector = `table[align="center"][width="100%"][border="0"][dir="rtl"]`
	paginationLinkSelector  = `a.blankblueLink2`

	// title, department, year, academic year, season, teacher, file
	minResultColumns = 7
	titleColumn      = 0
	downloadColumn   = 6
)

// ExtractRows returns the (title, download url) pairs listed in the results
// table of doc. An empty result means the portal has no data for the query.
//
// Rows with too few columns, an empty title, or no usable link in the
// download column are informational and get skipped.
func ExtractRows(doc *goquery.Document, base *url.URL) []Entry {
	entries := []Entry{}

	table := doc.Find(resultsTableSelector).First()
	rows := table.Find("tr")
	if rows.Length() <= 1 {
		return entries
	}

	rows.Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < minResultColumns {
			return
		}

		title := htmlutil.NodeText(cells.Eq(titleColumn))
		if title == "" {
			return
		}
		href, exists := cells.Eq(downloadColumn).Find("a[href]").First().Attr("href")
		if !exists {
			return
		}
		link, ok := htmlutil.ResolveHref(base, href)
		if !ok {
			return
		}

		entries = append(entries, Entry{
			Title: title,
			URL:   link.String(),
		})
	})

	return entries
}

// ExtractPagination returns the page links advertised by the pagination
// table of doc in document order, resolved against origin (the url doc was
// fetched from).
func ExtractPagination(doc *goquery.Document, origin *url.URL) []string {
	table := doc.Find(paginationTableSelector).First()
	anchors := htmlutil.GetAnchors(origin, table.Find(paginationLinkSelector))

	links := make([]string, len(anchors))
	for i, a := range anchors {
		links[i] = a.Url.String()
	}
	return links
}
