package portal

import (
	"marksbot/pkg/htmlutil"
	"strconv"

	"github.com/antzucaro/matchr"
)

const (
	// BaseUrl is what download links in the results table are relative to.
	BaseUrl = "https://damascusuniversity.edu.sy/ite/"
	// Endpoint is the results search form.
	Endpoint = "https://damascusuniversity.edu.sy/ite/index.php"
)

// Query is the (department, year, season) triple a crawl is started from.
type Query struct {
	DepartmentID string
	Year         string
	Season       string
}

// FormData returns the search form payload, the portal rejects the search
// unless the fixed function/set/language fields come along with the query.
func (q Query) FormData() map[string]string {
	return map[string]string{
		"func":          "2",
		"set":           "14",
		"College":       "",
		"Category":      "0",
		"lang":          "1",
		"CStadyYear":    "",
		"StadyYear":     "",
		"department_id": q.DepartmentID,
		"Year":          q.Year,
		"Season":        q.Season,
	}
}

// Entry is one downloadable grade report, URL is always absolute.
type Entry struct {
	Title string
	URL   string
}

type Option struct {
	Label string
	Value string
}

var Departments = []Option{
	{Label: "جميع التخصصات", Value: "-1"},
	{Label: "الذكاء الصنعي", Value: "1"},
	{Label: "الشبكات", Value: "5"},
	{Label: "البرمجيات", Value: "2"},
	{Label: "العلوم الأساسية", Value: "3"},
}

var Seasons = []Option{
	{Label: "الفصل الأول", Value: "1"},
	{Label: "الفصل الثاني", Value: "2"},
	{Label: "الفصلين", Value: "-1"},
}

// Years returns count year options counting down from the given year.
func Years(from, count int) []Option {
	years := make([]Option, 0, count)
	for y := from; y > from-count; y-- {
		value := strconv.Itoa(y)
		years = append(years, Option{Label: value, Value: value})
	}
	return years
}

// FindOption returns the option with the given value.
func FindOption(options []Option, value string) (Option, bool) {
	for _, o := range options {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

// minLabelSimilarity is how close a typed label must be to an option's
// label for ResolveOption to accept it.
const minLabelSimilarity = 0.85

// ResolveOption resolves input typed by a person to an option, by value,
// by label or by the closest label.
func ResolveOption(options []Option, input string) (Option, bool) {
	if o, ok := FindOption(options, input); ok {
		return o, true
	}

	input = htmlutil.NormalizeText(input)
	var best Option
	var bestSimilarity float64
	for _, o := range options {
		label := htmlutil.NormalizeText(o.Label)
		if label == input {
			return o, true
		}
		similarity := matchr.JaroWinkler(input, label, false)
		if similarity > bestSimilarity {
			best = o
			bestSimilarity = similarity
		}
	}
	if bestSimilarity < minLabelSimilarity {
		return Option{}, false
	}
	return best, true
}
