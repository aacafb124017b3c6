package conversation

import (
	"fmt"
	"marksbot/internal/portal"
	"marksbot/internal/session"
	"strings"
)

// callback payloads are namespaced so a wizard value can never be mistaken
// for a file identifier
const (
	prefixDepartment = "dep:"
	prefixYear       = "year:"
	prefixSeason     = "season:"
	prefixFile       = "file:"

	dataPrev = "nav:prev"
	dataNext = "nav:next"
	dataAll  = "all"
	dataNoop = "noop"
)

func optionButtons(prefix string, options []portal.Option) []Button {
	buttons := make([]Button, len(options))
	for i, o := range options {
		buttons[i] = Button{Label: o.Label, Data: prefix + o.Value}
	}
	return buttons
}

// rows lays buttons out perRow to a row.
func rows(buttons []Button, perRow int) Keyboard {
	var keyboard Keyboard
	for i := 0; i < len(buttons); i += perRow {
		end := min(i+perRow, len(buttons))
		keyboard = append(keyboard, buttons[i:end])
	}
	return keyboard
}

func departmentKeyboard(departments []portal.Option) Keyboard {
	return rows(optionButtons(prefixDepartment, departments), 1)
}

func yearKeyboard(years []portal.Option) Keyboard {
	return rows(optionButtons(prefixYear, years), 2)
}

func seasonKeyboard(seasons []portal.Option) Keyboard {
	return rows(optionButtons(prefixSeason, seasons), 1)
}

// pageKeyboard renders one button per item, the navigation row and the
// bulk download row.
func pageKeyboard(page session.Page) Keyboard {
	keyboard := make(Keyboard, 0, len(page.Items)+2)
	for _, item := range page.Items {
		keyboard = append(keyboard, []Button{{Label: item.Title, Data: prefixFile + item.ID}})
	}

	var nav []Button
	if page.HasPrev {
		nav = append(nav, Button{Label: "⬅️", Data: dataPrev})
	}
	nav = append(nav, Button{
		Label: fmt.Sprintf(msgPageLabel, page.Index+1, page.Count),
		Data:  dataNoop,
	})
	if page.HasNext {
		nav = append(nav, Button{Label: "➡️", Data: dataNext})
	}
	keyboard = append(keyboard, nav)

	keyboard = append(keyboard, []Button{{
		Label: fmt.Sprintf(msgDownloadAllLabel, page.Total),
		Data:  dataAll,
	}})
	return keyboard
}

// cutPrefix is strings.CutPrefix that also rejects an empty remainder.
func cutPrefix(data, prefix string) (string, bool) {
	value, ok := strings.CutPrefix(data, prefix)
	return value, ok && value != ""
}

func isWizardPress(data string) bool {
	return strings.HasPrefix(data, prefixDepartment) ||
		strings.HasPrefix(data, prefixYear) ||
		strings.HasPrefix(data, prefixSeason)
}
