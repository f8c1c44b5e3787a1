package render

import (
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"github.com/microcosm-cc/bluemonday"
)

// TimeLayout renders onset and expiry times, e.g. "6:00pm Tuesday".
const TimeLayout = "3:04pm Monday"

var strict = bluemonday.StrictPolicy()

var colourEmoji = map[string]string{
	"blue":   "🔵",
	"green":  "🟢",
	"yellow": "🟡",
	"orange": "🟠",
	"red":    "🔴",
	"purple": "🟣",
}

// ColourCodeEmoji maps a ColourCode parameter to its circle emoji.
func ColourCodeEmoji(code string) (string, bool) {
	e, ok := colourEmoji[strings.ToLower(strings.TrimSpace(code))]
	return e, ok
}

// Text summarises alerts grouped by headline. Times are shown in loc.
func Text(alerts domain.AlertSet, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	list := alerts.Slice()
	sort.SliceStable(list, func(i, j int) bool { return list[i].Info.Headline < list[j].Info.Headline })

	var b strings.Builder
	for i := 0; i < len(list); {
		headline := list[i].Info.Headline
		var entries []string
		for ; i < len(list) && list[i].Info.Headline == headline; i++ {
			entries = append(entries, entry(list[i], loc))
		}
		b.WriteString(strings.ToUpper(headline))
		b.WriteString("\n\n")
		b.WriteString(strings.Join(entries, "\n\n"))
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func entry(a domain.Alert, loc *time.Location) string {
	emoji, _ := ColourCodeEmoji(a.Info.Parameters["ColourCode"])
	hours := int(a.Info.Expires.Sub(a.Info.Onset).Hours())

	var b strings.Builder
	if emoji != "" {
		b.WriteString(emoji)
		b.WriteString(" ")
	}
	b.WriteString("[")
	b.WriteString(strings.Join(a.AreaNames(), ", "))
	b.WriteString("]  ")
	b.WriteString(strconv.Itoa(hours))
	b.WriteString(" hours from ")
	b.WriteString(a.Info.Onset.In(loc).Format(TimeLayout))
	b.WriteString(" to ")
	b.WriteString(a.Info.Expires.In(loc).Format(TimeLayout))
	b.WriteString("\n\n")
	b.WriteString(plain(a.Info.Description))
	return strings.TrimRight(b.String(), "\n")
}

// plain strips markup from feed-supplied text.
func plain(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}
