// Package popup composes the landmark detail popup shown by a marker.
package popup

import (
	"strings"
	"unicode/utf8"

	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/pkg/core"
)

const (
	// MaxDescription is the number of characters kept from a description.
	MaxDescription = 150
	// Ellipsis marks a truncated description.
	Ellipsis = "…"
	// NoDescription is shown when a landmark has neither summary nor description.
	NoDescription = "No description available."
	// LinkText labels the external reference link.
	LinkText = "Read more"
)

// Summaries looks up a produced summary by landmark key.
type Summaries interface {
	Get(key string) (string, bool)
}

// Source tells which text ended up in the popup body
type Source int

const (
	FromSummary Source = iota
	FromDescription
	FromPlaceholder
)

// Truncate shortens s to at most max characters, appending Ellipsis when cut.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimRightFunc(string(runes[:max]), isSpace) + Ellipsis
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// Body picks the popup text: cached summary, else truncated description,
// else the placeholder.
func Body(l core.Landmark, summaries Summaries) (string, Source) {
	if summaries != nil {
		if s, ok := summaries.Get(l.Key()); ok && strings.TrimSpace(s) != "" {
			return s, FromSummary
		}
	}
	desc := strings.TrimSpace(l.Description)
	if desc == "" {
		return NoDescription, FromPlaceholder
	}
	return Truncate(desc, MaxDescription), FromDescription
}

// ForLandmark builds the full popup for l. A present URL adds a link whose
// clicks must not propagate to the marker.
func ForLandmark(l core.Landmark, summaries Summaries) *widget.Popup {
	body, _ := Body(l, summaries)
	p := &widget.Popup{
		Title: l.Title,
		Body:  body,
	}
	if l.URL != "" {
		p.Link = &widget.Link{
			URL:             l.URL,
			Text:            LinkText,
			StopPropagation: true,
		}
	}
	return p
}
