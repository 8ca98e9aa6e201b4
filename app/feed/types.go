package feed

import (
	"regexp"
	"strings"
)

// RawRecord is one entry as it appears in the source feed, with markup
// already stripped from the text fields.
type RawRecord struct {
	Title       string
	Link        string
	ID          string // guid, falls back to Link
	PublishedAt string
	Description string
}

type CategoryRule struct {
	Prefix    string // literal status keyword, empty when only Pattern is configured
	Pattern   *regexp.Regexp
	File      string // table file name, e.g. 书.csv
	Status    string // collection-local status label
	MediaType string // book, movie, music, game
}

// Collection returns the table name without its extension.
func (r CategoryRule) Collection() string {
	return strings.TrimSuffix(r.File, ".csv")
}

type NormalizedRecord struct {
	Name    string
	Link    string
	Date    string // YYYY-MM-DD or empty
	Rating  string // ★ repeated 1..5 times, empty when unrated
	Status  string
	Comment string
}

type RatingLevel struct {
	Keyword string
	Stars   int
}

// Collection is one table and the media type stored in it.
type Collection struct {
	MediaType string
	File      string
}

func (c Collection) Name() string {
	return strings.TrimSuffix(c.File, ".csv")
}

// Profile is the immutable classification and extraction configuration
// shared by the classifier and the normalizer.
type Profile struct {
	RatingMarker  string
	CommentMarker string
	Ratings       []RatingLevel
	Rules         []CategoryRule
}

// Collections lists the distinct tables referenced by the rules, in rule order.
func (p *Profile) Collections() []Collection {
	seen := make(map[string]bool)
	var collections []Collection
	for _, rule := range p.Rules {
		if seen[rule.MediaType] {
			continue
		}
		seen[rule.MediaType] = true
		collections = append(collections, Collection{MediaType: rule.MediaType, File: rule.File})
	}
	return collections
}

// Collection looks a table up by media type or by table name.
func (p *Profile) Collection(name string) (Collection, bool) {
	for _, c := range p.Collections() {
		if c.MediaType == name || c.Name() == name || c.File == name {
			return c, true
		}
	}
	return Collection{}, false
}
