package feed

import (
	"cmp"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/text/width"
)

const star = "★"

var feedDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC822Z,
	time.RFC822,
}

type Normalizer struct {
	location  *time.Location
	ratingRe  *regexp.Regexp
	commentRe *regexp.Regexp
	stars     map[string]int
}

func NewNormalizer(profile *Profile, location *time.Location) *Normalizer {
	if location == nil {
		location = time.UTC
	}

	stars := make(map[string]int, len(profile.Ratings))
	keywords := make([]string, 0, len(profile.Ratings))
	for _, level := range profile.Ratings {
		keyword := width.Fold.String(level.Keyword)
		stars[keyword] = level.Stars
		keywords = append(keywords, regexp.QuoteMeta(keyword))
	}

	n := &Normalizer{
		location: location,
		stars:    stars,
		// The comment is user text and is matched unfolded to keep its punctuation.
		commentRe: regexp.MustCompile(regexp.QuoteMeta(profile.CommentMarker) + `[:：][ \t\x{3000}]*([^\n]*)`),
	}
	if len(keywords) > 0 {
		// Rating markers are matched against a width-folded copy of the description.
		n.ratingRe = regexp.MustCompile(regexp.QuoteMeta(width.Fold.String(profile.RatingMarker)) + `:\s*(` + strings.Join(keywords, "|") + `)`)
	}

	return n
}

func (n *Normalizer) Run(raw RawRecord, rule CategoryRule) NormalizedRecord {
	return NormalizedRecord{
		Name:    n.Name(raw.Title, rule),
		Link:    cmp.Or(raw.Link, raw.ID),
		Date:    n.Date(raw.PublishedAt),
		Rating:  n.Rating(raw.Description),
		Status:  rule.Status,
		Comment: n.Comment(raw.Description),
	}
}

// Name strips the matched status prefix from title.
func (n *Normalizer) Name(title string, rule CategoryRule) string {
	title = strings.TrimSpace(title)
	if loc := rule.Pattern.FindStringIndex(title); loc != nil && loc[0] == 0 {
		title = title[loc[1]:]
	}
	return strings.TrimSpace(title)
}

// Date reformats a feed timestamp as YYYY-MM-DD, or returns "" when it
// cannot be parsed.
func (n *Normalizer) Date(publishedAt string) string {
	publishedAt = strings.TrimSpace(publishedAt)
	if publishedAt == "" {
		return ""
	}

	for _, layout := range feedDateLayouts {
		if t, err := time.ParseInLocation(layout, publishedAt, n.location); err == nil {
			return t.In(n.location).Format(time.DateOnly)
		}
	}

	t, err := dateparse.ParseIn(publishedAt, n.location)
	if err != nil || t.Year() < 1 {
		return ""
	}
	return t.In(n.location).Format(time.DateOnly)
}

// Rating maps the rating keyword to a star string. Unrated is "", never zero stars.
func (n *Normalizer) Rating(description string) string {
	if n.ratingRe == nil {
		return ""
	}

	m := n.ratingRe.FindStringSubmatch(width.Fold.String(description))
	if m == nil {
		return ""
	}

	count, ok := n.stars[m[1]]
	if !ok {
		return ""
	}
	return strings.Repeat(star, count)
}

// Comment returns the rest of the line following the comment marker.
func (n *Normalizer) Comment(description string) string {
	m := n.commentRe.FindStringSubmatch(description)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
