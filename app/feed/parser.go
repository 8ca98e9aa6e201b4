package feed

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"
)

var ErrNotAFeed = errors.New("document is not a feed")

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run extracts candidate records in document order. Items without a title or
// without any identity (link or guid) are omitted.
func (p *Parser) Run(data []byte) ([]RawRecord, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAFeed, err)
	}

	records := make([]RawRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		record, ok := p.normalizeItem(item)
		if !ok {
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) (RawRecord, bool) {
	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Links) > 0 {
		link = strings.TrimSpace(item.Links[0])
	}

	record := RawRecord{
		Title:       plainTitle(item.Title),
		Link:        link,
		ID:          cmp.Or(strings.TrimSpace(item.GUID), link),
		PublishedAt: strings.TrimSpace(cmp.Or(item.Published, item.Updated)),
		Description: plainText(cmp.Or(item.Description, item.Content)),
	}

	if record.Title == "" || record.ID == "" {
		return RawRecord{}, false
	}

	return record, true
}

// plainTitle collapses whitespace only. gofeed has already decoded the title,
// so anything that looks like markup is part of the name.
func plainTitle(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

var blockElements = "p, div, li, tr, table, h1, h2, h3, h4, h5, h6, blockquote"

// plainText strips markup, keeping one line per block element.
func plainText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			doc.Find("script, style").Remove()
			doc.Find("br").ReplaceWithHtml("\n")
			doc.Find(blockElements).Each(func(_ int, sel *goquery.Selection) {
				sel.AppendHtml("\n")
			})
			s = doc.Text()
		}
	}

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}

	return norm.NFC.String(strings.Join(kept, "\n"))
}
