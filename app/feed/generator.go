package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"
)

// Channel describes a collection re-published as RSS.
type Channel struct {
	Title       string
	Link        string
	Description string
	SelfLink    string
	Updated     time.Time
}

type Generator struct {
	version string
}

func NewGenerator(version string) *Generator {
	return &Generator{version: version}
}

// Run renders records newest first. Records are expected in table order.
func (g *Generator) Run(channel Channel, records []NormalizedRecord) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", channel.Title, 4)
	g.writeElement(&buf, "link", channel.Link, 4)
	g.writeElement(&buf, "description", channel.Description, 4)

	if channel.SelfLink != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(channel.SelfLink)))
	}

	lastBuildDate := channel.Updated
	if lastBuildDate.IsZero() {
		lastBuildDate = time.Now().UTC()
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("douban-sync/%s", g.version), 4)

	for i := len(records) - 1; i >= 0; i-- {
		g.writeItem(&buf, records[i])
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, record NormalizedRecord) {
	buf.WriteString("    <item>\n")

	if record.Link != "" {
		buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(record.Link)))
		xml.EscapeText(buf, []byte(record.Link))
		buf.WriteString("</guid>\n")
	}

	g.writeElement(buf, "title", strings.TrimSpace(record.Status+" "+record.Name), 6)
	if g.isURL(record.Link) {
		g.writeElement(buf, "link", record.Link, 6)
	}
	g.writeElement(buf, "description", itemDescription(record), 6)

	if date, err := time.Parse(time.DateOnly, record.Date); err == nil {
		g.writeElement(buf, "pubDate", date.Format(time.RFC1123Z), 6)
	}

	g.writeElement(buf, "category", record.Status, 6)

	buf.WriteString("    </item>\n")
}

func itemDescription(record NormalizedRecord) string {
	var parts []string
	if record.Rating != "" {
		parts = append(parts, record.Rating)
	}
	if record.Comment != "" {
		parts = append(parts, record.Comment)
	}
	return strings.Join(parts, "\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
