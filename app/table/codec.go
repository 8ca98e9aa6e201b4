package table

import "strings"

const (
	delimiter = ','
	quote     = '"'
)

// Header is the first line of every table. Column names stay compatible with
// archives produced by earlier versions of the sync.
var Header = []string{"title", "url", "date", "rating", "status", "comment"}

const linkColumn = "url"

// Escape quotes a field when it contains the delimiter, a quote or a line
// break, doubling embedded quotes.
func Escape(field string) string {
	if !strings.ContainsAny(field, ",\"\n\r") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// Unescape reverses Escape for a single field.
func Unescape(field string) string {
	if len(field) < 2 || field[0] != quote || field[len(field)-1] != quote {
		return field
	}
	return strings.ReplaceAll(field[1:len(field)-1], `""`, `"`)
}

// FormatRow renders one record line including the trailing newline.
func FormatRow(fields []string) string {
	var b strings.Builder
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(delimiter)
		}
		b.WriteString(Escape(field))
	}
	b.WriteByte('\n')
	return b.String()
}

// ParseRows splits table content into records. It is the inverse of
// FormatRow, including line breaks inside quoted fields. Blank lines are
// skipped and a CR before an unquoted line end is dropped.
func ParseRows(data string) [][]string {
	var (
		rows    [][]string
		row     []string
		field   strings.Builder
		quoted  bool // inside a quoted section
		started bool // current line has content
	)

	endField := func() {
		row = append(row, field.String())
		field.Reset()
	}
	endRow := func() {
		if started {
			endField()
			rows = append(rows, row)
		}
		row = nil
		started = false
	}

	for i := 0; i < len(data); i++ {
		c := data[i]

		if quoted {
			if c == quote {
				if i+1 < len(data) && data[i+1] == quote {
					field.WriteByte(quote)
					i++
					continue
				}
				quoted = false
				continue
			}
			field.WriteByte(c)
			continue
		}

		switch c {
		case quote:
			started = true
			if field.Len() == 0 {
				quoted = true
			} else {
				field.WriteByte(c)
			}
		case delimiter:
			started = true
			endField()
		case '\r':
			if i+1 < len(data) && data[i+1] == '\n' {
				continue
			}
			started = true
			field.WriteByte(c)
		case '\n':
			endRow()
		default:
			started = true
			field.WriteByte(c)
		}
	}
	endRow()

	return rows
}
