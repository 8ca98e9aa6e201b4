package table

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gofrs/flock"

	"github.com/lysyi3m/douban-sync/app/feed"
)

var ErrEmptyLink = errors.New("record has no link")

// Writer appends records to per-collection CSV tables in dir. The link
// column is the identity of a row; a table never holds two rows with the
// same link.
type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Dir() string {
	return w.dir
}

func (w *Writer) Path(file string) string {
	return filepath.Join(w.dir, file)
}

func (w *Writer) lockPath(file string) string {
	return filepath.Join(w.dir, "."+file+".lock")
}

// AppendIfAbsent appends record to the table unless a row with the same link
// already exists. The table is created with its header on first write. A
// written record costs exactly one write call; a duplicate costs none.
func (w *Writer) AppendIfAbsent(file string, record feed.NormalizedRecord) (bool, error) {
	link := strings.TrimSpace(record.Link)
	if link == "" {
		return false, ErrEmptyLink
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create table directory: %w", err)
	}

	lock := flock.New(w.lockPath(file))
	if err := lock.Lock(); err != nil {
		return false, fmt.Errorf("failed to lock table %s: %w", file, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("Failed to release table lock", "table", file, "error", err)
		}
	}()

	path := w.Path(file)
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to read table %s: %w", file, err)
	}

	row := FormatRow(recordFields(record))

	if len(data) == 0 {
		if err := writeFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, FormatRow(Header)+row); err != nil {
			return false, fmt.Errorf("failed to create table %s: %w", file, err)
		}
		return true, nil
	}

	content := string(data)
	if _, exists := linkSet(ParseRows(content))[link]; exists {
		return false, nil
	}

	if !strings.HasSuffix(content, "\n") {
		row = "\n" + row
	}
	if err := writeFile(path, os.O_APPEND|os.O_WRONLY, row); err != nil {
		return false, fmt.Errorf("failed to append to table %s: %w", file, err)
	}

	return true, nil
}

// ReadAll returns the data rows of a table in file order. A missing table
// has no rows.
func (w *Writer) ReadAll(file string) ([]feed.NormalizedRecord, error) {
	data, err := os.ReadFile(w.Path(file))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read table %s: %w", file, err)
	}

	rows := ParseRows(string(data))
	if len(rows) == 0 {
		return nil, nil
	}

	columns, dataRows := splitHeader(rows)
	records := make([]feed.NormalizedRecord, 0, len(dataRows))
	for _, row := range dataRows {
		records = append(records, feed.NormalizedRecord{
			Name:    column(row, columns, "title"),
			Link:    column(row, columns, "url"),
			Date:    column(row, columns, "date"),
			Rating:  column(row, columns, "rating"),
			Status:  column(row, columns, "status"),
			Comment: column(row, columns, "comment"),
		})
	}

	return records, nil
}

func recordFields(r feed.NormalizedRecord) []string {
	return []string{r.Name, r.Link, r.Date, r.Rating, r.Status, r.Comment}
}

// linkSet collects the link column of every data row.
func linkSet(rows [][]string) map[string]struct{} {
	links := make(map[string]struct{}, len(rows))
	if len(rows) == 0 {
		return links
	}

	columns, data := splitHeader(rows)
	for _, row := range data {
		if link := strings.TrimSpace(column(row, columns, linkColumn)); link != "" {
			links[link] = struct{}{}
		}
	}
	return links
}

// splitHeader separates the header from the data rows. A first row that names
// no known column is data, read with the canonical column positions.
func splitHeader(rows [][]string) (map[string]int, [][]string) {
	if len(rows) == 0 {
		return columnIndex(nil), nil
	}
	if !isHeader(rows[0]) {
		return columnIndex(nil), rows
	}
	return columnIndex(rows[0]), rows[1:]
}

func isHeader(row []string) bool {
	for _, cell := range row {
		if slices.Contains(Header, headerName(cell)) {
			return true
		}
	}
	return false
}

func headerName(cell string) string {
	return strings.TrimSpace(strings.TrimPrefix(cell, "\ufeff"))
}

func columnIndex(header []string) map[string]int {
	columns := make(map[string]int, len(Header))
	for i, name := range Header {
		columns[name] = i
	}
	for i, name := range header {
		name = headerName(name)
		for _, known := range Header {
			if name == known {
				columns[known] = i
			}
		}
	}
	return columns
}

func column(row []string, columns map[string]int, name string) string {
	i, ok := columns[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func writeFile(path string, flag int, content string) error {
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
