package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/lysyi3m/douban-sync/app/database"
	"github.com/lysyi3m/douban-sync/app/feed"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// CollectionStat is the size of one table and of its index mirror.
// Indexed is -1 when no index is available.
type CollectionStat struct {
	Name    string
	File    string
	Rows    int
	Indexed int
}

type Report struct {
	Collections []CollectionStat
	Runs        []database.Run
}

type tableReader interface {
	ReadAll(file string) ([]feed.NormalizedRecord, error)
}

// Build gathers table sizes and recent runs. runRepo and recordRepo may be nil.
func Build(collections []feed.Collection, reader tableReader, runRepo database.RunRepository,
	recordRepo database.RecordRepository, limit int) (Report, error) {
	var report Report

	var indexed map[string]int
	if recordRepo != nil {
		counts, err := recordRepo.CountByCollection()
		if err != nil {
			return report, err
		}
		indexed = counts
	}

	for _, collection := range collections {
		rows, err := reader.ReadAll(collection.File)
		if err != nil {
			return report, fmt.Errorf("failed to read table %s: %w", collection.File, err)
		}
		stat := CollectionStat{
			Name:    collection.Name(),
			File:    collection.File,
			Rows:    len(rows),
			Indexed: -1,
		}
		if indexed != nil {
			stat.Indexed = indexed[collection.Name()]
		}
		report.Collections = append(report.Collections, stat)
	}

	if runRepo != nil {
		runs, err := runRepo.Recent(limit)
		if err != nil {
			return report, err
		}
		report.Runs = runs
	}

	return report, nil
}

func Render(w io.Writer, r Report) error {
	rows := make([][]string, 0, len(r.Collections))
	for _, c := range r.Collections {
		indexed := "-"
		if c.Indexed >= 0 {
			indexed = strconv.Itoa(c.Indexed)
		}
		rows = append(rows, []string{c.Name, c.File, strconv.Itoa(c.Rows), indexed})
	}
	collections := renderTable(
		[]string{"Collection", "File", "Rows", "Indexed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
	)
	if _, err := fmt.Fprintln(w, collections); err != nil {
		return err
	}

	if len(r.Runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}

	rows = make([][]string, 0, len(r.Runs))
	for _, run := range r.Runs {
		duration := "-"
		if run.FinishedAt != nil {
			duration = run.Duration().Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			run.StartedAt.Local().Format(time.DateTime),
			run.Status,
			duration,
			strconv.Itoa(run.Fetched),
			strconv.Itoa(run.New),
			strconv.Itoa(run.Known),
			strconv.Itoa(run.Existing),
			strconv.Itoa(run.Unclassified),
			strconv.Itoa(run.Failed),
			run.Error,
		})
	}
	runs := renderTable(
		[]string{"Started", "Status", "Duration", "Fetched", "New", "Known", "Existing", "Unclassified", "Failed", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
	_, err := fmt.Fprintln(w, runs)
	return err
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}
