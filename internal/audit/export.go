// Package audit dumps the booking database into an Excel workbook, one sheet
// per table, for lab administrators who keep usage records offline.
package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// TableSource exposes raw table contents.
type TableSource interface {
	GetTableNames(ctx context.Context) ([]string, error)
	GetTableData(ctx context.Context, table string) ([]map[string]any, []string, error)
}

// Report summarises an export.
type Report struct {
	Tables map[string]int
}

type Exporter struct {
	source TableSource
	logger zerolog.Logger
}

func NewExporter(source TableSource, logger zerolog.Logger) *Exporter {
	return &Exporter{
		source: source,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Filename returns the export file name for the given moment.
func Filename(t time.Time) string {
	return fmt.Sprintf("ovenbook_%s.xlsx", t.UTC().Format("2006-01-02_150405"))
}

// Export writes the workbook to w. A table that cannot be read fails the
// whole export.
func (e *Exporter) Export(ctx context.Context, w io.Writer) (Report, error) {
	report := Report{Tables: map[string]int{}}

	tables, err := e.source.GetTableNames(ctx)
	if err != nil {
		return report, fmt.Errorf("get table names: %w", err)
	}

	book := NewWorkbook()
	defer book.Close()

	if len(tables) == 0 {
		if err := book.AddSheet("empty"); err != nil {
			return report, err
		}
	}

	for _, table := range tables {
		rows, columns, err := e.source.GetTableData(ctx, table)
		if err != nil {
			return report, fmt.Errorf("read %s: %w", table, err)
		}
		if err := book.AddSheet(table); err != nil {
			return report, err
		}
		if err := book.WriteHeader(columns); err != nil {
			return report, fmt.Errorf("header %s: %w", table, err)
		}
		for _, row := range rows {
			values := make([]any, len(columns))
			for i, col := range columns {
				values[i] = row[col]
			}
			if err := book.WriteRow(values); err != nil {
				return report, fmt.Errorf("row %s: %w", table, err)
			}
		}
		report.Tables[table] = len(rows)
		e.logger.Debug().Str("table", table).Int("rows", len(rows)).Msg("table exported")
	}

	if err := book.Save(w); err != nil {
		return report, fmt.Errorf("save workbook: %w", err)
	}
	return report, nil
}

// ExportToDir writes a timestamped workbook into dir and returns its path.
func (e *Exporter) ExportToDir(ctx context.Context, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, Filename(now))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}

	report, err := e.Export(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}

	e.logger.Info().Str("path", path).Interface("tables", report.Tables).Msg("audit export written")
	return path, nil
}
