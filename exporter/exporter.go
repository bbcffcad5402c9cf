// Package exporter downloads the recent orders spreadsheet from backstage
// and uploads it to cloud storage.
package exporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tealeg/xlsx"
	"go.uber.org/zap"
)

// OrderSource fetches the orders export for a time window.
type OrderSource interface {
	Fetch(ctx context.Context, start time.Time, end time.Time) ([]byte, error)
}

type Exporter struct {
	Orders   OrderSource
	Uploader Uploader

	// optional second destination, failures there are only logged
	Mirror Uploader

	OutputDir  string
	WindowDays int

	log *zap.SugaredLogger
	now func() time.Time
}

func New(
	orders OrderSource,
	uploader Uploader,
	mirror Uploader,
	outputDir string,
	windowDays int,
	logger *zap.SugaredLogger,
) *Exporter {
	return &Exporter{
		Orders:     orders,
		Uploader:   uploader,
		Mirror:     mirror,
		OutputDir:  outputDir,
		WindowDays: windowDays,
		log:        logger,
		now:        time.Now,
	}
}

// Run exports the orders of the trailing window. The local spreadsheet is
// removed before Run returns, whether or not the upload worked.
func (e *Exporter) Run(ctx context.Context) (string, error) {
	end := e.now()
	start := end.AddDate(0, 0, -e.WindowDays)

	data, err := e.Orders.Fetch(ctx, start, end)
	if err != nil {
		return "", fmt.Errorf("failed to fetch orders, %w", err)
	}

	filename := filepath.Join(e.OutputDir, "orders_"+end.Format("20060102_150405")+".xlsx")
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save %s, %w", filename, err)
	}
	defer func() {
		if err := os.Remove(filename); err != nil {
			e.log.Warnf("exporter : failed to remove %s, %v", filename, err)
			return
		}
		e.log.Debugf("exporter : removed %s", filename)
	}()

	if summary, err := InspectWorkbook(data); err != nil {
		e.log.Warnf("exporter : export is not a readable xlsx workbook, uploading as is, %v", err)
	} else {
		for _, sheet := range summary {
			e.log.Infof("exporter : sheet %s has %d rows", sheet.Name, sheet.Rows)
		}
	}

	id, err := e.Uploader.Upload(ctx, filename)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s, %w", filename, err)
	}

	if e.Mirror != nil {
		if _, err := e.Mirror.Upload(ctx, filename); err != nil {
			e.log.Errorf("exporter : failed to mirror %s, %v", filename, err)
		}
	}

	e.log.Infof("exporter : order export complete, file id %s", id)
	return id, nil
}

type SheetSummary struct {
	Name string
	Rows int
}

// InspectWorkbook lists the sheets of an xlsx workbook and their row counts.
func InspectWorkbook(data []byte) ([]SheetSummary, error) {
	file, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, err
	}

	summary := []SheetSummary{}
	for _, sheet := range file.Sheets {
		summary = append(summary, SheetSummary{Name: sheet.Name, Rows: len(sheet.Rows)})
	}
	return summary, nil
}
