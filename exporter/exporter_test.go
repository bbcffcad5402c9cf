package exporter

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tealeg/xlsx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type staticOrders struct {
	data []byte
	err  error

	start time.Time
	end   time.Time
}

func (s *staticOrders) Fetch(_ context.Context, start time.Time, end time.Time) ([]byte, error) {
	s.start, s.end = start, end
	return s.data, s.err
}

// records what was on disk at upload time
type recordingUploader struct {
	id  string
	err error

	paths   []string
	content [][]byte
}

func (u *recordingUploader) Upload(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	u.paths = append(u.paths, path)
	u.content = append(u.content, data)
	return u.id, u.err
}

func workbook(t *testing.T) []byte {
	t.Helper()
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Orders")
	if err != nil {
		t.Fatalf("failed to add sheet, %v", err)
	}
	for _, id := range []string{"order id", "A-1", "A-2"} {
		sheet.AddRow().AddCell().SetString(id)
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		t.Fatalf("failed to write workbook, %v", err)
	}
	return buf.Bytes()
}

func newTestExporter(t *testing.T, orders OrderSource, uploader Uploader, mirror Uploader) (*Exporter, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := New(orders, uploader, mirror, t.TempDir(), 7, zap.New(core).Sugar())
	e.now = func() time.Time { return time.Date(2026, 4, 9, 13, 5, 30, 0, time.UTC) }
	return e, logs
}

func TestExporter_Run(t *testing.T) {
	data := workbook(t)
	orders := &staticOrders{data: data}
	uploader := &recordingUploader{id: "drive-file-1"}
	mirror := &recordingUploader{id: "discord-msg-1"}
	e, logs := newTestExporter(t, orders, uploader, mirror)

	id, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("failed to run export, %v", err)
	}
	if id != "drive-file-1" {
		t.Fatalf("expected drive file id, got %s", id)
	}

	if !orders.end.Equal(e.now()) || !orders.start.Equal(e.now().AddDate(0, 0, -7)) {
		t.Fatalf("unexpected window %s - %s", orders.start, orders.end)
	}

	if len(uploader.paths) != 1 || len(mirror.paths) != 1 {
		t.Fatalf("expected one upload to each destination, got %d and %d", len(uploader.paths), len(mirror.paths))
	}
	if filepath.Base(uploader.paths[0]) != "orders_20260409_130530.xlsx" {
		t.Fatalf("unexpected file name %s", uploader.paths[0])
	}
	if !bytes.Equal(uploader.content[0], data) {
		t.Fatalf("uploaded content differs from the export")
	}
	if _, err := os.Stat(uploader.paths[0]); !os.IsNotExist(err) {
		t.Fatalf("expected local file to be removed, stat err %v", err)
	}

	if logs.FilterMessage("exporter : sheet Orders has 3 rows").Len() != 1 {
		t.Fatalf("expected sheet summary to be logged")
	}
}

func TestExporter_RunUploadFails(t *testing.T) {
	uploader := &recordingUploader{err: errors.New("quota exceeded")}
	e, _ := newTestExporter(t, &staticOrders{data: workbook(t)}, uploader, nil)

	if _, err := e.Run(context.Background()); err == nil {
		t.Fatalf("expected an error when the upload fails")
	}
	if len(uploader.paths) != 1 {
		t.Fatalf("expected one upload attempt, got %d", len(uploader.paths))
	}
	if _, err := os.Stat(uploader.paths[0]); !os.IsNotExist(err) {
		t.Fatalf("expected local file to be removed after a failed upload, stat err %v", err)
	}
}

func TestExporter_RunMirrorFailureIsLogged(t *testing.T) {
	mirror := &recordingUploader{err: errors.New("missing access")}
	e, logs := newTestExporter(t, &staticOrders{data: workbook(t)}, &recordingUploader{id: "x"}, mirror)

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("mirror failure should not fail the export, %v", err)
	}
	if logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 1 {
		t.Fatalf("expected the mirror failure to be logged")
	}
}

func TestExporter_RunUnreadableWorkbook(t *testing.T) {
	uploader := &recordingUploader{id: "x"}
	e, logs := newTestExporter(t, &staticOrders{data: []byte("not a workbook")}, uploader, nil)

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("failed to run export, %v", err)
	}
	if len(uploader.paths) != 1 {
		t.Fatalf("expected the file to be uploaded as is")
	}

	warned := false
	for _, entry := range logs.FilterLevelExact(zapcore.WarnLevel).All() {
		if strings.Contains(entry.Message, "not a readable xlsx workbook") {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected a warning about the workbook")
	}
}

func TestExporter_RunFetchFails(t *testing.T) {
	uploader := &recordingUploader{}
	e, _ := newTestExporter(t, &staticOrders{err: ErrTokenExpired}, uploader, nil)

	if _, err := e.Run(context.Background()); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if len(uploader.paths) != 0 {
		t.Fatalf("expected no upload")
	}
	entries, err := os.ReadDir(e.OutputDir)
	if err != nil {
		t.Fatalf("failed to read output dir, %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files left behind, got %d", len(entries))
	}
}

func TestInspectWorkbook(t *testing.T) {
	summary, err := InspectWorkbook(workbook(t))
	if err != nil {
		t.Fatalf("failed to inspect workbook, %v", err)
	}
	if len(summary) != 1 || summary[0].Name != "Orders" || summary[0].Rows != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	if _, err := InspectWorkbook([]byte("{}")); err == nil {
		t.Fatalf("expected an error for a non xlsx body")
	}
}

func TestDriveUploader_MissingCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.xlsx")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write file, %v", err)
	}

	d := NewDriveUploader("folder", filepath.Join(t.TempDir(), "missing.json"), zap.NewNop().Sugar())
	if _, err := d.Upload(context.Background(), path); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected a missing key file error, got %v", err)
	}
}
