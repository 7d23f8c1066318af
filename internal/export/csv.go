// Package export writes the location queue out as CSV for diagnostics
// and data portability. Field escaping hardens the output against
// spreadsheet formula injection on top of standard RFC 4180 quoting.
package export

import (
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/waymarkapp/core/internal/apperr"
	"github.com/waymarkapp/core/internal/db"
	"github.com/waymarkapp/core/internal/models"
)

// csvHeader is the column order of the exported queue.
var csvHeader = []string{
	"id", "latitude", "longitude", "altitude", "accuracy", "speed", "bearing",
	"timestamp", "provider", "status", "attempts", "last_error",
	"rejected", "rejection_reason",
}

// ExportService writes location queue exports.
type ExportService struct {
	repo *db.Repository
}

// NewExportService creates a new ExportService.
func NewExportService(repo *db.Repository) *ExportService {
	return &ExportService{repo: repo}
}

// ExportConfig holds export configuration.
type ExportConfig struct {
	OutputPath string
	Gzip       bool
}

// ExportResult describes a completed export.
type ExportResult struct {
	FilePath  string
	SizeBytes int64
	RowCount  int
	Checksum  string // sha256 of the written file
	Duration  time.Duration
}

// Export writes every queued location to a CSV file. With Gzip set the
// output is compressed and the file gets a .gz suffix.
func (s *ExportService) Export(config *ExportConfig) (*ExportResult, error) {
	startTime := time.Now()

	path := config.OutputPath
	if path == "" {
		path = fmt.Sprintf("exports/locations_%s.csv", startTime.Format("20060102_150405"))
	}
	if config.Gzip && !strings.HasSuffix(path, ".gz") {
		path += ".gz"
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, apperr.Wrap(apperr.ErrExportFailed, "failed to create export directory", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrExportFailed, "failed to create export file", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if config.Gzip {
		gz = gzip.NewWriter(f)
		w = gz
	}

	rows, err := s.WriteCSV(w)
	if err != nil {
		return nil, err
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return nil, apperr.Wrap(apperr.ErrExportFailed, "failed to finish compression", err)
		}
	}
	if err := f.Close(); err != nil {
		return nil, apperr.Wrap(apperr.ErrExportFailed, "failed to close export file", err)
	}

	checksum, size, err := fileChecksum(path)
	if err != nil {
		return nil, err
	}

	return &ExportResult{
		FilePath:  path,
		SizeBytes: size,
		RowCount:  rows,
		Checksum:  checksum,
		Duration:  time.Since(startTime),
	}, nil
}

// WriteCSV streams the full location queue as CSV to w and returns the
// number of data rows written.
func (s *ExportService) WriteCSV(w io.Writer) (int, error) {
	locations, err := s.repo.AllLocations()
	if err != nil {
		return 0, err
	}

	if err := writeRecord(w, csvHeader); err != nil {
		return 0, err
	}
	for _, loc := range locations {
		if err := writeRecord(w, locationRecord(loc)); err != nil {
			return 0, err
		}
	}
	return len(locations), nil
}

func locationRecord(loc *models.QueuedLocation) []string {
	return []string{
		strconv.FormatInt(loc.ID, 10),
		formatFloat(&loc.Latitude),
		formatFloat(&loc.Longitude),
		formatFloat(loc.Altitude),
		formatFloat(loc.Accuracy),
		formatFloat(loc.Speed),
		formatFloat(loc.Bearing),
		strconv.FormatInt(loc.Timestamp, 10),
		loc.Provider,
		string(loc.Status),
		strconv.Itoa(loc.Attempts),
		loc.LastError,
		strconv.FormatBool(loc.Rejected),
		loc.RejectionReason,
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func writeRecord(w io.Writer, fields []string) error {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = escapeField(f)
	}
	if _, err := io.WriteString(w, strings.Join(escaped, ",")+"\r\n"); err != nil {
		return apperr.Wrap(apperr.ErrExportFailed, "failed to write record", err)
	}
	return nil
}

// escapeField hardens a value for CSV output. A leading formula trigger
// character gets an apostrophe prefix so spreadsheet applications treat
// the cell as text, then RFC 4180 quoting applies: a field containing a
// comma, quote or line break is wrapped in quotes with embedded quotes
// doubled. The apostrophe itself makes the field quoted.
func escapeField(field string) string {
	if field == "" {
		return field
	}

	switch field[0] {
	case '=', '+', '-', '@', '|', '\t':
		field = "'" + field
	}

	if strings.ContainsAny(field, ",\"\r\n'") {
		return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
	}
	return field
}

func fileChecksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, apperr.Wrap(apperr.ErrExportFailed, "failed to open export file", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, apperr.Wrap(apperr.ErrExportFailed, "failed to checksum export file", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}
