package export

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/waymarkapp/core/internal/db"
	"github.com/waymarkapp/core/internal/models"
)

func newTestService(t *testing.T) *ExportService {
	t.Helper()
	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.NewMigrator(database.DB).Up(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewExportService(db.NewRepository(database.DB))
}

func TestEscapeField(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "gps", "gps"},
		{"empty", "", ""},
		{"formula equals", "=SUM(A1,B1)", `"'=SUM(A1,B1)"`},
		{"formula plus", "+1234", `"'+1234"`},
		{"formula minus", "-cmd", `"'-cmd"`},
		{"formula at", "@import", `"'@import"`},
		{"formula pipe", "|calc", `"'|calc"`},
		{"formula tab", "\tpayload", `"'` + "\tpayload" + `"`},
		{"embedded comma", "a,b", `"a,b"`},
		{"embedded quote", `say "hi"`, `"say ""hi"""`},
		{"embedded newline", "line1\nline2", `"line1` + "\n" + `line2"`},
		{"embedded cr", "line1\rline2", `"line1` + "\r" + `line2"`},
		{"equals not leading", "a=b", "a=b"},
		{"interior apostrophe", "it's", `"it's"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeField(tt.input); got != tt.want {
				t.Errorf("escapeField(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestWriteCSV(t *testing.T) {
	s := newTestService(t)

	alt := 31.5
	loc := &models.QueuedLocation{
		Latitude:  59.3293,
		Longitude: 18.0686,
		Altitude:  &alt,
		Timestamp: time.Now().UnixMilli(),
		Provider:  "gps",
	}
	if err := s.repo.CreateLocation(loc); err != nil {
		t.Fatal(err)
	}
	if err := s.repo.MarkLocationRejected(loc.ID, "=HYPERLINK(evil)"); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	rows, err := s.WriteCSV(&buf)
	if err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if rows != 1 {
		t.Fatalf("rows = %d, want 1", rows)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\r\n"), "\r\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want header + 1 row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,latitude,longitude") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "59.3293") || !strings.Contains(lines[1], "31.5") {
		t.Errorf("row missing values: %q", lines[1])
	}
	// The hostile rejection reason is neutralized in the output.
	if !strings.Contains(lines[1], `"'=HYPERLINK(evil)"`) {
		t.Errorf("formula not escaped: %q", lines[1])
	}
}

func TestWriteCSVNilOptionalsEmpty(t *testing.T) {
	s := newTestService(t)

	loc := &models.QueuedLocation{
		Latitude:  1.0,
		Longitude: 2.0,
		Timestamp: time.Now().UnixMilli(),
		Provider:  "network",
	}
	if err := s.repo.CreateLocation(loc); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(buf.String(), "\r\n")
	// altitude, accuracy, speed, bearing are all absent.
	if !strings.Contains(lines[1], "1,2,,,,,") {
		t.Errorf("nil optionals not empty: %q", lines[1])
	}
}

func TestExportToFileWithChecksum(t *testing.T) {
	s := newTestService(t)

	loc := &models.QueuedLocation{
		Latitude:  48.8584,
		Longitude: 2.2945,
		Timestamp: time.Now().UnixMilli(),
		Provider:  "gps",
	}
	if err := s.repo.CreateLocation(loc); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	result, err := s.Export(&ExportConfig{OutputPath: path})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if result.RowCount != 1 {
		t.Errorf("RowCount = %d, want 1", result.RowCount)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(data)) != result.SizeBytes {
		t.Errorf("SizeBytes = %d, file is %d", result.SizeBytes, len(data))
	}

	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != result.Checksum {
		t.Errorf("Checksum = %s, want %s", result.Checksum, got)
	}
}

func TestExportGzip(t *testing.T) {
	s := newTestService(t)

	loc := &models.QueuedLocation{
		Latitude:  35.6586,
		Longitude: 139.7454,
		Timestamp: time.Now().UnixMilli(),
		Provider:  "gps",
	}
	if err := s.repo.CreateLocation(loc); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	result, err := s.Export(&ExportConfig{OutputPath: path, Gzip: true})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.HasSuffix(result.FilePath, ".csv.gz") {
		t.Errorf("FilePath = %q, want .csv.gz suffix", result.FilePath)
	}

	f, err := os.Open(result.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	content, err := io.ReadAll(gz)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "35.6586") {
		t.Errorf("decompressed content missing data: %q", content)
	}
}

func TestExportEmptyQueue(t *testing.T) {
	s := newTestService(t)

	path := filepath.Join(t.TempDir(), "empty.csv")
	result, err := s.Export(&ExportConfig{OutputPath: path})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if result.RowCount != 0 {
		t.Errorf("RowCount = %d, want 0", result.RowCount)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "id,latitude") {
		t.Errorf("empty export should still carry the header: %q", data)
	}
}
