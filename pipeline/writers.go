package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// OutputWriter receives the ranking report.
type OutputWriter interface {
	Write(rows []models.RankRow) error
	Close() error
	Validate() error
}

// NewReportWriter opens a writer for format (csv, json or dual). The dual
// format writes filename plus a sibling .json file.
func NewReportWriter(format, filename string) (OutputWriter, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONWriter(filename)
	case "csv":
		return NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".json"
		return NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// reportFile is the buffered file behind both writers.
type reportFile struct {
	kind string
	file *os.File
	buf  *bufio.Writer
	rows int
}

func createReportFile(kind, filename string) (*reportFile, error) {
	dir := filepath.Dir(filename)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s file: %w", kind, err)
	}
	return &reportFile{kind: kind, file: f, buf: bufio.NewWriter(f)}, nil
}

func (rf *reportFile) flush() error {
	if err := rf.buf.Flush(); err != nil {
		return fmt.Errorf("flush %s writer: %w", rf.kind, err)
	}
	return nil
}

func (rf *reportFile) close() error {
	if err := rf.flush(); err != nil {
		rf.file.Close()
		return err
	}
	return rf.file.Close()
}

func (rf *reportFile) validate() error {
	if rf.rows == 0 {
		return fmt.Errorf("%s report has no rows", rf.kind)
	}
	return nil
}

// CSVWriter writes report rows to CSV with a header taken from the csv tags
// of models.RankRow.
type CSVWriter struct {
	out    *reportFile
	writer *csv.Writer
}

// NewCSVWriter creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	out, err := createReportFile("csv", filename)
	if err != nil {
		return nil, err
	}
	cw := &CSVWriter{out: out, writer: csv.NewWriter(out.buf)}
	if err := cw.writeRecord(csvHeader()); err != nil {
		out.file.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return cw, nil
}

// Write appends rows.
func (cw *CSVWriter) Write(rows []models.RankRow) error {
	for _, row := range rows {
		if err := cw.writeRecord(csvRecord(row)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
		cw.out.rows++
	}
	return nil
}

func (cw *CSVWriter) writeRecord(record []string) error {
	if err := cw.writer.Write(record); err != nil {
		return err
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return err
	}
	return cw.out.flush()
}

// Close flushes and closes the file.
func (cw *CSVWriter) Close() error {
	return cw.out.close()
}

// Validate fails when no row besides the header was written.
func (cw *CSVWriter) Validate() error {
	return cw.out.validate()
}

// JSONWriter writes one JSON object per row.
type JSONWriter struct {
	out     *reportFile
	encoder *json.Encoder
}

// NewJSONWriter creates filename.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	out, err := createReportFile("json", filename)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{out: out, encoder: json.NewEncoder(out.buf)}, nil
}

// Write appends rows in JSONL format.
func (jw *JSONWriter) Write(rows []models.RankRow) error {
	for _, row := range rows {
		if err := jw.encoder.Encode(row); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		jw.out.rows++
	}
	return jw.out.flush()
}

// Close flushes and closes the file.
func (jw *JSONWriter) Close() error {
	return jw.out.close()
}

// Validate fails when no row was written.
func (jw *JSONWriter) Validate() error {
	return jw.out.validate()
}

func csvHeader() []string {
	t := reflect.TypeOf(models.RankRow{})
	header := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		header = append(header, t.Field(i).Tag.Get("csv"))
	}
	return header
}

// csvRecord must list fields in models.RankRow declaration order.
func csvRecord(row models.RankRow) []string {
	return []string{
		strconv.Itoa(row.Position),
		row.BookName,
		formatRating(row.BayesianAdjRating),
		formatRating(row.AvgRatingSiteOfficial),
		formatRating(row.AvgRatingSimple),
		strconv.Itoa(row.ReviewCount),
	}
}

func formatRating(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
