package pipeline

import (
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// DualWriter fans the report out to a CSV and a JSON lines file.
type DualWriter struct {
	targets []target
}

type target struct {
	format string
	writer OutputWriter
}

// NewDualWriter creates both output files.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("failed to create JSON writer: %w", err)
	}
	return &DualWriter{targets: []target{
		{format: "CSV", writer: csvWriter},
		{format: "JSON", writer: jsonWriter},
	}}, nil
}

// Write stops at the first target that fails.
func (dw *DualWriter) Write(rows []models.RankRow) error {
	for _, t := range dw.targets {
		if err := t.writer.Write(rows); err != nil {
			return fmt.Errorf("%s write failed: %w", t.format, err)
		}
	}
	return nil
}

// Close closes every target and joins their errors.
func (dw *DualWriter) Close() error {
	return dw.each("close", OutputWriter.Close)
}

// Validate validates every target and joins their errors.
func (dw *DualWriter) Validate() error {
	return dw.each("validation", OutputWriter.Validate)
}

func (dw *DualWriter) each(op string, fn func(OutputWriter) error) error {
	var errs []error
	for _, t := range dw.targets {
		if err := fn(t.writer); err != nil {
			errs = append(errs, fmt.Errorf("%s %s failed: %w", t.format, op, err))
		}
	}
	return errors.Join(errs...)
}
