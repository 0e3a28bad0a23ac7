package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"propertyvet/internal/screening/models"
)

// FileSink writes each report as <dir>/<request_id>.json. Files are written to
// a temp file and renamed so readers never see a partial report.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Publish(_ context.Context, report models.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".report-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	return os.Rename(tmp.Name(), s.path(report.RequestID))
}

func (s *FileSink) path(requestID string) string {
	// request ids are caller supplied
	return filepath.Join(s.dir, filepath.Base(filepath.Clean("/"+requestID))+".json")
}
