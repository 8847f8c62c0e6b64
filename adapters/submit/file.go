package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/satriahrh/lextale/domain/entities"
)

// FileSubmitter writes each session's results as <session>.csv and <session>.json
type FileSubmitter struct {
	dir    string
	logger *zap.Logger
}

// NewFileSubmitter creates a submitter writing into dir
func NewFileSubmitter(dir string, logger *zap.Logger) *FileSubmitter {
	return &FileSubmitter{
		dir:    dir,
		logger: logger,
	}
}

// Submit implements repositories.ResultSubmitter
func (s *FileSubmitter) Submit(ctx context.Context, results entities.ResultSet) error {
	if results.SessionID == "" {
		return errors.New("results have no session id")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}

	var csvBuf bytes.Buffer
	if err := WriteCSV(&csvBuf, results); err != nil {
		return err
	}
	jsonData, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	base := filepath.Join(s.dir, filepath.Base(results.SessionID))
	if err := writeFileAtomic(base+".csv", csvBuf.Bytes()); err != nil {
		return err
	}
	if err := writeFileAtomic(base+".json", jsonData); err != nil {
		return err
	}

	s.logger.Info("Results written",
		zap.String("sessionID", results.SessionID),
		zap.String("subject", results.Subject),
		zap.Int("records", len(results.Records)),
		zap.String("path", base))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
