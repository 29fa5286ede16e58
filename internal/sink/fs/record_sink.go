// Package fs writes record batches as JSON files on the local filesystem.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/venue-crawler/internal/sink"
)

// Config captures the parameters for the filesystem sink.
type Config struct {
	// BaseDir is the root directory where batches will be written.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// Indent pretty-prints the JSON output.
	Indent bool `mapstructure:"indent" yaml:"indent"`
}

// RecordSink writes one file per run under BaseDir.
type RecordSink struct {
	baseDir string
	indent  bool
}

// New validates BaseDir, creating it when missing, and checks it is writable.
func New(cfg Config) (*RecordSink, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, errors.New("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, errors.New("base directory path is not a directory")
	}

	probe := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}
	return &RecordSink{baseDir: cfg.BaseDir, indent: cfg.Indent}, nil
}

// Put writes the batch to <base>/<run id>.json and returns a file:// URI. The
// file is written to a temporary name first so readers never see a partial one.
func (s *RecordSink) Put(ctx context.Context, batch sink.Batch) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("put batch: %w", err)
	}
	fullPath, err := s.path(batch.RunID.String() + ".json")
	if err != nil {
		return "", err
	}

	var data []byte
	if s.indent {
		data, err = json.MarshalIndent(batch, "", "  ")
	} else {
		data, err = json.Marshal(batch)
	}
	if err != nil {
		return "", fmt.Errorf("encode batch: %w", err)
	}

	tmp, err := os.CreateTemp(s.baseDir, ".batch-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write batch: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename batch file: %w", err)
	}
	return "file://" + fullPath, nil
}

func (s *RecordSink) path(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("path is required")
	}
	base := filepath.Clean(s.baseDir)
	full := filepath.Clean(filepath.Join(base, name))
	if !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", errors.New("path traversal detected")
	}
	return full, nil
}
