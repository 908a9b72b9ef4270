package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apexlabs/apex-backend/internal/logger"
)

// StorageService is the blob boundary for every artifact the pipeline
// writes: uploads, isometric renderings, explanation text, quiz files
// and downloaded 3D outputs. The local filesystem implementation below
// is the reference one; the interface keeps it replaceable.
type StorageService interface {
	Save(dir, name string, data []byte) (string, error)
	Read(path string) ([]byte, error)
	Exists(path string) bool
}

type localStorageService struct {
	log     *logger.Logger
	baseDir string
}

func NewLocalStorageService(log *logger.Logger, baseDir string) (StorageService, error) {
	serviceLog := log.With("service", "StorageService")
	if baseDir == "" {
		baseDir = "."
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %q: %w", baseDir, err)
	}
	return &localStorageService{log: serviceLog, baseDir: baseDir}, nil
}

func (s *localStorageService) Save(dir, name string, data []byte) (string, error) {
	fullDir := filepath.Join(s.baseDir, dir)
	if err := os.MkdirAll(fullDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create dir %q: %w", fullDir, err)
	}
	fullPath := filepath.Join(fullDir, name)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %q: %w", fullPath, err)
	}
	// Stored paths use forward slashes regardless of host OS.
	return filepath.ToSlash(fullPath), nil
}

func (s *localStorageService) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.FromSlash(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	return data, nil
}

func (s *localStorageService) Exists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	_, err := os.Stat(filepath.FromSlash(path))
	return err == nil
}
