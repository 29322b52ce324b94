package registry

import (
	"fmt"
	"os"
	"path/filepath"
)

// ArtifactStore persists trained model artifacts on disk. Publication is
// atomic: the artifact is written to a temporary file, synced, and renamed
// into place, so a concurrent reader never observes a partial artifact.
type ArtifactStore struct {
	dir string
}

// NewArtifactStore creates the artifact directory if needed.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &ArtifactStore{dir: dir}, nil
}

// Path returns the published location for a backend's artifact.
func (s *ArtifactStore) Path(backendID string) string {
	return filepath.Join(s.dir, backendID+".json")
}

// Save atomically publishes an artifact for the backend and returns its path.
func (s *ArtifactStore) Save(backendID string, data []byte) (string, error) {
	final := s.Path(backendID)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("sync artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close artifact: %w", err)
	}

	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("publish artifact: %w", err)
	}
	return final, nil
}

// Load reads the published artifact for the backend.
func (s *ArtifactStore) Load(backendID string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(backendID))
	if err != nil {
		return nil, fmt.Errorf("load artifact for %s: %w", backendID, err)
	}
	return data, nil
}
