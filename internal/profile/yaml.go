package profile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ReadYAML decodes a snapshot. A missing schema_version is read as 1.
func ReadYAML(r io.Reader) (Snapshot, error) {
	var s Snapshot
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return Snapshot{}, ErrNoSnapshot
		}
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	if s.SchemaVersion == 0 {
		s.SchemaVersion = 1
	}
	return s, nil
}

// WriteYAML encodes s.
func WriteYAML(w io.Writer, s Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return enc.Close()
}

// YAMLFileRepository keeps a snapshot in a YAML file. It is used for
// import/export and for the hot-reloaded profile file.
type YAMLFileRepository struct {
	path string
}

// NewYAMLFileRepository creates a repository for path.
func NewYAMLFileRepository(path string) *YAMLFileRepository {
	return &YAMLFileRepository{path: path}
}

// Path returns the file path.
func (r *YAMLFileRepository) Path() string { return r.path }

// Load reads the file. A missing or empty file gives ErrNoSnapshot.
func (r *YAMLFileRepository) Load(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading %s: %w", r.path, err)
	}
	return ReadYAML(bytes.NewReader(data))
}

// Save writes the file through a temporary file and a rename so readers
// and the file watcher never see a partial document.
func (r *YAMLFileRepository) Save(_ context.Context, s Snapshot) error {
	var buf bytes.Buffer
	if err := WriteYAML(&buf, s); err != nil {
		return err
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".remapd-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replacing %s: %w", r.path, err)
	}
	return nil
}
