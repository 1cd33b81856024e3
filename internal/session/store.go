package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jsamuelsen11/cclog-share/internal/fsutil"
	"github.com/jsamuelsen11/cclog-share/internal/models"
)

// File labels inside a session directory.
const (
	InputFile  = "session.jsonl"
	OutputFile = "conversation.html"
	MarkerFile = ".cache-marker"

	outputTempPattern = ".conversation-*.html"

	dirMode  = 0o750
	fileMode = 0o640
)

// Store persists session artifacts below a sandbox root. Every path it touches
// is produced by ResolvePath, so no operation reads or writes outside root/id.
//
// Thread Safety: distinct sessions never share files; writes to one session
// are atomic renames, so concurrent readers observe old or new content.
type Store struct {
	root   string
	logger *logrus.Logger
	now    func() time.Time
}

// NewStore creates the storage root if needed and returns a Store over it.
func NewStore(root string, logger *logrus.Logger) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	return &Store{
		root:   abs,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Root returns the absolute sandbox root.
func (s *Store) Root() string {
	return s.root
}

// InputPath returns the path of the session's raw input.
func (s *Store) InputPath(id ID) (string, error) {
	return ResolvePath(s.root, id, InputFile)
}

// OutputPath returns the path of the session's HTML output.
func (s *Store) OutputPath(id ID) (string, error) {
	return ResolvePath(s.root, id, OutputFile)
}

// Put creates the session directory and writes the raw input. Each id is
// written once by the upload flow, so overwriting is allowed.
func (s *Store) Put(id ID, content []byte) error {
	dir, err := ResolvePath(s.root, id, "")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	inputPath, err := s.InputPath(id)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(inputPath, content, fileMode); err != nil {
		return fmt.Errorf("failed to store session input: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": id.String(),
		"bytes":      len(content),
	}).Debug("Session input stored")
	return nil
}

// List returns every session below the root that has a stored input.
// Entries whose names are not identifiers are skipped.
func (s *Store) List() ([]ID, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage root: %w", err)
	}

	ids := make([]ID, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := Parse(entry.Name())
		if err != nil || id.String() != entry.Name() {
			continue
		}
		if s.Exists(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Exists reports whether the session's raw input is present.
func (s *Store) Exists(id ID) bool {
	path, err := s.InputPath(id)
	if err != nil {
		return false
	}
	return fsutil.FileExists(path)
}

// OutputExists reports whether the session's HTML output is present.
func (s *Store) OutputExists(id ID) bool {
	path, err := s.OutputPath(id)
	if err != nil {
		return false
	}
	return fsutil.FileExists(path)
}

// ReadOutput returns the session's HTML output or a NotFound error.
func (s *Store) ReadOutput(id ID) ([]byte, error) {
	path, err := s.OutputPath(id)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- path comes from ResolvePath.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.NewNotFound("output not found")
		}
		return nil, fmt.Errorf("failed to read session output: %w", err)
	}
	return data, nil
}

// WriteMarker records that the current output was produced under fingerprint.
func (s *Store) WriteMarker(id ID, fingerprint string) error {
	path, err := ResolvePath(s.root, id, MarkerFile)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(models.CacheMarker{
		Fingerprint: fingerprint,
		Timestamp:   s.now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache marker: %w", err)
	}

	if err := fsutil.WriteFileAtomic(path, data, fileMode); err != nil {
		return fmt.Errorf("failed to write cache marker: %w", err)
	}
	return nil
}

// ReadMarker returns the session's cache marker, or nil when it is missing or
// unreadable. A corrupt marker is treated exactly like an absent one.
func (s *Store) ReadMarker(id ID) *models.CacheMarker {
	path, err := ResolvePath(s.root, id, MarkerFile)
	if err != nil {
		return nil
	}

	// #nosec G304 -- path comes from ResolvePath.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var marker models.CacheMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		s.logger.WithError(err).WithField("session_id", id.String()).Warn("Ignoring unparsable cache marker")
		return nil
	}
	if marker.Fingerprint == "" {
		return nil
	}
	return &marker
}

// NewOutputTemp reserves a temporary output path inside the session directory.
// The conversion tool writes there; CommitOutput moves it into place.
func (s *Store) NewOutputTemp(id ID) (string, error) {
	dir, err := ResolvePath(s.root, id, "")
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp(dir, outputTempPattern)
	if err != nil {
		return "", fmt.Errorf("failed to reserve output temp file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to close output temp file: %w", err)
	}
	return name, nil
}

// CommitOutput atomically replaces the session output with tempPath.
func (s *Store) CommitOutput(id ID, tempPath string) error {
	if err := s.checkTemp(id, tempPath); err != nil {
		return err
	}
	outputPath, err := s.OutputPath(id)
	if err != nil {
		return err
	}
	if err := os.Chmod(tempPath, fileMode); err != nil {
		return fmt.Errorf("failed to chmod output: %w", err)
	}
	if err := fsutil.ReplaceFile(tempPath, outputPath); err != nil {
		return fmt.Errorf("failed to commit output: %w", err)
	}
	return nil
}

// DiscardOutput removes a temp output left by a failed run.
func (s *Store) DiscardOutput(id ID, tempPath string) {
	if err := s.checkTemp(id, tempPath); err != nil {
		return
	}
	if err := os.Remove(tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.WithError(err).WithField("session_id", id.String()).Warn("Failed to remove temp output")
	}
}

// checkTemp makes sure tempPath is a direct child of the session directory.
func (s *Store) checkTemp(id ID, tempPath string) error {
	dir, err := ResolvePath(s.root, id, "")
	if err != nil {
		return err
	}
	clean := filepath.Clean(tempPath)
	if filepath.Dir(clean) != dir || !strings.HasPrefix(filepath.Base(clean), ".conversation-") {
		return models.NewPathEscape(tempPath)
	}
	return nil
}
