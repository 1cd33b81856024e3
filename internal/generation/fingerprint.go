// Package generation decides when a session's HTML is stale and regenerates it.
// It owns the generation fingerprint (a content hash of the conversion tool and
// its config), the conversion tool runner and the per-session freshness check.
package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jsamuelsen11/cclog-share/internal/fsutil"
	"github.com/jsamuelsen11/cclog-share/internal/metrics"
	"github.com/jsamuelsen11/cclog-share/internal/models"
)

// Snapshot is one computed generation: the fingerprint and the settings
// parsed from the exact config bytes that went into it.
type Snapshot struct {
	Fingerprint string
	Settings    *Settings
}

// Fingerprinter computes and memoizes the generation fingerprint.
//
// The memo is process-wide state shared by every request. Concurrent first
// calls may each compute the fingerprint. A computation only populates the
// memo if no Invalidate happened since it started.
type Fingerprinter struct {
	binaryPath string
	configPath string
	markerPath string
	logger     *logrus.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	// computed runs between a computation finishing and the memo update.
	computed func()

	mu     sync.RWMutex
	cached *Snapshot
	epoch  uint64
}

// NewFingerprinter creates a fingerprinter for the tool at binaryPath and the
// generation config under storageRoot.
func NewFingerprinter(binaryPath, storageRoot string, logger *logrus.Logger, m *metrics.Metrics) *Fingerprinter {
	return &Fingerprinter{
		binaryPath: binaryPath,
		configPath: ConfigPath(storageRoot),
		markerPath: filepath.Join(storageRoot, MarkerFileName),
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// BinaryPath returns the conversion tool location.
func (f *Fingerprinter) BinaryPath() string {
	return f.binaryPath
}

// ConfigPath returns the generation config location.
func (f *Fingerprinter) ConfigPath() string {
	return f.configPath
}

// Current returns the memoized fingerprint, computing it on first use.
func (f *Fingerprinter) Current(ctx context.Context) (string, error) {
	snap, err := f.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return snap.Fingerprint, nil
}

// Snapshot returns the memoized generation, computing it on first use.
func (f *Fingerprinter) Snapshot(ctx context.Context) (*Snapshot, error) {
	f.mu.RLock()
	cached, epoch := f.cached, f.epoch
	f.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, err := f.compute()
	if err != nil {
		return nil, err
	}
	if f.computed != nil {
		f.computed()
	}

	f.mu.Lock()
	if f.epoch == epoch {
		f.cached = snap
	}
	f.mu.Unlock()
	return snap, nil
}

// Invalidate drops the memo; the next call recomputes from disk.
func (f *Fingerprinter) Invalidate() {
	f.mu.Lock()
	f.cached = nil
	f.epoch++
	f.mu.Unlock()

	f.metrics.FingerprintInvalidation.Inc()
	f.logger.Info("Generation fingerprint invalidated")
}

// Initialize makes sure a generation config exists, computes the fingerprint
// and writes the diagnostic marker for operators. Errors here must abort
// startup: no session can be served without a fingerprint.
func (f *Fingerprinter) Initialize(ctx context.Context) (string, error) {
	created, err := EnsureConfig(f.configPath)
	if err != nil {
		return "", err
	}
	if created {
		f.logger.WithField("path", f.configPath).Info("Created default generation config")
	}

	fingerprint, err := f.Current(ctx)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(models.GenerationMarker{
		Fingerprint: fingerprint,
		Timestamp:   f.now().UTC(),
		BinaryPath:  f.binaryPath,
		ConfigPath:  f.configPath,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal generation marker: %w", err)
	}
	if err := fsutil.WriteFileAtomic(f.markerPath, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write generation marker: %w", err)
	}

	f.logger.WithFields(logrus.Fields{
		"fingerprint": fingerprint,
		"binary_path": f.binaryPath,
		"config_path": f.configPath,
	}).Info("Generation marker initialized")
	return fingerprint, nil
}

func (f *Fingerprinter) compute() (*Snapshot, error) {
	if _, err := EnsureConfig(f.configPath); err != nil {
		return nil, err
	}

	binaryHash, err := HashFile(f.binaryPath)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- config path is derived from the configured storage root.
	configData, err := os.ReadFile(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to hash file %s: %w", f.configPath, err)
	}
	settings, err := ParseSettings(configData)
	if err != nil {
		f.logger.WithError(err).
			WithField("config_path", f.configPath).
			Warn("Generation config is not valid, converting with default settings")
		settings = DefaultSettings()
	}

	f.metrics.FingerprintComputations.Inc()
	return &Snapshot{
		Fingerprint: Combine(binaryHash, HashBytes(configData)),
		Settings:    settings,
	}, nil
}

// HashFile returns the hex SHA-256 of a file's contents.
func HashFile(path string) (string, error) {
	// #nosec G304 -- callers pass resolved tool and config paths.
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to hash file %s: %w", path, err)
	}
	return HashBytes(data), nil
}

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Combine derives the generation fingerprint from the tool and config hashes.
func Combine(binaryHash, configHash string) string {
	return HashBytes([]byte(binaryHash + ":" + configHash))
}
