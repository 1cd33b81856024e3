package generation

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/jsamuelsen11/cclog-share/internal/metrics"
	"github.com/jsamuelsen11/cclog-share/internal/models"
	"github.com/jsamuelsen11/cclog-share/internal/session"
)

// State is the freshness of a session's cached output.
type State int

const (
	// Stale means the output is missing, has no marker, or was produced under
	// another fingerprint.
	Stale State = iota
	// Fresh means the output was produced under the current fingerprint.
	Fresh
)

// String returns the state name.
func (s State) String() string {
	if s == Fresh {
		return "fresh"
	}
	return "stale"
}

// Regenerator keeps session outputs in step with the current generation.
// Upload (forced) and view (lazy) both go through refresh, so there is one
// code path that invokes the conversion tool.
type Regenerator struct {
	store        *session.Store
	fingerprints *Fingerprinter
	converter    Converter
	logger       *logrus.Logger
	metrics      *metrics.Metrics
	flights      singleflight.Group
}

// NewRegenerator wires the store, fingerprinter and converter together.
func NewRegenerator(
	store *session.Store,
	fingerprints *Fingerprinter,
	converter Converter,
	logger *logrus.Logger,
	m *metrics.Metrics,
) *Regenerator {
	return &Regenerator{
		store:        store,
		fingerprints: fingerprints,
		converter:    converter,
		logger:       logger,
		metrics:      m,
	}
}

// Classify reports whether id's output is fresh against fingerprint.
func (r *Regenerator) Classify(id session.ID, fingerprint string) State {
	if !r.store.OutputExists(id) {
		return Stale
	}
	marker := r.store.ReadMarker(id)
	if marker == nil || marker.Fingerprint != fingerprint {
		return Stale
	}
	return Fresh
}

// Stats classifies every stored session against the current fingerprint.
func (r *Regenerator) Stats(ctx context.Context) (*models.SessionStats, error) {
	fingerprint, err := r.fingerprints.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute generation fingerprint: %w", err)
	}
	ids, err := r.store.List()
	if err != nil {
		return nil, err
	}

	stats := &models.SessionStats{Fingerprint: fingerprint, Total: len(ids)}
	for _, id := range ids {
		if r.Classify(id, fingerprint) == Fresh {
			stats.Fresh++
		} else {
			stats.Stale++
		}
	}
	return stats, nil
}

// EnsureFresh regenerates id's output only when it is stale.
func (r *Regenerator) EnsureFresh(ctx context.Context, id session.ID) error {
	return r.refresh(ctx, id, metrics.TriggerView, false)
}

// Generate regenerates id's output unconditionally. Used right after upload.
func (r *Regenerator) Generate(ctx context.Context, id session.ID) error {
	return r.refresh(ctx, id, metrics.TriggerUpload, true)
}

// refresh coalesces concurrent calls for the same session so the tool runs at
// most once per id at a time. The work is detached from ctx cancellation so a
// client going away does not leave output and marker out of step.
func (r *Regenerator) refresh(ctx context.Context, id session.ID, trigger string, force bool) error {
	key := id.String()
	if force {
		key = "force:" + key
	}

	detached := context.WithoutCancel(ctx)
	_, err, shared := r.flights.Do(key, func() (interface{}, error) {
		return nil, r.refreshOnce(detached, id, trigger, force)
	})
	if shared {
		r.logger.WithField("session_id", id.String()).Debug("Joined in-flight regeneration")
	}
	return err
}

func (r *Regenerator) refreshOnce(ctx context.Context, id session.ID, trigger string, force bool) error {
	if !r.store.Exists(id) {
		return models.NewNotFound("session not found")
	}

	snap, err := r.fingerprints.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute generation fingerprint: %w", err)
	}

	if !force && r.Classify(id, snap.Fingerprint) == Fresh {
		r.metrics.GenerationsTotal.WithLabelValues(trigger, metrics.OutcomeCacheHit).Inc()
		return nil
	}

	log := r.logger.WithFields(logrus.Fields{
		"session_id":  id.String(),
		"trigger":     trigger,
		"fingerprint": snap.Fingerprint,
	})
	log.Info("Regenerating HTML for session")

	inputPath, err := r.store.InputPath(id)
	if err != nil {
		return err
	}
	tempPath, err := r.store.NewOutputTemp(id)
	if err != nil {
		return err
	}

	result := r.converter.Convert(ctx, inputPath, tempPath, snap.Settings.ToolArgs)
	r.metrics.GenerationDuration.WithLabelValues(trigger).Observe(result.Duration.Seconds())

	if result.Outcome != Succeeded {
		r.store.DiscardOutput(id, tempPath)
		outcome := metrics.OutcomeFailure
		if result.Outcome == TimedOut {
			outcome = metrics.OutcomeTimeout
		}
		r.metrics.GenerationsTotal.WithLabelValues(trigger, outcome).Inc()
		log.WithFields(logrus.Fields{
			"outcome":    result.Outcome.String(),
			"exit_code":  result.ExitCode,
			"diagnostic": result.Diagnostic,
		}).Error("Conversion tool failed")
		return models.NewGenerationFailed(result.Summary(), nil)
	}

	if err := r.store.CommitOutput(id, tempPath); err != nil {
		r.store.DiscardOutput(id, tempPath)
		return err
	}
	if err := r.store.WriteMarker(id, snap.Fingerprint); err != nil {
		return err
	}

	r.metrics.GenerationsTotal.WithLabelValues(trigger, metrics.OutcomeSuccess).Inc()
	log.WithField("duration_ms", result.Duration.Milliseconds()).Info("Session HTML regenerated")
	return nil
}
