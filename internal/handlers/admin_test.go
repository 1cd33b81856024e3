package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen11/cclog-share/internal/handlers"
	"github.com/jsamuelsen11/cclog-share/internal/models"
)

type fakeStats struct {
	stats *models.SessionStats
	err   error
}

func (f *fakeStats) Stats(context.Context) (*models.SessionStats, error) {
	return f.stats, f.err
}

func newAdminRouter(gen *fakeGeneration) *mux.Router {
	return newAdminRouterWithStats(gen, &fakeStats{stats: &models.SessionStats{}})
}

func newAdminRouterWithStats(gen *fakeGeneration, stats *fakeStats) *mux.Router {
	router := mux.NewRouter()
	handlers.NewAdminHandler(gen, stats, nullLogger()).RegisterRoutes(router)
	return router
}

func TestAdminHandler_Status(t *testing.T) {
	t.Parallel()

	router := newAdminRouter(&fakeGeneration{fingerprint: testFingerprint})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/generation", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.GenerationStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, testFingerprint, resp.Fingerprint)
	assert.Equal(t, "/usr/local/bin/cclogviewer", resp.BinaryPath)
	assert.Equal(t, "/data/.cclogviewer-config.json", resp.ConfigPath)
}

func TestAdminHandler_Invalidate(t *testing.T) {
	t.Parallel()

	next := "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210"
	tests := []struct {
		name             string
		gen              *fakeGeneration
		expectedStatus   int
		expectedPrevious string
		expectedCurrent  string
	}{
		{
			name:             "fingerprint_changed",
			gen:              &fakeGeneration{fingerprint: testFingerprint, next: next},
			expectedStatus:   http.StatusOK,
			expectedPrevious: testFingerprint,
			expectedCurrent:  next,
		},
		{
			name:             "fingerprint_unchanged",
			gen:              &fakeGeneration{fingerprint: testFingerprint},
			expectedStatus:   http.StatusOK,
			expectedPrevious: testFingerprint,
			expectedCurrent:  testFingerprint,
		},
		{
			name:           "recompute_fails",
			gen:            &fakeGeneration{fingerprint: testFingerprint, initErr: errors.New("binary removed")},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := newAdminRouter(tt.gen)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/generation/invalidate", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, 1, tt.gen.invalidated)
			if tt.expectedStatus != http.StatusOK {
				var resp models.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.False(t, resp.Success)
				return
			}

			var resp models.InvalidateResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.True(t, resp.Success)
			assert.Equal(t, tt.expectedPrevious, resp.PreviousFingerprint)
			assert.Equal(t, tt.expectedCurrent, resp.Fingerprint)
			assert.False(t, resp.Timestamp.IsZero())
		})
	}
}

func TestAdminHandler_InvalidateRequiresPost(t *testing.T) {
	t.Parallel()

	gen := &fakeGeneration{fingerprint: testFingerprint}
	router := newAdminRouter(gen)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/generation/invalidate", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Zero(t, gen.invalidated)
}

func TestAdminHandler_Sessions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		stats          *fakeStats
		expectedStatus int
	}{
		{
			name: "counts",
			stats: &fakeStats{stats: &models.SessionStats{
				Fingerprint: testFingerprint, Total: 5, Fresh: 3, Stale: 2,
			}},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "storage_unreadable",
			stats:          &fakeStats{err: errors.New("permission denied")},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := newAdminRouterWithStats(&fakeGeneration{fingerprint: testFingerprint}, tt.stats)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus != http.StatusOK {
				return
			}
			var resp models.SessionStats
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, *tt.stats.stats, resp)
		})
	}
}
