package handlers_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen11/cclog-share/internal/config"
	"github.com/jsamuelsen11/cclog-share/internal/models"
	"github.com/jsamuelsen11/cclog-share/internal/session"
)

const testFingerprint = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func nullLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{BaseURL: "https://share.example.com/"},
		Upload: config.UploadConfig{MaxFileSizeMB: 1, MaxLines: 3},
	}
}

// fakeStore keeps inputs and outputs in memory.
type fakeStore struct {
	mu      sync.Mutex
	inputs  map[session.ID][]byte
	outputs map[session.ID][]byte
	putErr  error
	readErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		inputs:  make(map[session.ID][]byte),
		outputs: make(map[session.ID][]byte),
	}
}

func (s *fakeStore) Put(id session.ID, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.inputs[id] = content
	return nil
}

func (s *fakeStore) ReadOutput(id session.ID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	out, ok := s.outputs[id]
	if !ok {
		return nil, models.NewNotFound("output not found")
	}
	return out, nil
}

func (s *fakeStore) setOutput(id session.ID, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[id] = []byte(html)
}

func (s *fakeStore) input(id session.ID) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs[id]
}

// fakeRegenerator records calls and returns canned errors.
type fakeRegenerator struct {
	ensureErr   error
	generateErr error
	ensured     atomic.Int32
	generated   atomic.Int32
	lastID      atomic.Value
}

func (f *fakeRegenerator) EnsureFresh(_ context.Context, id session.ID) error {
	f.ensured.Add(1)
	f.lastID.Store(id)
	return f.ensureErr
}

func (f *fakeRegenerator) Generate(_ context.Context, id session.ID) error {
	f.generated.Add(1)
	f.lastID.Store(id)
	return f.generateErr
}

// fakeGeneration serves a fixed fingerprint until Initialize swaps in next.
type fakeGeneration struct {
	mu          sync.Mutex
	fingerprint string
	next        string
	err         error
	initErr     error
	invalidated int
}

func (g *fakeGeneration) Current(context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	return g.fingerprint, nil
}

func (g *fakeGeneration) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invalidated++
}

func (g *fakeGeneration) Initialize(context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initErr != nil {
		return "", g.initErr
	}
	if g.next != "" {
		g.fingerprint = g.next
	}
	return g.fingerprint, nil
}

func (g *fakeGeneration) BinaryPath() string { return "/usr/local/bin/cclogviewer" }

func (g *fakeGeneration) ConfigPath() string { return "/data/.cclogviewer-config.json" }

// multipartRequest builds a POST with content under field/filename.
func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req
}
