package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asergian/beacon-sub001/interfaces"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/services/worker"
)

type fakeSource struct {
	ids      []string
	messages map[string]models.RawMessage
	err      error
	closed   bool
}

func (s *fakeSource) ListMessageIDs(ctx context.Context, query string, since time.Time, maxResults, pageSize int) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ids[:min(maxResults, len(s.ids))], nil
}

func (s *fakeSource) GetMessages(ctx context.Context, ids []string) ([]models.RawMessage, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.RawMessage, 0, len(ids))
	for _, id := range ids {
		if msg, ok := s.messages[id]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

func newHandlerClient(t *testing.T, source *fakeSource) interfaces.ProviderFetchClient {
	t.Helper()
	cfg := testConfig()
	registry := worker.NewRegistry()
	RegisterHandlers(registry, func(ctx context.Context, ref string) (interfaces.MessageSource, error) {
		if ref != "alice" {
			return nil, apperrors.NewTaskError(errors.Wrap(apperrors.ErrCredentialNotFound, ref), false)
		}
		return source, nil
	})
	runner := worker.NewInProcessRunner(cfg.WorkerConfig, registry, logger.NewNopLogger())
	return NewFetchClient(cfg, &scriptedQuota{}, runner, logger.NewNopLogger(),
		WithSleeper((&recordingSleeper{}).Sleep))
}

func TestHandlers_ListAndFetchThroughWorker(t *testing.T) {
	source := &fakeSource{
		ids: []string{"m3", "m2", "m1"},
		messages: map[string]models.RawMessage{
			"m1": {ID: "m1", Headers: map[string]string{"Subject": "one"}, Preparsed: true},
			"m2": {ID: "m2", Raw: []byte("Subject: two\r\n\r\nbody"), Preparsed: false},
		},
	}
	client := newHandlerClient(t, source)

	messages, err := client.Fetch(context.Background(), "alice", "", time.Now().AddDate(0, 0, -3), 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "m2", messages[0].ID)
	assert.Equal(t, []byte("Subject: two\r\n\r\nbody"), messages[0].Raw)
	assert.Equal(t, "one", messages[1].Headers["Subject"])
	assert.True(t, source.closed)
}

func TestHandlers_UnknownCredentialIsPermanent(t *testing.T) {
	client := newHandlerClient(t, &fakeSource{})

	_, err := client.ListMessageIDs(context.Background(), "bob", "", time.Now(), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrFetchFailed)

	var fetchErr *apperrors.FetchFailedError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 1, fetchErr.Attempts)
}

func TestHandlers_RetriableSourceErrorIsRetried(t *testing.T) {
	source := &fakeSource{err: apperrors.NewTaskError(errors.New("503 backend"), true)}
	client := newHandlerClient(t, source)

	_, err := client.ListMessageIDs(context.Background(), "alice", "", time.Now(), 10)
	require.Error(t, err)

	var fetchErr *apperrors.FetchFailedError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 4, fetchErr.Attempts)
}

func TestLoadCredential(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "work.json"), []byte(`{
		"provider": "imap",
		"imap": {"host": "imap.example.com", "port": 993, "tls": true, "username": "me@example.com", "password": "pw"}
	}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"provider": "gmail", "gmail": {}}`), 0o600))

	credential, err := LoadCredential(dir, "work")
	require.NoError(t, err)
	assert.Equal(t, "imap.example.com", credential.IMAP.Host)

	_, err = LoadCredential(dir, "missing")
	assert.ErrorIs(t, err, apperrors.ErrCredentialNotFound)

	_, err = LoadCredential(dir, "../etc/passwd")
	assert.ErrorIs(t, err, apperrors.ErrCredentialNotFound)

	_, err = LoadCredential(dir, "broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrCredentialNotFound)
}
