package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
)

func newGmailTestServer(t *testing.T, handler http.HandlerFunc) *gmailSource {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	source, err := newGmailSourceWithOptions(context.Background(), logger.NewNopLogger(),
		option.WithEndpoint(server.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return source.(*gmailSource)
}

func TestGmailSource_ListFollowsPages(t *testing.T) {
	var queries []string
	source := newGmailTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"messages":[{"id":"a"},{"id":"b"}],"nextPageToken":"next"}`))
			return
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"c"}]}`))
	})

	since := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	got, err := source.ListMessageIDs(context.Background(), "in:inbox", since, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	require.NotEmpty(t, queries)
	assert.Equal(t, "in:inbox after:1772841600", queries[0])
}

func TestGmailSource_GetMessagesMapsPayload(t *testing.T) {
	body := base64.URLEncoding.EncodeToString([]byte("Hello there"))
	html := base64.URLEncoding.EncodeToString([]byte("<p>Hello <b>there</b></p>"))
	source := newGmailTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/gone") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"id": "m1",
			"threadId": "t1",
			"internalDate": "1772880000000",
			"labelIds": ["INBOX", "UNREAD"],
			"payload": {
				"mimeType": "multipart/mixed",
				"headers": [
					{"name": "Subject", "value": "Quarterly report"},
					{"name": "From", "value": "Ann <ann@example.com>"},
					{"name": "To", "value": "bob@example.com"},
					{"name": "To", "value": "carol@example.com"}
				],
				"parts": [
					{"mimeType": "multipart/alternative", "parts": [
						{"mimeType": "text/plain", "body": {"data": "` + body + `"}},
						{"mimeType": "text/html", "body": {"data": "` + html + `"}}
					]},
					{"mimeType": "application/pdf", "filename": "report.pdf", "body": {"attachmentId": "att1"}}
				]
			}
		}`))
	})

	messages, err := source.GetMessages(context.Background(), []string{"m1", "gone"})
	require.NoError(t, err)
	require.Len(t, messages, 1)

	msg := messages[0]
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "t1", msg.ThreadID)
	assert.True(t, msg.Preparsed)
	assert.True(t, msg.HasAttachments)
	assert.Equal(t, "Hello there", msg.BodyText)
	assert.Equal(t, "<p>Hello <b>there</b></p>", msg.BodyHTML)
	assert.Equal(t, "Quarterly report", msg.Headers["Subject"])
	assert.Equal(t, "bob@example.com, carol@example.com", msg.Headers["To"])
	assert.Equal(t, "2026-03-07T10:40:00Z", msg.InternalDateISO)
	assert.Equal(t, []string{"INBOX", "UNREAD"}, msg.Labels)
}

func TestGmailSource_RateLimitIsRetriable(t *testing.T) {
	source := newGmailTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"slow down"}}`))
	})

	_, err := source.ListMessageIDs(context.Background(), "", time.Now(), 5, 5)
	require.Error(t, err)
	assert.True(t, apperrors.IsRetriable(err))
}

func TestGmailSource_AuthFailureIsPermanent(t *testing.T) {
	source := newGmailTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"invalid credentials"}}`))
	})

	_, err := source.ListMessageIDs(context.Background(), "", time.Now(), 5, 5)
	require.Error(t, err)
	assert.False(t, apperrors.IsRetriable(err))
}
