package parser

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/utils"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

var multipartMessage = crlf(`From: "Ann Example" <ann@example.com>
To: bob@example.com, Carol <carol@example.com>
Subject: =?UTF-8?Q?Caf=C3=A9_plans?=
Date: Tue, 10 Mar 2026 09:15:00 +0100 (CET)
Message-ID: <abc123@example.com>
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: quoted-printable

Caf=C3=A9 meeting at 10am.
--b1
Content-Type: text/html; charset=utf-8

<p>Caf=C3=A9 meeting at <b>10am</b>.</p>
--b1--
`)

var htmlOnlyMessage = crlf(`From: news@shop.example.com
To: bob@example.com
Subject: Weekly deals
Date: Wed, 11 Mar 2026 10:00:00 +0000
List-Unsubscribe: <mailto:unsub@shop.example.com>
MIME-Version: 1.0
Content-Type: text/html; charset=utf-8

<html><body><h1>Deals</h1><p>50% off<br>today only</p></body></html>
`)

type fakeStorage struct {
	mu      sync.Mutex
	uploads map[string][]byte
}

func (s *fakeStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploads == nil {
		s.uploads = map[string][]byte{}
	}
	s.uploads[key] = data
	return nil
}

func (s *fakeStorage) Download(ctx context.Context, key string) ([]byte, error) {
	return s.uploads[key], nil
}

func (s *fakeStorage) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}

func (s *fakeStorage) Delete(ctx context.Context, key string) error {
	return nil
}

func (s *fakeStorage) GetPublicURL(key string) string {
	return key
}

func TestFromRawMIME_Multipart(t *testing.T) {
	msg, err := FromRawMIME(models.RawMessage{ID: "42", Raw: multipartMessage})
	require.NoError(t, err)

	assert.Equal(t, "42", msg.ID)
	assert.Equal(t, "abc123@example.com", msg.MessageID)
	assert.Equal(t, "Ann Example", msg.From.Name)
	assert.Equal(t, "ann@example.com", msg.From.Address)
	require.Len(t, msg.To, 2)
	assert.Equal(t, "carol@example.com", msg.To[1].Address)
	assert.Equal(t, "Café plans", msg.Subject)
	assert.Equal(t, "Café meeting at 10am.", msg.BodyText)
	assert.Contains(t, msg.BodyHTML, "<b>10am</b>")
	assert.Equal(t, time.Date(2026, 3, 10, 8, 15, 0, 0, time.UTC), msg.Date)
	assert.Equal(t, time.UTC, msg.Date.Location())
	assert.Equal(t, enum.MessageSourceRawMIME, msg.Source)
	assert.Equal(t, enum.EmailOK, msg.Classification)
}

func TestFromRawMIME_HTMLOnlyIsReducedToText(t *testing.T) {
	msg, err := FromRawMIME(models.RawMessage{ID: "7", Raw: htmlOnlyMessage})
	require.NoError(t, err)

	assert.Equal(t, "Deals\n50% off\ntoday only", msg.BodyText)
	assert.Equal(t, enum.EmailBulk, msg.Classification)
}

func TestFromRawMIME_FallsBackToInternalDate(t *testing.T) {
	raw := crlf("From: ann@example.com\nSubject: no date\n\nbody\n")
	msg, err := FromRawMIME(models.RawMessage{ID: "8", Raw: raw, InternalDateISO: "2026-03-09T23:30:00-02:00"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC), msg.Date)
	assert.Equal(t, "body", msg.BodyText)
}

func TestFromPreparsed(t *testing.T) {
	raw := models.RawMessage{
		ID:       "g1",
		ThreadID: "t1",
		Headers: map[string]string{
			"From":           "Ann <ann@example.com>",
			"To":             "bob@example.com",
			"Subject":        "Lunch?",
			"Date":           "Tue, 10 Mar 2026 09:15:00 +0100",
			"Auto-Submitted": "auto-replied",
		},
		BodyHTML:        "<p>See you <a href=\"https://maps.example.com/x\">there</a></p>",
		InternalDateISO: "2026-03-10T12:00:00Z",
		HasAttachments:  true,
		Labels:          []string{"INBOX"},
		Preparsed:       true,
	}

	msg, err := FromPreparsed(raw)
	require.NoError(t, err)

	assert.Equal(t, "t1", msg.ThreadID)
	assert.Equal(t, "Ann", msg.From.Name)
	assert.Equal(t, "Lunch?", msg.Subject)
	assert.Equal(t, "See you there (https://maps.example.com/x)", msg.BodyText)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), msg.Date)
	assert.True(t, msg.HasAttachments)
	assert.Equal(t, []string{"INBOX"}, msg.Labels)
	assert.Equal(t, enum.MessageSourcePreparsed, msg.Source)
	assert.Equal(t, enum.EmailAutoResponder, msg.Classification)
}

func TestFromPreparsed_Bounce(t *testing.T) {
	msg, err := FromPreparsed(models.RawMessage{
		ID: "b1",
		Headers: map[string]string{
			"from":    "MAILER-DAEMON@mx.example.com",
			"subject": "Undelivered Mail Returned to Sender",
		},
		BodyText:  "The message could not be delivered.",
		Preparsed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, enum.EmailBounceNotification, msg.Classification)
	assert.True(t, msg.Date.IsZero())
}

func TestExtractMetadata_SelectsConstructorByMarker(t *testing.T) {
	p := NewContentParser(logger.NewNopLogger(), nil)

	msg, err := p.ExtractMetadata(context.Background(), models.RawMessage{ID: "1", Raw: multipartMessage})
	require.NoError(t, err)
	assert.Equal(t, enum.MessageSourceRawMIME, msg.Source)

	msg, err = p.ExtractMetadata(context.Background(), models.RawMessage{
		ID:        "2",
		Headers:   map[string]string{"Subject": "hi"},
		BodyText:  "hello",
		Preparsed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, enum.MessageSourcePreparsed, msg.Source)
}

func TestExtractMetadata_IsDeterministic(t *testing.T) {
	p := NewContentParser(logger.NewNopLogger(), nil)

	for _, raw := range []models.RawMessage{
		{ID: "1", Raw: multipartMessage},
		{ID: "2", Raw: htmlOnlyMessage},
		{ID: "3", Headers: map[string]string{"From": "ann@example.com", "Subject": "x"}, BodyHTML: "<div>a</div><div>b</div>", Preparsed: true},
	} {
		first, err := p.ExtractMetadata(context.Background(), raw)
		require.NoError(t, err)
		second, err := p.ExtractMetadata(context.Background(), raw)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestExtractMetadata_ParseErrors(t *testing.T) {
	storage := &fakeStorage{}
	p := NewContentParser(logger.NewNopLogger(), storage)
	ctx := utils.SetUserIdInContext(context.Background(), "u1")

	_, err := p.ExtractMetadata(ctx, models.RawMessage{Preparsed: true, BodyText: "x"})
	assert.ErrorIs(t, err, apperrors.ErrParse)

	_, err = p.ExtractMetadata(ctx, models.RawMessage{ID: "empty"})
	assert.ErrorIs(t, err, apperrors.ErrParse)

	_, err = p.ExtractMetadata(ctx, models.RawMessage{ID: "junk/1", Raw: []byte(" not a message")})
	require.ErrorIs(t, err, apperrors.ErrParse)
	assert.Equal(t, "parse_error", apperrors.Kind(err))

	require.Len(t, storage.uploads, 1)
	for key, data := range storage.uploads {
		assert.True(t, strings.HasPrefix(key, "quarantine/u1/"), key)
		assert.True(t, strings.HasSuffix(key, "/junk_1.eml"), key)
		assert.Equal(t, []byte(" not a message"), data)
	}
}
