package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/asergian/beacon-sub001/interfaces"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
)

const gmailUser = "me"

type gmailSource struct {
	srv *gmail.Service
	log logger.Logger
}

func newGmailSource(ctx context.Context, credential *GmailCredential, log logger.Logger) (interfaces.MessageSource, error) {
	oauthConfig, err := google.ConfigFromJSON(credential.OAuthClient, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, errors.Wrap(err, "parse gmail client secret")
	}
	httpClient := oauthConfig.Client(ctx, credential.Token)

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if credential.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(credential.Endpoint))
	}
	return newGmailSourceWithOptions(ctx, log, opts...)
}

func newGmailSourceWithOptions(ctx context.Context, log logger.Logger, opts ...option.ClientOption) (interfaces.MessageSource, error) {
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create gmail service")
	}
	return &gmailSource{srv: srv, log: log}, nil
}

func (s *gmailSource) ListMessageIDs(ctx context.Context, query string, since time.Time, maxResults, pageSize int) ([]string, error) {
	q := strings.TrimSpace(fmt.Sprintf("%s after:%d", query, since.Unix()))

	ids := make([]string, 0, maxResults)
	pageToken := ""
	for len(ids) < maxResults {
		call := s.srv.Users.Messages.List(gmailUser).
			Q(q).
			MaxResults(int64(min(pageSize, maxResults-len(ids)))).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, classifyGmailError(err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" || len(resp.Messages) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}
	return ids, nil
}

func (s *gmailSource) GetMessages(ctx context.Context, ids []string) ([]models.RawMessage, error) {
	messages := make([]models.RawMessage, 0, len(ids))
	for _, id := range ids {
		msg, err := s.srv.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
		if err != nil {
			if isGmailNotFound(err) {
				// Deleted between listing and fetching.
				s.log.Debugf("Gmail message %s vanished before fetch", id)
				continue
			}
			return nil, classifyGmailError(err)
		}
		messages = append(messages, gmailToRaw(msg))
	}
	return messages, nil
}

func (s *gmailSource) Close() error {
	return nil
}

func gmailToRaw(msg *gmail.Message) models.RawMessage {
	raw := models.RawMessage{
		ID:        msg.Id,
		ThreadID:  msg.ThreadId,
		Headers:   map[string]string{},
		Labels:    msg.LabelIds,
		Preparsed: true,
	}
	if msg.InternalDate > 0 {
		raw.InternalDateISO = time.UnixMilli(msg.InternalDate).UTC().Format(time.RFC3339)
	}
	if msg.Payload == nil {
		return raw
	}

	for _, header := range msg.Payload.Headers {
		if existing, ok := raw.Headers[header.Name]; ok && isListHeader(header.Name) {
			raw.Headers[header.Name] = existing + ", " + header.Value
			continue
		}
		if _, ok := raw.Headers[header.Name]; !ok {
			raw.Headers[header.Name] = header.Value
		}
	}

	walkGmailParts(msg.Payload, &raw)
	return raw
}

func isListHeader(name string) bool {
	switch strings.ToLower(name) {
	case "to", "cc", "bcc":
		return true
	}
	return false
}

// walkGmailParts collects the first text/plain and text/html bodies and notes attachments.
func walkGmailParts(part *gmail.MessagePart, raw *models.RawMessage) {
	if part == nil {
		return
	}
	if part.Filename != "" {
		raw.HasAttachments = true
	}

	mimeType := strings.ToLower(part.MimeType)
	if part.Body != nil && part.Body.Data != "" && part.Filename == "" {
		switch {
		case mimeType == "text/plain" && raw.BodyText == "":
			raw.BodyText = decodeGmailBody(part.Body.Data)
		case mimeType == "text/html" && raw.BodyHTML == "":
			raw.BodyHTML = decodeGmailBody(part.Body.Data)
		}
	}
	if part.Body != nil && part.Body.AttachmentId != "" {
		raw.HasAttachments = true
	}

	for _, child := range part.Parts {
		walkGmailParts(child, raw)
	}
}

func decodeGmailBody(data string) string {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	return ""
}

func isGmailNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// classifyGmailError marks rate limiting, server errors and transport failures as retriable.
func classifyGmailError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return apperrors.NewTaskError(errors.Wrap(err, "gmail transport"), true)
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= 500:
		return apperrors.NewTaskError(errors.Wrap(err, "gmail"), true)
	case apiErr.Code == http.StatusForbidden:
		for _, item := range apiErr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
				return apperrors.NewTaskError(errors.Wrap(err, "gmail"), true)
			}
		}
	}
	return apperrors.NewTaskError(errors.Wrap(err, "gmail"), false)
}
