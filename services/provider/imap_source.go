package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/interfaces"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
)

const (
	imapDialTimeout  = 30 * time.Second
	imapFetchTimeout = 60 * time.Second
)

type imapSource struct {
	c      *client.Client
	folder string
	log    logger.Logger
}

func newIMAPSource(ctx context.Context, credential *IMAPCredential, log logger.Logger) (interfaces.MessageSource, error) {
	port := credential.Port
	if port == 0 {
		port = 993
	}
	serverAddr := fmt.Sprintf("%s:%d", credential.Host, port)

	dialer := &net.Dialer{
		Timeout:   imapDialTimeout,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error
	if credential.TLS {
		c, err = client.DialWithDialerTLS(dialer, serverAddr, &tls.Config{ServerName: credential.Host})
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		return nil, apperrors.NewTaskError(errors.Wrapf(err, "connect to %s", serverAddr), true)
	}

	c.Timeout = imapDialTimeout
	if err := c.Login(credential.Username, credential.Password); err != nil {
		_ = c.Logout()
		return nil, apperrors.NewTaskError(errors.Wrapf(err, "login as %s", credential.Username), false)
	}

	folder := credential.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := c.Select(folder, true); err != nil {
		_ = c.Logout()
		return nil, apperrors.NewTaskError(errors.Wrapf(err, "select %s", folder), false)
	}
	c.Timeout = 0

	log.Debugf("Connected to %s, folder %s", serverAddr, folder)
	return &imapSource{c: c, folder: folder, log: log}, nil
}

// ListMessageIDs returns UIDs newest first. The query, if any, is matched as IMAP TEXT.
func (s *imapSource) ListMessageIDs(ctx context.Context, query string, since time.Time, maxResults, pageSize int) ([]string, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	if query != "" {
		criteria.Text = []string{query}
	}

	s.c.Timeout = imapFetchTimeout
	uids, err := s.c.UidSearch(criteria)
	s.c.Timeout = 0
	if err != nil {
		return nil, apperrors.NewTaskError(errors.Wrap(err, "imap search"), true)
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	if len(uids) > maxResults {
		uids = uids[:maxResults]
	}

	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

func (s *imapSource) GetMessages(ctx context.Context, ids []string) ([]models.RawMessage, error) {
	seqSet := new(imap.SeqSet)
	for _, id := range ids {
		uid, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			return nil, apperrors.NewTaskError(errors.Wrapf(err, "invalid imap uid %q", id), false)
		}
		seqSet.AddNum(uint32(uid))
	}

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		section.FetchItem(),
		imap.FetchUid,
		imap.FetchFlags,
		imap.FetchInternalDate,
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	s.c.Timeout = imapFetchTimeout
	go func() {
		done <- s.c.UidFetch(seqSet, items, messages)
	}()

	byID := make(map[string]models.RawMessage, len(ids))
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		data, err := io.ReadAll(body)
		if err != nil {
			continue
		}
		id := strconv.FormatUint(uint64(msg.Uid), 10)
		byID[id] = models.RawMessage{
			ID:              id,
			Raw:             data,
			InternalDateISO: msg.InternalDate.UTC().Format(time.RFC3339),
			Labels:          msg.Flags,
		}
	}
	err := <-done
	s.c.Timeout = 0
	if err != nil {
		return nil, apperrors.NewTaskError(errors.Wrap(err, "imap fetch"), true)
	}

	out := make([]models.RawMessage, 0, len(byID))
	for _, id := range ids {
		if msg, ok := byID[id]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *imapSource) Close() error {
	return s.c.Logout()
}
