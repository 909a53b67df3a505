package parser

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/utils"
)

// FromRawMIME builds a message from RFC 5322 bytes. enmime handles the common case; messages it
// rejects are retried with net/mail and a minimal body decoder.
func FromRawMIME(raw models.RawMessage) (models.CanonicalMessage, error) {
	if strings.TrimSpace(raw.ID) == "" {
		return models.CanonicalMessage{}, errors.Wrap(apperrors.ErrParse, "message has no id")
	}
	if len(bytes.TrimSpace(raw.Raw)) == 0 {
		return models.CanonicalMessage{}, errors.Wrapf(apperrors.ErrParse, "message %s has no content", raw.ID)
	}

	msg, err := fromEnmime(raw)
	if err != nil {
		var fallbackErr error
		msg, fallbackErr = fromNetMail(raw)
		if fallbackErr != nil {
			return models.CanonicalMessage{}, errors.Wrapf(apperrors.ErrParse, "message %s: %v", raw.ID, err)
		}
	}
	return msg, nil
}

func fromEnmime(raw models.RawMessage) (models.CanonicalMessage, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw.Raw))
	if err != nil {
		return models.CanonicalMessage{}, err
	}

	headers := make(headerSet)
	for _, key := range env.GetHeaderKeys() {
		headers[key] = env.GetHeaderValues(key)
	}
	if len(headers) == 0 {
		return models.CanonicalMessage{}, errors.New("no headers")
	}

	msg := newRawMessage(raw, headers)
	msg.BodyHTML = env.HTML
	if env.Root != nil && hasPlainPart(env.Root) {
		msg.BodyText = normalizeBody(env.Text)
	} else if env.HTML != "" {
		msg.BodyText = htmlToText(env.HTML)
	} else {
		msg.BodyText = normalizeBody(env.Text)
	}
	msg.HasAttachments = raw.HasAttachments || len(env.Attachments) > 0

	msg.Classification, _ = classifySender(headers, msg.Subject, msg.From.Address, firstAddress(msg.ReplyTo))
	return msg, nil
}

// hasPlainPart reports whether the tree contains a text/plain body that is not an attachment.
func hasPlainPart(part *enmime.Part) bool {
	for p := part; p != nil; p = p.NextSibling {
		if strings.EqualFold(p.ContentType, "text/plain") && p.Disposition != "attachment" {
			return true
		}
		if p.FirstChild != nil && hasPlainPart(p.FirstChild) {
			return true
		}
	}
	return false
}

func fromNetMail(raw models.RawMessage) (models.CanonicalMessage, error) {
	m, err := mail.ReadMessage(bytes.NewReader(raw.Raw))
	if err != nil {
		return models.CanonicalMessage{}, err
	}

	headers := headerSet(m.Header)
	msg := newRawMessage(raw, headers)

	text, html, attachments := readBody(headers.get("Content-Type"), headers.get("Content-Transfer-Encoding"), m.Body)
	msg.BodyHTML = html
	msg.BodyText = normalizeBody(text)
	if msg.BodyText == "" && html != "" {
		msg.BodyText = htmlToText(html)
	}
	msg.HasAttachments = raw.HasAttachments || attachments

	msg.Classification, _ = classifySender(headers, msg.Subject, msg.From.Address, firstAddress(msg.ReplyTo))
	return msg, nil
}

// newRawMessage fills the header-derived fields shared by both raw paths.
func newRawMessage(raw models.RawMessage, headers headerSet) models.CanonicalMessage {
	declared := declaredCharset(headers.get("Content-Type"))
	header := func(key string) string {
		return decodeHeader(decodeString(headers.get(key), declared))
	}

	msg := models.CanonicalMessage{
		ID:        raw.ID,
		ThreadID:  raw.ThreadID,
		MessageID: utils.NormalizeMessageID(headers.get("Message-Id")),
		From:      parseAddress(header("From")),
		To:        parseAddressList(header("To")),
		Cc:        parseAddressList(header("Cc")),
		ReplyTo:   parseAddressList(header("Reply-To")),
		Subject:   strings.TrimSpace(header("Subject")),
		Labels:    raw.Labels,
		Source:    enum.MessageSourceRawMIME,
	}
	if date, ok := parseDate(headers.get("Date")); ok {
		msg.Date = date
	} else if date, ok := parseInternalDate(raw.InternalDateISO); ok {
		msg.Date = date
	}
	return msg
}

// readBody walks a MIME body without enmime. It returns the first plain and html parts and whether
// any attachment was seen.
func readBody(contentType, transferEncoding string, body io.Reader) (string, string, bool) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
		var text, html string
		var attachments bool
		reader := multipart.NewReader(body, params["boundary"])
		for {
			part, err := reader.NextPart()
			if err != nil {
				break
			}
			if disposition, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition")); disposition == "attachment" || part.FileName() != "" {
				attachments = true
				continue
			}
			partText, partHTML, partAttachments := readBody(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if text == "" {
				text = partText
			}
			if html == "" {
				html = partHTML
			}
			attachments = attachments || partAttachments
		}
		return text, html, attachments
	}

	data, err := io.ReadAll(decodeTransfer(transferEncoding, body))
	if err != nil {
		return "", "", false
	}
	decoded := decodeText(data, params["charset"])
	switch mediaType {
	case "text/html":
		return "", decoded, false
	case "text/plain":
		return decoded, "", false
	default:
		return "", "", true
	}
}

func decodeTransfer(encoding string, body io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		return quotedprintable.NewReader(body)
	default:
		return body
	}
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
