package parser

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/utils"
)

// FromPreparsed builds a message from a provider record whose headers and bodies were already split
// out by the provider API.
func FromPreparsed(raw models.RawMessage) (models.CanonicalMessage, error) {
	if strings.TrimSpace(raw.ID) == "" {
		return models.CanonicalMessage{}, errors.Wrap(apperrors.ErrParse, "message has no id")
	}
	if raw.Headers == nil && raw.BodyText == "" && raw.BodyHTML == "" {
		return models.CanonicalMessage{}, errors.Wrapf(apperrors.ErrParse, "message %s has neither headers nor body", raw.ID)
	}

	headers := headerSetFromMap(raw.Headers)
	declared := declaredCharset(headers.get("Content-Type"))

	msg := models.CanonicalMessage{
		ID:             raw.ID,
		ThreadID:       raw.ThreadID,
		MessageID:      utils.NormalizeMessageID(headers.get("Message-Id")),
		From:           parseAddress(decodeString(headers.get("From"), declared)),
		To:             parseAddressList(decodeString(headers.get("To"), declared)),
		Cc:             parseAddressList(decodeString(headers.get("Cc"), declared)),
		ReplyTo:        parseAddressList(decodeString(headers.get("Reply-To"), declared)),
		Subject:        strings.TrimSpace(decodeHeader(decodeString(headers.get("Subject"), declared))),
		BodyHTML:       decodeString(raw.BodyHTML, declared),
		HasAttachments: raw.HasAttachments,
		Labels:         raw.Labels,
		Source:         enum.MessageSourcePreparsed,
	}

	msg.BodyText = normalizeBody(decodeString(raw.BodyText, declared))
	if msg.BodyText == "" && msg.BodyHTML != "" {
		msg.BodyText = htmlToText(msg.BodyHTML)
	}

	// The provider's receive timestamp is authoritative; the header is sender-controlled.
	if date, ok := parseInternalDate(raw.InternalDateISO); ok {
		msg.Date = date
	} else if date, ok := parseDate(headers.get("Date")); ok {
		msg.Date = date
	}

	msg.Classification, _ = classifySender(headers, msg.Subject, msg.From.Address, firstAddress(msg.ReplyTo))
	return msg, nil
}

func firstAddress(addresses []models.Address) string {
	if len(addresses) == 0 {
		return ""
	}
	return addresses[0].Address
}

func normalizeBody(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text)
}
