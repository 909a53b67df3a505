package parser

import (
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"

	"github.com/asergian/beacon-sub001/internal/enum"
	"github.com/asergian/beacon-sub001/internal/utils"
)

var bounceSubjectPhrases = []string{
	"mail delivery failure",
	"undelivered mail returned to sender",
	"delivery status notification",
	"undeliverable",
	"undelivered",
	"delivery failure",
	"failure notice",
	"returned mail",
	"returned to sender",
}

// classifySender labels the message from its headers only. No network lookups, so the result is stable
// for a given input.
func classifySender(headers headerSet, subject, from, replyTo string) (enum.EmailClassification, string) {
	if ok, reason := isBounceNotification(headers, subject, from); ok {
		return enum.EmailBounceNotification, reason
	}
	if ok, reason := isAutoresponder(headers); ok {
		return enum.EmailAutoResponder, reason
	}
	if ok, reason := isBulkEmail(headers, from, replyTo); ok {
		return enum.EmailBulk, reason
	}
	return enum.EmailOK, ""
}

func isBounceNotification(headers headerSet, subject, from string) (bool, string) {
	switch {
	case headers.get("X-Failed-Recipients") != "":
		return true, "X-FAILED-RECIPIENTS header present"
	case strings.EqualFold(headers.get("Content-Description"), "delivery report"):
		return true, "CONTENT-DESCRIPTION: DELIVERY REPORT header present"
	case hasBounceKeywords(headers.get("Return-Path")):
		return true, "RETURN-PATH contains bounce keywords"
	case hasBounceKeywords(from):
		return true, "FROM contains bounce keywords"
	case isBounceSubject(subject):
		return true, "SUBJECT contains bounce keywords"
	default:
		return false, ""
	}
}

func isAutoresponder(headers headerSet) (bool, string) {
	autoSubmitted := strings.ToLower(headers.get("Auto-Submitted"))
	switch {
	case headers.get("X-Autoreply") != "":
		return true, "X-AUTOREPLY header present"
	case headers.get("X-Autorespond") != "", headers.get("X-Autoresponse") != "":
		return true, "X-AUTORESPONSE header present"
	case headers.has("X-Loop"):
		return true, "X-LOOP header present"
	case strings.EqualFold(headers.get("Precedence"), "auto_reply"):
		return true, "PRECEDENCE: AUTO_REPLY header present"
	case autoSubmitted != "" && autoSubmitted != "no":
		return true, "AUTO-SUBMITTED header present"
	default:
		return false, ""
	}
}

func isBulkEmail(headers headerSet, from, replyTo string) (bool, string) {
	precedence := strings.ToLower(headers.get("Precedence"))
	sender := normalizeAddress(parseAddress(headers.get("Sender")).Address)

	switch {
	case headers.has("List-Unsubscribe"):
		return true, "UNSUBSCRIBE header present"
	case headers.has("List-Id"):
		return true, "LIST-ID header present"
	case precedence == "bulk" || precedence == "list" || precedence == "junk":
		return true, "PRECEDENCE: " + strings.ToUpper(precedence) + " header present"
	case sender != "" && from != "" && sender != from:
		return true, "SENDER != FROM"
	case replyTo != "" && from != "" && utils.ExtractDomainFromEmail(replyTo) != utils.ExtractDomainFromEmail(from):
		return true, "REPLY-TO domain != FROM domain"
	}

	if from == "" {
		return false, ""
	}
	validation := mailvalidate.ValidateEmailSyntax(from)
	switch {
	case validation.IsSystemGenerated:
		return true, "FROM is system generated"
	case validation.IsRoleAccount:
		return true, "FROM is a role account"
	}
	return false, ""
}

func hasBounceKeywords(str string) bool {
	return strings.Contains(strings.ToLower(str), "mailer-daemon")
}

func isBounceSubject(subject string) bool {
	subject = strings.ToLower(subject)
	for _, phrase := range bounceSubjectPhrases {
		if strings.Contains(subject, phrase) {
			return true
		}
	}
	return false
}
