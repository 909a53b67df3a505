package models

import (
	"time"

	"github.com/asergian/beacon-sub001/internal/enum"
)

type Address struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// CanonicalMessage is the normalized form of one email. Values are built once by the parser and never
// modified afterwards; re-analysis produces a new AnalysisResult instead.
type CanonicalMessage struct {
	ID             string                   `json:"id"`
	ThreadID       string                   `json:"threadId,omitempty"`
	MessageID      string                   `json:"messageId,omitempty"`
	From           Address                  `json:"from"`
	To             []Address                `json:"to,omitempty"`
	Cc             []Address                `json:"cc,omitempty"`
	ReplyTo        []Address                `json:"replyTo,omitempty"`
	Subject        string                   `json:"subject"`
	BodyText       string                   `json:"bodyText"`
	BodyHTML       string                   `json:"bodyHtml,omitempty"`
	Date           time.Time                `json:"date"`
	HasAttachments bool                     `json:"hasAttachments"`
	Labels         []string                 `json:"labels,omitempty"`
	Classification enum.EmailClassification `json:"classification"`
	Source         enum.MessageSource       `json:"source"`
}

// LocalDate renders the stored UTC date in the given IANA timezone. Unknown zones fall back to UTC.
func (m CanonicalMessage) LocalDate(timezone string) time.Time {
	if timezone == "" {
		return m.Date
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return m.Date
	}
	return m.Date.In(loc)
}

// AnalysisText is the text handed to the analyzers.
func (m CanonicalMessage) AnalysisText() string {
	if m.Subject == "" {
		return m.BodyText
	}
	return m.Subject + "\n\n" + m.BodyText
}
