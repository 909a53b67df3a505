package models

// RawMessage is one record as returned by the provider worker. Preparsed records carry decoded headers
// and bodies; the others carry the raw RFC 5322 bytes in Raw.
type RawMessage struct {
	ID              string            `json:"id"`
	ThreadID        string            `json:"threadId,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	BodyText        string            `json:"bodyText,omitempty"`
	BodyHTML        string            `json:"bodyHtml,omitempty"`
	InternalDateISO string            `json:"internalDateIso,omitempty"`
	HasAttachments  bool              `json:"hasAttachments"`
	Labels          []string          `json:"labels,omitempty"`
	Preparsed       bool              `json:"preparsed"`
	Raw             []byte            `json:"raw,omitempty"`
}
