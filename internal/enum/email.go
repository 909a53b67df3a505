package enum

type EmailProvider string

const (
	EmailProviderGmail EmailProvider = "gmail"
	EmailProviderIMAP  EmailProvider = "imap"
)

func (t EmailProvider) String() string {
	return string(t)
}

type EmailClassification string

const (
	EmailAutoResponder      EmailClassification = "auto_responder"
	EmailBounceNotification EmailClassification = "bounce_notification"
	EmailBulk               EmailClassification = "bulk_email"
	EmailOK                 EmailClassification = "ok"
)

func (t EmailClassification) String() string {
	return string(t)
}

// MessageSource records which parser constructor produced a message.
type MessageSource string

const (
	MessageSourcePreparsed MessageSource = "preparsed"
	MessageSourceRawMIME   MessageSource = "raw_mime"
)

func (t MessageSource) String() string {
	return string(t)
}
