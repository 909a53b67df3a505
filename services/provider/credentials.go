package provider

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
)

var credentialRefPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Credential is the content of one file under the credentials directory.
type Credential struct {
	Provider enum.EmailProvider `json:"provider"`
	Gmail    *GmailCredential   `json:"gmail,omitempty"`
	IMAP     *IMAPCredential    `json:"imap,omitempty"`
}

type GmailCredential struct {
	// OAuthClient is the client secret JSON downloaded from the Google console.
	OAuthClient json.RawMessage `json:"oauthClient"`
	Token       *oauth2.Token   `json:"token"`
	// Endpoint overrides the API base URL.
	Endpoint string `json:"endpoint,omitempty"`
}

type IMAPCredential struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	TLS      bool   `json:"tls"`
	Username string `json:"username"`
	Password string `json:"password"`
	Folder   string `json:"folder,omitempty"`
}

// LoadCredential resolves an opaque credential ref to <dir>/<ref>.json.
func LoadCredential(dir, ref string) (*Credential, error) {
	if !credentialRefPattern.MatchString(ref) {
		return nil, errors.Wrapf(apperrors.ErrCredentialNotFound, "invalid credential ref %q", ref)
	}

	data, err := os.ReadFile(filepath.Join(dir, ref+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(apperrors.ErrCredentialNotFound, "credential %q", ref)
		}
		return nil, errors.Wrap(err, "read credential file")
	}

	var credential Credential
	if err := json.Unmarshal(data, &credential); err != nil {
		return nil, errors.Wrapf(err, "parse credential %q", ref)
	}

	switch credential.Provider {
	case enum.EmailProviderGmail:
		if credential.Gmail == nil || len(credential.Gmail.OAuthClient) == 0 || credential.Gmail.Token == nil {
			return nil, errors.Errorf("credential %q: gmail section incomplete", ref)
		}
	case enum.EmailProviderIMAP:
		if credential.IMAP == nil || credential.IMAP.Host == "" || credential.IMAP.Username == "" {
			return nil, errors.Errorf("credential %q: imap section incomplete", ref)
		}
	default:
		return nil, errors.Errorf("credential %q: unsupported provider %q", ref, credential.Provider)
	}
	return &credential, nil
}
